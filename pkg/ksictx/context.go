package ksictx

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/certenio/ksi-go/pkg/pubfile"
	"github.com/certenio/ksi-go/pkg/transport"
	"github.com/certenio/ksi-go/pkg/trust"
)

// Context owns every piece of mutable state a signing, extending, or
// verification call needs across its lifetime: the request-id counter,
// the publications-file cache, the trust-store handle, and a bounded
// last-error chain (spec.md §5, §9 "global mutable state ... is owned
// by the context value; concurrency is caller-managed"). A Context is
// not safe for concurrent use by multiple goroutines; callers needing
// parallelism construct one Context per goroutine.
type Context struct {
	ID     uuid.UUID
	Config *Config

	TrustStore trust.TrustStore
	Fetcher    transport.Fetcher
	PubfileURL string
	pubCache   pubfile.Cache

	requestID uint64 // next id to hand out, monotonic (spec.md §5 "Ordering")

	mu     sync.Mutex
	errors []error // most-recent first, bounded to maxErrors
}

// maxErrors bounds the retained error chain so a long-lived Context
// cannot grow unboundedly from repeated failures.
const maxErrors = 32

// New constructs a Context backed by the default in-process
// publications-file cache (pubfile.MemoryCache). fetcher is the network
// collaborator used both for aggregator/extender requests and for
// fetching the publications file; store is the PKI trust anchor.
func New(cfg *Config, fetcher transport.Fetcher, store trust.TrustStore) *Context {
	ctx := &Context{
		ID:         uuid.New(),
		Config:     cfg,
		TrustStore: store,
		Fetcher:    fetcher,
		PubfileURL: cfg.PublicationsURL,
	}
	ctx.pubCache = pubfile.NewCache(ctx.fetchPubfile, cfg.PublicationsTTL.Duration())
	return ctx
}

// NewWithCache is New but lets the caller supply the publications-file
// cache backend directly, e.g. a pkg/cache.FirestoreCache bound via its
// Bind method, for multi-process deployments that need a cache shared
// across contexts instead of per-context memory (SPEC_FULL.md §5).
func NewWithCache(cfg *Config, fetcher transport.Fetcher, store trust.TrustStore, cache pubfile.Cache) *Context {
	return &Context{
		ID:         uuid.New(),
		Config:     cfg,
		TrustStore: store,
		Fetcher:    fetcher,
		PubfileURL: cfg.PublicationsURL,
		pubCache:   cache,
	}
}

func (c *Context) fetchPubfile(uri string) ([]byte, error) {
	return c.Fetcher.Fetch(uri, nil)
}

// NextRequestID hands out the next strictly monotonic request id
// (spec.md §5 "Ordering": "request-id assignment is strictly
// monotonic").
func (c *Context) NextRequestID() uint64 {
	return atomic.AddUint64(&c.requestID, 1)
}

// PublicationsFile returns the cached, parsed publications file for
// this context's configured URL, fetching it if the cache has expired
// (spec.md §8 scenario 6).
func (c *Context) PublicationsFile() (*pubfile.File, error) {
	if c.PubfileURL == "" {
		return nil, nil
	}
	return c.pubCache.Get(c.PubfileURL)
}

// SetPublicationsURL updates the configured publications-file URL,
// invalidating any cached file regardless of its remaining TTL
// (spec.md §5 "setting a new URL invalidates the cache").
func (c *Context) SetPublicationsURL(uri string) {
	if uri == c.PubfileURL {
		return
	}
	c.PubfileURL = uri
	c.pubCache.Invalidate()
}

// RecordError pushes err onto the context's last-error chain,
// most-recent first, trimming to maxErrors (spec.md §7 "errors ...
// exposed as a structured error chain (most recent first) attached to
// the context").
func (c *Context) RecordError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append([]error{err}, c.errors...)
	if len(c.errors) > maxErrors {
		c.errors = c.errors[:maxErrors]
	}
}

// Errors returns a copy of the context's error chain, most-recent
// first.
func (c *Context) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.errors))
	copy(out, c.errors)
	return out
}

// LastError returns the most recently recorded error, or nil.
func (c *Context) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errors) == 0 {
		return nil
	}
	return c.errors[0]
}

// ClearErrors empties the context's error chain, marking it clean
// (spec.md §7 "a few classes of defensive checks produce fatal errors
// ... that terminate the current operation and mark the context
// clean").
func (c *Context) ClearErrors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = nil
}

// Warnf records a non-fatal, human-readable warning (spec.md §9 open
// question: legacy pseudo-metadata in signer-identity extraction
// "should ... surface a warning"). Warnings are threaded through the
// same bounded chain as errors so callers have one place to look.
func (c *Context) Warnf(format string, args ...any) {
	c.RecordError(&warning{msg: fmt.Sprintf(format, args...)})
}

type warning struct{ msg string }

func (w *warning) Error() string { return "warning: " + w.msg }
