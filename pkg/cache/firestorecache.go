// Package cache implements a Firestore-backed, process-shared
// publications-file cache, an alternative pubfile.Cache backend to the
// per-context in-memory pubfile.MemoryCache (spec.md §5 "the
// publications-file, once cached, is read-only shared"). Where
// MemoryCache memoizes within one ksictx.Context, FirestoreCache lets
// multiple contexts (or processes) share the raw bytes of a single
// fetched file, which each GetFile call parses again; useful when many
// short-lived verification calls would otherwise each pay the
// publications-file fetch cost independently.
//
// Grounded on pkg/firestore/client.go's Firebase Admin SDK wiring
// (App/Client construction, enabled/no-op toggle, credentials-file
// option) adapted from proof-cycle sync documents to a single
// document-per-cached-file shape.
package cache

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/certenio/ksi-go/pkg/pubfile"
)

const collectionName = "ksi_publications_cache"

// document is the Firestore document shape for one cached publications
// file, keyed by source URI.
type document struct {
	URI       string    `firestore:"uri"`
	Raw       []byte    `firestore:"raw"`
	FetchedAt time.Time `firestore:"fetchedAt"`
}

// Config configures a FirestoreCache.
type Config struct {
	ProjectID       string
	CredentialsFile string
	// Enabled controls whether Firestore operations are actually
	// performed; when false every call is a clean pass-through no-op,
	// matching pkg/firestore/client.go's local-development toggle.
	Enabled bool
	Logger  *log.Logger
}

// FirestoreCache shares one publications file's raw bytes across every
// context pointed at the same Firestore project.
type FirestoreCache struct {
	fs      *gcpfirestore.Client
	enabled bool
	ttl     time.Duration
	logger  *log.Logger
}

// New constructs a FirestoreCache. When cfg.Enabled is false, Get always
// delegates straight to fetch with no Firestore round trip.
func New(ctx context.Context, cfg Config, ttl time.Duration) (*FirestoreCache, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[ksi/cache] ", log.LstdFlags)
	}
	fc := &FirestoreCache{enabled: cfg.Enabled, ttl: ttl, logger: cfg.Logger}
	if !cfg.Enabled {
		return fc, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("cache: ProjectID is required when Firestore caching is enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("cache: initializing firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache: initializing firestore client: %w", err)
	}
	fc.fs = client
	return fc, nil
}

// Get returns the cached raw publications-file bytes for uri if a
// fresh-within-TTL document exists; otherwise it calls fetch, stores
// the result, and returns it (spec.md §5 cache-before-network rule).
func (c *FirestoreCache) Get(ctx context.Context, uri string, fetch func(string) ([]byte, error)) ([]byte, error) {
	if !c.enabled {
		return fetch(uri)
	}

	docRef := c.fs.Collection(collectionName).Doc(docID(uri))
	snap, err := docRef.Get(ctx)
	if err == nil {
		var doc document
		if derr := snap.DataTo(&doc); derr == nil {
			if c.ttl > 0 && time.Since(doc.FetchedAt) < c.ttl {
				return doc.Raw, nil
			}
		}
	}

	raw, err := fetch(uri)
	if err != nil {
		return nil, err
	}
	if _, err := docRef.Set(ctx, document{URI: uri, Raw: raw, FetchedAt: time.Now()}); err != nil {
		c.logger.Printf("warning: caching publications file for %s: %v", uri, err)
	}
	return raw, nil
}

// GetFile is Get followed by pubfile.Parse.
func (c *FirestoreCache) GetFile(ctx context.Context, uri string, fetch func(string) ([]byte, error)) (*pubfile.File, error) {
	raw, err := c.Get(ctx, uri, fetch)
	if err != nil {
		return nil, err
	}
	return pubfile.Parse(raw)
}

// Invalidate deletes the cached document for uri, forcing the next Get
// to fetch (spec.md §5 "setting a new URL invalidates the cache").
func (c *FirestoreCache) Invalidate(ctx context.Context, uri string) error {
	if !c.enabled {
		return nil
	}
	_, err := c.fs.Collection(collectionName).Doc(docID(uri)).Delete(ctx)
	return err
}

// Bind fixes ctx and fetch onto c, returning a pubfile.Cache adapter
// ksictx.Context can hold directly in place of the default
// pubfile.MemoryCache (SPEC_FULL.md §5: the in-process and
// Firestore-backed caches are interchangeable backends behind the same
// interface). The adapter tracks the most recently requested uri so its
// no-argument Invalidate, matching pubfile.Cache's shape, knows which
// document to drop.
func (c *FirestoreCache) Bind(ctx context.Context, fetch pubfile.Fetcher) pubfile.Cache {
	return &boundCache{fc: c, ctx: ctx, fetch: fetch}
}

type boundCache struct {
	fc    *FirestoreCache
	ctx   context.Context
	fetch pubfile.Fetcher

	mu   sync.Mutex
	last string
}

var _ pubfile.Cache = (*boundCache)(nil)

func (b *boundCache) Get(uri string) (*pubfile.File, error) {
	b.mu.Lock()
	b.last = uri
	b.mu.Unlock()
	return b.fc.GetFile(b.ctx, uri, b.fetch)
}

func (b *boundCache) Invalidate() {
	b.mu.Lock()
	uri := b.last
	b.mu.Unlock()
	if uri == "" {
		return
	}
	if err := b.fc.Invalidate(b.ctx, uri); err != nil {
		b.fc.logger.Printf("warning: invalidating cached publications file for %s: %v", uri, err)
	}
}

func docID(uri string) string {
	out := make([]byte, 0, len(uri))
	for _, r := range uri {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, byte(r))
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
