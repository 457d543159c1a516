package pubfile

import (
	"sync"
	"time"
)

// Fetcher retrieves the raw bytes of a publications file from uri,
// e.g. via pkg/transport.
type Fetcher func(uri string) ([]byte, error)

// Cache is the pluggable publications-file cache interface
// ksictx.Context depends on. MemoryCache is the default in-process
// implementation; pkg/cache.FirestoreCache (bound via its Bind method)
// is a process-shared alternative for multi-instance deployments
// (spec.md §8 scenario 6: "a TTL of 0 must fetch on every call; a
// positive TTL must return the identical cached object until it
// expires; changing the URI must invalidate the cache regardless of
// TTL").
type Cache interface {
	Get(uri string) (*File, error)
	Invalidate()
}

// MemoryCache memoizes a parsed File keyed by source URI, honoring a
// configurable TTL.
type MemoryCache struct {
	mu     sync.Mutex
	fetch  Fetcher
	ttl    time.Duration
	clock  func() time.Time
	uri    string
	file   *File
	expiry time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewCache returns a MemoryCache that fetches through fetch and keeps a
// cached File for ttl. A zero ttl disables caching entirely.
func NewCache(fetch Fetcher, ttl time.Duration) *MemoryCache {
	return &MemoryCache{fetch: fetch, ttl: ttl, clock: time.Now}
}

// Get returns the publications file for uri, fetching and parsing it
// if there is no live cache entry for that exact uri.
func (c *MemoryCache) Get(uri string) (*File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl > 0 && c.file != nil && c.uri == uri && c.clock().Before(c.expiry) {
		return c.file, nil
	}

	raw, err := c.fetch(uri)
	if err != nil {
		return nil, err
	}
	f, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	if c.ttl > 0 {
		c.uri = uri
		c.file = f
		c.expiry = c.clock().Add(c.ttl)
	} else {
		c.uri = ""
		c.file = nil
	}

	return f, nil
}

// Invalidate drops any cached entry, forcing the next Get to fetch.
func (c *MemoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.file = nil
	c.uri = ""
}
