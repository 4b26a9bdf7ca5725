package catalog

import (
	"context"
	"sync"

	"github.com/rendis/flowcheck/pkg/schema"
)

// Cached memoizes Resolve results of an underlying Catalog, including
// not-found answers. Other errors are not cached so a transient failure can
// be retried by a later call.
type Cached struct {
	inner Catalog

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	desc *schema.Descriptor
	err  error
}

// NewCached wraps inner with a concurrency-safe cache.
func NewCached(inner Catalog) *Cached {
	return &Cached{inner: inner, cache: make(map[string]cacheEntry)}
}

// Resolve implements Catalog.
func (c *Cached) Resolve(ctx context.Context, nodeType string) (*schema.Descriptor, error) {
	c.mu.RLock()
	if e, ok := c.cache[nodeType]; ok {
		c.mu.RUnlock()
		return e.desc, e.err
	}
	c.mu.RUnlock()

	desc, err := c.inner.Resolve(ctx, nodeType)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check after acquiring write lock.
	if e, ok := c.cache[nodeType]; ok {
		return e.desc, e.err
	}
	c.cache[nodeType] = cacheEntry{desc: desc, err: err}
	return desc, err
}

// Types delegates to the inner catalog when it implements Lister.
func (c *Cached) Types(ctx context.Context) ([]string, error) {
	if l, ok := c.inner.(Lister); ok {
		return l.Types(ctx)
	}
	return nil, nil
}

// Purge drops every cached entry.
func (c *Cached) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

var (
	_ Catalog = (*Cached)(nil)
	_ Lister  = (*Cached)(nil)
)
