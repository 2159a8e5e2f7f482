package fetcher

import (
	"context"
	"sync"
)

// Cache memoizes fetches keyed by URI, bounded to a fixed number of entries.
// It is an explicit object handed to the components that need it, invalidated
// by the owner between runs; nothing in this package holds one globally.
type Cache struct {
	mu      sync.Mutex
	inner   Fetcher
	entries map[string][]byte
	order   []string // insertion order, oldest first
	max     int
}

// NewCache wraps a Fetcher with an entry-bounded memo. max <= 0 defaults
// to 64 entries.
func NewCache(inner Fetcher, max int) *Cache {
	if max <= 0 {
		max = 64
	}
	return &Cache{
		inner:   inner,
		entries: make(map[string][]byte),
		max:     max,
	}
}

// Fetch returns the cached bytes for the URI, fetching and caching on a
// miss. Errors (including ErrNotFound) are never cached.
func (c *Cache) Fetch(ctx context.Context, uri string) ([]byte, error) {
	c.mu.Lock()
	if data, ok := c.entries[uri]; ok {
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	data, err := c.inner.Fetch(ctx, uri)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[uri]; !ok {
		for len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.entries[uri] = data
		c.order = append(c.order, uri)
	}
	return data, nil
}

// Invalidate drops one entry.
func (c *Cache) Invalidate(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[uri]; !ok {
		return
	}
	delete(c.entries, uri)
	for i, k := range c.order {
		if k == uri {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
	c.order = nil
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
