// Package cache provides a small time-indexed response cache for the
// analytics read endpoints. Entries expire after a fixed TTL and a
// background sweep evicts stale ones; all mutation goes through a single
// mutex.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	body        []byte
	contentType string
	expiresAt   time.Time
}

// Cache is a TTL-bounded map of rendered responses. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	sweep   time.Duration
	now     func() time.Time // injectable clock for testing
}

// New creates a Cache whose entries live for ttl and are swept every
// sweepInterval.
func New(ttl, sweepInterval time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		sweep:   sweepInterval,
		now:     time.Now,
	}
}

// Start runs the background sweep until the context is cancelled.
func (c *Cache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-ctx.Done():
			return
		}
	}
}

// Get returns the cached body and content type for key, or ok=false when
// the key is absent or expired.
func (c *Cache) Get(key string) (body []byte, contentType string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || c.now().After(e.expiresAt) {
		return nil, "", false
	}
	return e.body, e.contentType, true
}

// Set stores a response body under key for the cache's TTL.
func (c *Cache) Set(key string, body []byte, contentType string) {
	cp := make([]byte, len(body))
	copy(cp, body)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		body:        cp,
		contentType: contentType,
		expiresAt:   c.now().Add(c.ttl),
	}
}

// Invalidate removes all entries whose key starts with prefix. Used to drop
// a user's cached responses when new usage arrives for them.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of live and expired entries currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
