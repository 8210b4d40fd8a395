package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InMemoryCache implements RangeCache with a process-wide map. Expired
// entries are evicted lazily on access; there is no background sweeper, so
// an idle entry simply occupies its slot until read or displaced.
type InMemoryCache struct {
	mu      sync.RWMutex
	data    map[string]*cacheEntry
	maxSize int
	logger  *zap.Logger

	nowFn func() time.Time
}

type cacheEntry struct {
	value     []byte
	createdAt time.Time
	ttl       time.Duration
}

// NewInMemoryCache creates a new in-memory range cache.
func NewInMemoryCache(maxSize int, logger *zap.Logger) *InMemoryCache {
	return &InMemoryCache{
		data:    make(map[string]*cacheEntry),
		maxSize: maxSize,
		logger:  logger,
		nowFn:   time.Now,
	}
}

// Get retrieves a value. A hit is valid iff now - createdAt <= ttl;
// an expired entry is deleted and reported as absent.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	entry, exists := c.data[key]
	c.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	if c.nowFn().Sub(entry.createdAt) > entry.ttl {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// replaced the entry.
		if cur, ok := c.data[key]; ok && cur == entry {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return nil, ErrNotFound
	}
	return entry.value, nil
}

// Set stores a value with its TTL, overwriting any previous entry.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.data) >= c.maxSize {
		c.evictLocked()
	}

	c.data[key] = &cacheEntry{
		value:     value,
		createdAt: c.nowFn(),
		ttl:       ttl,
	}
	return nil
}

// Delete removes a value.
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Ping always succeeds for the in-memory backend.
func (c *InMemoryCache) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory backend.
func (c *InMemoryCache) Close() error { return nil }

// Size returns the number of entries, expired ones included.
func (c *InMemoryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// evictLocked frees one slot, preferring an already-expired entry.
func (c *InMemoryCache) evictLocked() {
	now := c.nowFn()
	for k, e := range c.data {
		if now.Sub(e.createdAt) > e.ttl {
			delete(c.data, k)
			return
		}
	}
	for k := range c.data {
		delete(c.data, k)
		return
	}
}
