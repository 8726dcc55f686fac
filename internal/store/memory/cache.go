package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

type cacheItem struct {
	v       []byte
	expires time.Time
}

// Cache is an in-process domain.Cache. A ttl <= 0 stores without expiry.
type Cache struct {
	mu    sync.RWMutex
	now   func() time.Time
	items map[string]cacheItem
}

// NewCache returns an empty cache. now may be nil.
func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{now: now, items: make(map[string]cacheItem)}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !it.expires.IsZero() && c.now().After(it.expires) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	return clone(it.v), nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := cacheItem{v: clone(value)}
	if ttl > 0 {
		it.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = it
	c.mu.Unlock()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
