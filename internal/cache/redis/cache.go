package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// Cache implements domain.Cache with plain GET/SET PX. The HTTP layer uses it
// to hold rendered queue stats between polls.
type Cache struct {
	c *Client
}

// NewCache creates a Cache backed by the given Client.
func NewCache(c *Client) *Cache {
	return &Cache{c: c}
}

func (ca *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := ca.c.rdb.Get(ctx, ca.c.key("cache", key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: cache get %s: %w", key, err)
	}
	return b, nil
}

// Set stores value under key. A ttl of zero keeps the key forever.
func (ca *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ca.c.rdb.Set(ctx, ca.c.key("cache", key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: cache set %s: %w", key, err)
	}
	return nil
}

func (ca *Cache) Delete(ctx context.Context, key string) error {
	if err := ca.c.rdb.Del(ctx, ca.c.key("cache", key)).Err(); err != nil {
		return fmt.Errorf("redis: cache delete %s: %w", key, err)
	}
	return nil
}

var _ domain.Cache = (*Cache)(nil)
