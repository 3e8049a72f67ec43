package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/depotline/depot/internal/platform/cache"
)

const summaryKey = "dashboard:summary"

// Cache keeps the last computed summary in Redis for a short TTL.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCache returns nil when client is nil, which disables caching.
func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

// Fetch returns the cached summary or computes and stores it.
func (c *Cache) Fetch(ctx context.Context, load func(context.Context) (Summary, error)) (Summary, error) {
	if c == nil {
		return load(ctx)
	}
	var cached Summary
	err := cache.GetJSON(ctx, c.client, summaryKey, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		return Summary{}, err
	}
	fresh, err := load(ctx)
	if err != nil {
		return Summary{}, err
	}
	if err := cache.SetJSON(ctx, c.client, summaryKey, fresh, c.ttl); err != nil {
		return Summary{}, err
	}
	return fresh, nil
}

// Invalidate drops the cached summary.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, summaryKey).Err()
}
