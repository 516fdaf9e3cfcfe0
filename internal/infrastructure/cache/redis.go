package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/enercompare/backend/internal/infrastructure/kv"
)

// entryPayload is the wire form of a distributed cache entry. Logical
// freshness is judged from cached_at rather than the Redis TTL, so the key's
// physical TTL can exceed the logical one and keep a stale copy around for
// fallback.
type entryPayload struct {
	Data     json.RawMessage `json:"data"`
	CachedAt time.Time       `json:"cached_at"`
}

// RedisCache is the distributed cache tier, authoritative across processes
type RedisCache struct {
	store       kv.Store
	ttl         time.Duration
	staleWindow time.Duration

	now func() time.Time
}

// NewRedisCache creates the distributed tier on top of the KV store
func NewRedisCache(store kv.Store, ttl, staleWindow time.Duration) *RedisCache {
	return &RedisCache{
		store:       store,
		ttl:         ttl,
		staleWindow: staleWindow,
		now:         time.Now,
	}
}

// Get returns the cached value for key. fresh reports whether the entry is
// within its logical TTL; stale entries inside the stale window are returned
// with fresh == false.
func (c *RedisCache) Get(ctx context.Context, key string) (data json.RawMessage, fresh, ok bool, err error) {
	var payload entryPayload
	if err := c.store.GetJSON(ctx, key, &payload); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, false, false, nil
		}
		return nil, false, false, err
	}

	age := c.now().Sub(payload.CachedAt)
	if age > c.ttl+c.staleWindow {
		// Physically present but past the stale window; not usable.
		return nil, false, false, nil
	}

	return payload.Data, age <= c.ttl, true, nil
}

// Set writes a value with a physical TTL long enough to cover stale fallback
func (c *RedisCache) Set(ctx context.Context, key string, data json.RawMessage) error {
	payload := entryPayload{
		Data:     data,
		CachedAt: c.now(),
	}
	return c.store.SetJSON(ctx, key, payload, c.ttl+c.staleWindow)
}

// TTL returns the logical freshness duration
func (c *RedisCache) TTL() time.Duration {
	return c.ttl
}

// StaleWindow returns the stale fallback duration
func (c *RedisCache) StaleWindow() time.Duration {
	return c.staleWindow
}
