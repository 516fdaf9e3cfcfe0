package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/enercompare/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Tier identifies which cache tier served a response. The values are exposed
// verbatim in the X-Cache response header.
type Tier string

const (
	TierKV     Tier = "HIT-KV"
	TierMemory Tier = "HIT-MEMORY"
	TierMiss   Tier = "MISS"
	TierStale  Tier = "HIT-STALE"
)

// Producer performs the underlying upstream fetch on a full cache miss
type Producer func(ctx context.Context) (json.RawMessage, error)

// flight is a producer call in progress, shared by all coalesced waiters
type flight struct {
	done chan struct{}
	data json.RawMessage
	tier Tier
	err  error
}

// FetchCache shields callers from an occasionally-flaky upstream: reads go
// through the distributed tier, then the local tier, then a single coalesced
// producer call per key with a bounded retry budget. When the producer fails
// for good, a stale cached value substitutes for the live one.
//
// Coalescing is per process only; concurrent fetches from different
// processes are accepted and bounded by the distributed tier's TTL.
type FetchCache struct {
	distributed *RedisCache
	local       *MemoryCache
	logger      *zap.Logger

	retryBase   time.Duration
	maxAttempts int

	mu       sync.Mutex
	inflight map[string]*flight

	sleep func(ctx context.Context, d time.Duration) error
}

// FetchCacheOption is a functional option for configuring the cache
type FetchCacheOption func(*FetchCache)

// WithFetchLogger sets the logger
func WithFetchLogger(logger *zap.Logger) FetchCacheOption {
	return func(c *FetchCache) {
		c.logger = logger
	}
}

// WithRetryBase sets the first retry delay (doubles per attempt)
func WithRetryBase(d time.Duration) FetchCacheOption {
	return func(c *FetchCache) {
		c.retryBase = d
	}
}

// WithMaxAttempts sets the retry budget
func WithMaxAttempts(n int) FetchCacheOption {
	return func(c *FetchCache) {
		c.maxAttempts = n
	}
}

// NewFetchCache creates a resilient fetch cache over the two tiers
func NewFetchCache(distributed *RedisCache, local *MemoryCache, opts ...FetchCacheOption) *FetchCache {
	c := &FetchCache{
		distributed: distributed,
		local:       local,
		logger:      zap.NewNop(),
		retryBase:   time.Second,
		maxAttempts: 3,
		inflight:    make(map[string]*flight),
		sleep:       sleepCtx,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Fetch serves key from the freshest available source: distributed tier,
// local tier, then a coalesced producer call. The returned Tier reports
// which source answered.
func (c *FetchCache) Fetch(ctx context.Context, key string, producer Producer) (json.RawMessage, Tier, error) {
	if data, tier, ok := c.lookup(ctx, key); ok {
		return data, tier, nil
	}

	c.mu.Lock()
	if f, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.data, f.tier, f.err
		case <-ctx.Done():
			return nil, TierMiss, ctx.Err()
		}
	}

	f := &flight{done: make(chan struct{})}
	c.inflight[key] = f
	c.mu.Unlock()

	f.data, f.tier, f.err = c.produce(ctx, key, producer)

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
	close(f.done)

	return f.data, f.tier, f.err
}

// lookup checks both tiers for a fresh value
func (c *FetchCache) lookup(ctx context.Context, key string) (json.RawMessage, Tier, bool) {
	data, fresh, ok, err := c.distributed.Get(ctx, key)
	if err != nil {
		c.logger.Warn("distributed cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok && fresh {
		// Repopulate the local tier so a warm instance skips the network hop.
		c.local.Set(key, data)
		return data, TierKV, true
	}

	if data, fresh, ok := c.local.Get(key); ok && fresh {
		return data, TierMemory, true
	}

	return nil, TierMiss, false
}

// produce runs the producer under the retry policy and populates both tiers
// on success. On final failure it substitutes a stale cached value when one
// exists.
func (c *FetchCache) produce(ctx context.Context, key string, producer Producer) (json.RawMessage, Tier, error) {
	data, err := c.retry(ctx, key, producer)
	if err != nil {
		if stale, ok := c.staleValue(ctx, key); ok {
			c.logger.Warn("serving stale cached value after upstream failure",
				zap.String("key", key),
				zap.Error(err))
			return stale, TierStale, nil
		}
		return nil, TierMiss, err
	}

	if err := c.distributed.Set(ctx, key, data); err != nil {
		c.logger.Warn("failed to populate distributed cache", zap.String("key", key), zap.Error(err))
	}
	c.local.Set(key, data)

	return data, TierMiss, nil
}

// retry runs the producer with up to maxAttempts attempts. Only throttling
// (429) and unavailability (503) are retried; anything else fails
// immediately. Delays double from retryBase: 1s, 2s, ...
func (c *FetchCache) retry(ctx context.Context, key string, producer Producer) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		data, err := producer(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == c.maxAttempts {
			break
		}

		delay := c.retryBase << (attempt - 1)
		c.logger.Warn("upstream fetch failed, retrying",
			zap.String("key", key),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// staleValue looks for a stale-but-present value in either tier
func (c *FetchCache) staleValue(ctx context.Context, key string) (json.RawMessage, bool) {
	if data, _, ok, err := c.distributed.Get(ctx, key); err == nil && ok {
		return data, true
	}
	if data, _, ok := c.local.Get(key); ok {
		return data, true
	}
	return nil, false
}

func isRetryable(err error) bool {
	return errors.Is(err, shared.ErrUpstreamThrottled) || errors.Is(err, shared.ErrUpstreamUnavailable)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
