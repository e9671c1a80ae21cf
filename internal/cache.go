package internal

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto"
	gocache "github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// _memoryTTL is the write-time expiry for the in-memory tier. The persistent
// tier carries whatever TTL the writer asked for.
const _memoryTTL = 8 * time.Hour

// _memoryEntries bounds the in-memory tier. Eviction beyond this is
// ristretto's approximate LRU.
const _memoryEntries = 1000

// cache is a two-tier read-through cache. Reads fall through from memory to
// the persistent tier; writes update both. The persistent tier is written
// asynchronously, so callers never block on it, and on persistent failures
// the in-memory entry remains authoritative for its TTL.
type cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool)
	GetWithTTL(ctx context.Context, key string) (T, time.Duration, bool)
	Set(ctx context.Context, key string, value T, ttl time.Duration)
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string) error
}

// LayeredCache implements cache[[]byte] over ristretto and Postgres.
type LayeredCache struct {
	memory     *gocache.Cache[[]byte]
	persistent *pgstore // nil means memory-only (NewMemoryCache).
	metrics    *cacheMetrics
}

var _ cache[[]byte] = (*LayeredCache)(nil)

// NewCache creates a layered cache backed by Postgres.
func NewCache(ctx context.Context, dsn string, reg *prometheus.Registry) (*LayeredCache, error) {
	c, err := NewMemoryCache(reg)
	if err != nil {
		return nil, err
	}
	c.persistent, err = newPGStore(ctx, dsn, c.metrics)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// NewMemoryCache creates a cache with no persistent tier.
func NewMemoryCache(reg *prometheus.Registry) (*LayeredCache, error) {
	r, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: _memoryEntries * 10,
		MaxCost:     _memoryEntries,
		BufferItems: 64,
		Cost:        func(any) int64 { return 1 }, // Count entries, not bytes.
	})
	if err != nil {
		return nil, err
	}
	return &LayeredCache{
		memory:  gocache.New[[]byte](ristretto_store.NewRistretto(r)),
		metrics: newCacheMetrics(reg),
	}, nil
}

// Get returns the cached value for key, if any.
func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, _, ok := c.GetWithTTL(ctx, key)
	return value, ok
}

// GetWithTTL returns the cached value along with its remaining TTL. A read
// error on the persistent tier degrades to a miss.
func (c *LayeredCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	value, ttl, err := c.memory.GetWithTTL(ctx, key)
	if err == nil && ttl > 0 {
		c.metrics.cacheHitInc()
		return value, ttl, true
	}

	if c.persistent == nil {
		c.metrics.cacheMissInc()
		return nil, 0, false
	}

	value, ttl, err = c.persistent.get(ctx, key)
	if err != nil {
		if !errors.Is(err, errNotFound) {
			Log(ctx).Warn("problem reading persistent cache", "key", key, "err", err)
			c.metrics.cacheReadErrInc()
		}
		c.metrics.cacheMissInc()
		return nil, 0, false
	}

	// Re-warm the memory tier with the remaining lifetime.
	_ = c.memory.Set(ctx, key, value, store.WithExpiration(min(ttl, _memoryTTL)))

	c.metrics.cacheHitInc()
	return value, ttl, true
}

// Set writes to both tiers. The persistent write is fire-and-forget.
func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.memory.Set(ctx, key, value, store.WithExpiration(min(ttl, _memoryTTL))); err != nil {
		Log(ctx).Warn("problem writing memory cache", "key", key, "err", err)
	}
	if c.persistent != nil {
		c.persistent.set(key, value, ttl)
	}
}

// Delete removes the key from both tiers.
func (c *LayeredCache) Delete(ctx context.Context, key string) error {
	err := c.memory.Delete(ctx, key)
	if c.persistent != nil {
		err = errors.Join(err, c.persistent.delete(ctx, key))
	}
	return err
}

// Expire invalidates the key so the next read recomputes.
func (c *LayeredCache) Expire(ctx context.Context, key string) error {
	return c.Delete(ctx, key)
}

// DeleteMatching removes every persistent entry whose key starts with prefix.
// Memory entries are left to age out; this is meant for the offline bust
// command where no memory tier is live.
func (c *LayeredCache) DeleteMatching(ctx context.Context, prefix string) (int64, error) {
	if c.persistent == nil {
		return 0, nil
	}
	return c.persistent.deleteMatching(ctx, prefix)
}
