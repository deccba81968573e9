package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"simoj/internal/common/cache"
	"simoj/internal/finalize/model"
)

const (
	defaultFinalCacheTTL      = 10 * time.Minute
	defaultFinalCacheEmptyTTL = 30 * time.Second
	finalCacheKeyPrefix       = "final:"
)

// FinalCache serves committed finals cache-aside. A key without a final is
// cached as the null marker for a shorter time.
type FinalCache struct {
	store    SubmissionStore
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewFinalCache creates a cache in front of store. A nil cacheClient makes
// every read hit the store.
func NewFinalCache(store SubmissionStore, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *FinalCache {
	if ttl <= 0 {
		ttl = defaultFinalCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultFinalCacheEmptyTTL
	}
	return &FinalCache{store: store, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

// Get returns the id holding flag within key, or nil.
func (c *FinalCache) Get(ctx context.Context, flag model.Flag, key model.Key) (*int64, error) {
	fetch := func(ctx context.Context) (*int64, error) {
		id, found, err := c.store.FindFinal(ctx, flag, key)
		if err != nil || !found {
			return nil, err
		}
		return &id, nil
	}
	if c.cache == nil {
		return fetch(ctx)
	}
	return cache.GetWithCached(
		ctx,
		c.cache,
		finalCacheKey(flag, key),
		cache.JitterTTL(c.ttl),
		cache.JitterTTL(c.emptyTTL),
		func(id *int64) bool { return id == nil },
		func(id *int64) string { return strconv.FormatInt(*id, 10) },
		func(raw string) (*int64, error) {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, err
			}
			return &id, nil
		},
		fetch,
	)
}

// Invalidate drops the cached final of flag within key.
func (c *FinalCache) Invalidate(ctx context.Context, flag model.Flag, key model.Key) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Del(ctx, finalCacheKey(flag, key))
}

func finalCacheKey(flag model.Flag, key model.Key) string {
	return fmt.Sprintf("%s%s:%d:%d", finalCacheKeyPrefix, flag, key.OwnerID, key.ID)
}
