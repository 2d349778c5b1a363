package store

import (
	"context"
	"time"

	"subscan_server/core/domain"
	"subscan_server/core/port/out"
	"subscan_server/pkg/cache"
)

const merchantDirectoryCacheKey = "subscan:merchant-directory"
const merchantDirectoryTTL = 15 * time.Minute

// CachedDirectory decorates a Store, serving GetMerchantDirectory out of a
// 15-minute process-wide cache (§5 "MerchantDirectory (read-only, cached for
// 15 min)") and delegating every other method straight through.
type CachedDirectory struct {
	out.Store
	cache *cache.RedisCache
}

// NewCachedDirectory builds a CachedDirectory decorating store with redisCache.
func NewCachedDirectory(store out.Store, redisCache *cache.RedisCache) *CachedDirectory {
	return &CachedDirectory{Store: store, cache: redisCache}
}

// GetMerchantDirectory overrides Store's method with a 15-minute cache.
func (d *CachedDirectory) GetMerchantDirectory(ctx context.Context) ([]domain.MerchantDirectoryEntry, error) {
	var entries []domain.MerchantDirectoryEntry
	if hit, err := d.cache.GetJSON(ctx, merchantDirectoryCacheKey, &entries); err == nil && hit {
		return entries, nil
	}

	fresh, err := d.Store.GetMerchantDirectory(ctx)
	if err != nil {
		return nil, err
	}
	_ = d.cache.SetJSON(ctx, merchantDirectoryCacheKey, fresh, merchantDirectoryTTL)
	return fresh, nil
}

var _ out.Store = (*CachedDirectory)(nil)
