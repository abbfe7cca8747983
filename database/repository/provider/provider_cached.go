package providerRepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"wellnest/database/cache"
	"wellnest/models"

	"go.uber.org/zap"
)

const providerCachePrefix = "provider:"

// CachedProviderRepo serves GetByID from an injected cache. Owner listings
// are not cached since they gate authorization.
type CachedProviderRepo struct {
	inner  ProviderRepository
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProviderRepo wraps inner with a read-through cache.
func NewCachedProviderRepo(inner ProviderRepository, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedProviderRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProviderRepo{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func (r *CachedProviderRepo) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	key := providerCachePrefix + id
	if raw, err := r.cache.Get(ctx, key); err == nil {
		var p models.Provider
		if err := json.Unmarshal(raw, &p); err == nil {
			return &p, nil
		}
		r.logger.Warn("Discarding undecodable provider cache entry", zap.String("providerID", id))
	} else if !errors.Is(err, cache.ErrMiss) {
		r.logger.Warn("Provider cache read failed", zap.String("providerID", id), zap.Error(err))
	}

	p, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(p); err == nil {
		if err := r.cache.Set(ctx, key, raw, r.ttl); err != nil {
			r.logger.Warn("Provider cache write failed", zap.String("providerID", id), zap.Error(err))
		}
	}
	return p, nil
}

func (r *CachedProviderRepo) GetByOwner(ctx context.Context, ownerID string) ([]models.Provider, error) {
	return r.inner.GetByOwner(ctx, ownerID)
}

func (r *CachedProviderRepo) Save(ctx context.Context, provider *models.Provider) error {
	if err := r.inner.Save(ctx, provider); err != nil {
		return err
	}
	return r.Invalidate(ctx, provider.ID)
}

// Invalidate drops cached copies of the given providers.
func (r *CachedProviderRepo) Invalidate(ctx context.Context, ids ...string) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = providerCachePrefix + id
	}
	return r.cache.Invalidate(ctx, keys...)
}
