package repository

import (
	"context"
	"errors"

	domrepo "SignalPulse/internal/domain/repository"
	"SignalPulse/pkg/cache"
)

// CacheKeyValueStore persists preferences in a cache.Service without expiry.
type CacheKeyValueStore struct {
	cache cache.Service
}

// NewCacheKeyValueStore wraps c.
func NewCacheKeyValueStore(c cache.Service) domrepo.KeyValueStore {
	return &CacheKeyValueStore{cache: c}
}

func (s *CacheKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := cache.GetString(ctx, s.cache, key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (s *CacheKeyValueStore) Set(ctx context.Context, key, value string) error {
	return s.cache.Set(ctx, key, value, 0)
}
