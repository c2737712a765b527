package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines the key/value operations the preference store relies on.
// An expiration <= 0 keeps the key until it is deleted.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Close() error
}

// GetString reads key as a raw string.
func GetString(ctx context.Context, c Service, key string) (string, error) {
	var s string
	if err := c.Get(ctx, key, &s); err != nil {
		return "", err
	}
	return s, nil
}
