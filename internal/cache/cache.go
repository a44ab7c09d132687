// Package cache provides the key/value store behind login sessions.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cosray/backend/config"
)

// ErrMiss is returned for absent or expired keys.
var ErrMiss = errors.New("cache miss")

// Store is a string key/value store with per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// New builds the store selected by CACHE_BACKEND.
func New(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "locmem", "":
		return NewMemory(), nil
	case "redis":
		store, err := NewRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %q", cfg.Backend)
	}
}
