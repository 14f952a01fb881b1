// Package kvstore provides the key-value persistence used for cache, history
// and device state. Implementations can be SQLite, Redis or in-memory; callers
// do not need to know which one is used.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/db"
	"github.com/stwalsh4118/marquee/internal/logger"
)

// ErrNotFound is returned by Get when no value exists for a key
var ErrNotFound = db.ErrNotFound

// Store is the persistence abstraction for serialized state
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// New returns the store selected by cfg.Backend. The SQLite backend reuses
// the application's KV repository.
func New(cfg config.CacheConfig, repos *db.Repositories) (Store, error) {
	switch cfg.Backend {
	case config.CacheBackendSQLite:
		if repos == nil {
			return nil, errors.New("sqlite backend requires repositories")
		}
		return repos.KV, nil
	case config.CacheBackendRedis:
		return NewRedisStore(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case config.CacheBackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// LoadJSON decodes the value under key into dst. It reports false when the
// key is missing or unreadable; read failures are logged, never returned.
func LoadJSON(ctx context.Context, s Store, key string, dst any) bool {
	data, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Log.Warn().Err(err).Str("key", key).Msg("Failed to load persisted state")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		logger.Log.Warn().Err(err).Str("key", key).Msg("Discarding unreadable persisted state")
		return false
	}
	return true
}

// SaveJSON encodes v under key. Write failures are logged and reported as false.
func SaveJSON(ctx context.Context, s Store, key string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Warn().Err(err).Str("key", key).Msg("Failed to encode state")
		return false
	}
	if err := s.Put(ctx, key, data); err != nil {
		logger.Log.Warn().Err(err).Str("key", key).Msg("Failed to persist state")
		return false
	}
	return true
}
