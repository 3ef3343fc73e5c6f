// Package cache holds the engine's two cached resources - full query
// results (short TTL) and column-mapping/config metadata (long TTL) - plus
// the cache-key derivation that binds every result entry to the security
// context it was computed under.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulsedash/analytics-engine/pkg/apperrors"
)

// Store is the generic key-value boundary the engine caches through. The
// engine owns key construction; the store owns nothing but bytes.
type Store interface {
	// Get returns the value and true, or false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteMatching removes every key with the given prefix and reports
	// how many were deleted.
	DeleteMatching(ctx context.Context, prefix string) (int, error)
}

// noopStore is used when no cache store is configured: every read misses
// and every write succeeds silently, so the engine runs cacheless.
type noopStore struct{}

// NewNoopStore returns a Store that caches nothing.
func NewNoopStore() Store { return noopStore{} }

func (noopStore) Get(context.Context, string) ([]byte, bool, error)      { return nil, false, nil }
func (noopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (noopStore) Delete(context.Context, string) error                   { return nil }
func (noopStore) DeleteMatching(context.Context, string) (int, error)    { return 0, nil }

// redisStore implements Store on a shared Redis client. The client is safe
// for concurrent use; the store adds no locking of its own.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a Redis client as a Store.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

var _ Store = (*redisStore)(nil)

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", apperrors.ErrCacheUnavailable, key, err)
	}
	return val, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set %s: %v", apperrors.ErrCacheUnavailable, key, err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: delete %s: %v", apperrors.ErrCacheUnavailable, key, err)
	}
	return nil
}

func (s *redisStore) DeleteMatching(ctx context.Context, prefix string) (int, error) {
	var deleted int
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("%w: delete matching %s: %v", apperrors.ErrCacheUnavailable, prefix, err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("%w: scan %s: %v", apperrors.ErrCacheUnavailable, prefix, err)
	}
	return deleted, nil
}
