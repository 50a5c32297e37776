// Package redis adapts a Redis client to the KeyValueStore port.
//
// Every backend fault is absorbed here: the error is logged with the
// offending key and the operation reports absence. Callers never see a Redis
// error and choose their own failure direction.
package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bvquoc/scalable-api/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KeyValueStore = (*Store)(nil)

// Store is the Redis implementation of the KeyValueStore port.
type Store struct {
	rdb    *goredis.Client
	logger *slog.Logger
}

// NewStore wraps an existing Redis client.
func NewStore(rdb *goredis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{rdb: rdb, logger: logger}
}

// NewClient builds a Redis client from connection parameters and verifies
// the connection with a ping.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	value, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false
	}
	if err != nil {
		s.logger.Error("redis GET failed", "key", key, "error", err)
		return "", false
	}
	return value, true
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Error("redis SET failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) Delete(ctx context.Context, key string) bool {
	deleted, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		s.logger.Error("redis DEL failed", "key", key, "error", err)
		return false
	}
	return deleted > 0
}

func (s *Store) Exists(ctx context.Context, key string) bool {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		s.logger.Error("redis EXISTS failed", "key", key, "error", err)
		return false
	}
	return n > 0
}

func (s *Store) Increment(ctx context.Context, key string) (int64, bool) {
	value, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Error("redis INCR failed", "key", key, "error", err)
		return 0, false
	}
	return value, true
}

// IncrementWithTTL increments the counter and, when this call created it,
// attaches the TTL. The EXPIRE races the INCR of other writers, but only the
// first writer observes value 1, so the TTL is set exactly once per key; a
// reader between the two commands briefly sees a key without a TTL.
func (s *Store) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, bool) {
	value, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Error("redis INCR failed", "key", key, "error", err)
		return 0, false
	}
	if value == 1 && ttl > 0 {
		if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			// The counter still works; it just never expires on its own.
			// Surface loudly since a TTL-less counter leaks.
			s.logger.Error("redis EXPIRE failed", "key", key, "error", err)
		}
	}
	return value, true
}
