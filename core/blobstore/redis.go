package blobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/vcfbot/core/config"
	"github.com/m3rciful/vcfbot/core/logger"
)

const (
	keyPrefix  = "vcfbot:blob:"
	defaultTTL = time.Hour
)

// Redis stores blobs as plain string values with a TTL, so artifacts of a
// crashed process expire on their own.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis connects to the configured server and verifies it with a ping.
func NewRedis(ctx context.Context, cfg coreconfig.RedisConfig, ttl time.Duration) (*Redis, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("blobstore: redis ping %s: %w", addr, err)
	}
	logger.Info(ctx, logger.ComponentStore, "blobstore.redis",
		slog.String("status", "ok"),
		slog.String("host", addr),
		slog.Int("db", cfg.DB),
	)
	return NewRedisWithClient(rdb, ttl), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

// Write stores data under key with the store TTL.
func (s *Redis) Write(ctx context.Context, key string, data []byte) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := s.rdb.Set(ctx, keyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("blobstore: redis set %s: %w", key, err)
	}
	return nil
}

// Read returns the bytes stored under key.
func (s *Redis) Read(ctx context.Context, key string) ([]byte, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("blobstore: redis get %s: %w", key, err)
	}
	return data, nil
}

// Delete removes key.
func (s *Redis) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("blobstore: redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Redis) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (s *Redis) Close() error {
	return s.rdb.Close()
}
