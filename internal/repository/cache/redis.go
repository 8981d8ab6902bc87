package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"solace/internal/domain/repositories"
)

// Config holds the Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// DefaultConfig returns the default Redis configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// RedisCache implements the CacheStore interface over a Redis connection.
// The client is constructed explicitly and injected where needed; there is no
// package-level connection state.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCache creates a Redis-backed cache store. Connect must be called
// before first use.
func NewRedisCache(cfg *Config, logger *slog.Logger) *RedisCache {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	return &RedisCache{
		client: client,
		logger: logger,
	}
}

// Connect verifies connectivity. go-redis manages the underlying pool and
// reconnects on its own afterwards.
func (c *RedisCache) Connect(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	c.logger.Info("cache store connected", "addr", c.client.Options().Addr)
	return nil
}

// Get returns the cached value for key. found is false on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return value, true, nil
}

// SetWithTTL stores value under key, expiring after ttl.
func (c *RedisCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ repositories.CacheStore = (*RedisCache)(nil)
