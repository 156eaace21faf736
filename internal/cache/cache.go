// Package cache provides a small Redis-backed JSON cache. A nil *Cache
// is valid and behaves as a cache that never hits, so callers do not
// need to special-case deployments without Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nitemap/nitemap/internal/logging"
)

// ErrMiss is returned when a key is absent.
var ErrMiss = errors.New("cache: miss")

// Cache wraps a Redis client with JSON encoding.
type Cache struct {
	client *redis.Client
	log    *logging.Logger
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and verifies the connection. An empty address
// returns a nil cache.
func New(ctx context.Context, cfg Config, log *logging.Logger) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Cache{client: client, log: log.WithComponent("cache")}, nil
}

// Get unmarshals the cached value for key into dest. Returns ErrMiss
// when the key is absent or the cache is disabled.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if c == nil {
		return ErrMiss
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Set stores value under key with the given TTL. Failures are logged
// and swallowed; the cache is advisory.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if c == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.log.WithError(err).Warnf("marshal %s", key)
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.WithError(err).Warnf("set %s", key)
	}
}

// Invalidate removes the given keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).Warnf("invalidate %v", keys)
	}
}

// Close releases the underlying connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
