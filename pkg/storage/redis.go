package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient creates a Redis client and verifies connectivity
func NewRedisClient(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB >= 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// Cache is a small JSON read-through cache over Redis, used for the
// dashboard stats. A nil Cache is a no-op, so callers never need to
// branch on whether caching is enabled.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a cache with the given entry TTL
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get unmarshals the cached value into dest. Returns false on a miss;
// a Redis failure also reads as a miss so the caller falls through to
// the source of truth.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil {
		return false
	}

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return false
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		// Corrupt value; drop it
		c.client.Del(ctx, key)
		return false
	}
	return true
}

// Set stores a value under key for the cache TTL. Failures are ignored;
// the cache is never load-bearing.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	if c == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, data, c.ttl)
}

// Invalidate removes keys after a write
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	c.client.Del(ctx, keys...)
}
