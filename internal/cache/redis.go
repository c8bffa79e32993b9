// Package cache is the Redis layer behind stowbox. Each concern chooses its
// own failure mode: listing pages and rate limit buckets fail open, OTP
// challenges fail closed, and session records fall back to Postgres.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is absent or unreadable.
var ErrCacheMiss = errors.New("cache miss")

// PoolOptions size the Redis connection pool shared by listing reads,
// upload invalidations and login traffic.
type PoolOptions struct {
	Size        int
	MinIdle     int
	WaitTimeout time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.Size <= 0 {
		o.Size = 10
	}
	if o.MinIdle <= 0 || o.MinIdle > o.Size {
		o.MinIdle = min(2, o.Size)
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 4 * time.Second
	}
	return o
}

// Cache holds the Redis client. Key layouts live next to the methods that use them.
type Cache struct {
	client *redis.Client
}

// New connects to redisURL and pings it. Zero pool fields take defaults.
func New(ctx context.Context, redisURL string, pool PoolOptions) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	pool = pool.withDefaults()
	opt.PoolSize = pool.Size
	opt.MinIdleConns = pool.MinIdle
	opt.PoolTimeout = pool.WaitTimeout
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Ping backs the redis entry of /readyz.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the raw client to integration tests.
func (c *Cache) Client() *redis.Client {
	return c.client
}
