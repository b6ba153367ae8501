package redis

import (
	"context"
	"fmt"
	"time"

	"listing-discovery/common/config"

	"github.com/go-redis/redis/v8"
)

// Client alias so callers do not import go-redis for the type
type Client = redis.Client

// NewRedisClient builds a lazily-dialing client. Timeouts are short and
// retries capped at one: callers treat Redis as a cache and fall back to
// their store rather than wait on it.
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return redis.NewClient(opts)
}

// WaitReady pings until the server answers or attempts run out.
// Meant for startup only.
func WaitReady(ctx context.Context, client *redis.Client, attempts int, interval time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return nil
		}
		if i == attempts {
			break
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("redis %s not ready after %d attempts: %w", client.Options().Addr, attempts, lastErr)
}

// Close is nil-safe
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
