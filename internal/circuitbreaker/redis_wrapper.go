package circuitbreaker

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisWrapper guards a Redis client with a circuit breaker. A cache miss
// (redis.Nil) is a normal outcome, not a breaker failure.
type RedisWrapper struct {
	client *redis.Client
	cb     *Breaker
	logger *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper registered for metrics.
func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	cb := New("redis", RedisProfile(), logger)
	DefaultRegistry.Register("redis", "embedding-cache", cb)
	return &RedisWrapper{client: client, cb: cb, logger: logger}
}

// Get wraps Redis GET with the breaker.
func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var result *redis.StringCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Get(ctx, key)
		if result.Err() == redis.Nil {
			return nil
		}
		return result.Err()
	})

	ok := err == nil && (result == nil || result.Err() == nil || result.Err() == redis.Nil)
	DefaultRegistry.RecordRequest("redis", "embedding-cache", rw.cb.State(), ok)

	if err != nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Set wraps Redis SET with the breaker.
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var result *redis.StatusCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Set(ctx, key, value, expiration)
		return result.Err()
	})

	ok := err == nil && (result == nil || result.Err() == nil)
	DefaultRegistry.RecordRequest("redis", "embedding-cache", rw.cb.State(), ok)

	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Ping wraps Redis PING with the breaker.
func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd

	err := rw.cb.Execute(ctx, func() error {
		result = rw.client.Ping(ctx)
		return result.Err()
	})

	ok := err == nil && (result == nil || result.Err() == nil)
	DefaultRegistry.RecordRequest("redis", "embedding-cache", rw.cb.State(), ok)

	if err != nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// IsOpen reports whether the breaker is currently rejecting requests.
func (rw *RedisWrapper) IsOpen() bool {
	return rw.cb.State() == StateOpen
}

// Close closes the underlying client.
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}
