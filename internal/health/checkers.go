package health

import (
	"context"
	"errors"

	"github.com/hopline-ai/hopline/internal/circuitbreaker"
)

// FuncChecker adapts a plain probe function into a Checker.
type FuncChecker struct {
	name     string
	critical bool
	probe    func(ctx context.Context) error
}

// NewFuncChecker wraps probe as a named check.
func NewFuncChecker(name string, critical bool, probe func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, critical: critical, probe: probe}
}

func (c *FuncChecker) Name() string                    { return c.name }
func (c *FuncChecker) Critical() bool                  { return c.critical }
func (c *FuncChecker) Check(ctx context.Context) error { return c.probe(ctx) }

// RedisChecker probes the embedding cache. Reports unhealthy while its
// circuit breaker is open without sending traffic through it.
type RedisChecker struct {
	wrapper *circuitbreaker.RedisWrapper
}

// NewRedisChecker creates the Redis reachability check.
func NewRedisChecker(wrapper *circuitbreaker.RedisWrapper) *RedisChecker {
	return &RedisChecker{wrapper: wrapper}
}

func (c *RedisChecker) Name() string   { return "redis" }
func (c *RedisChecker) Critical() bool { return false }

func (c *RedisChecker) Check(ctx context.Context) error {
	if c.wrapper.IsOpen() {
		return errors.New("circuit breaker open")
	}
	return c.wrapper.Ping(ctx).Err()
}
