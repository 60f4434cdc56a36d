package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("ratelimit")

const keyPrefix = "ratelimit:"

// fixedWindowScript increments the counter and starts the window on the
// first hit. Returns {count, pttl}.
var fixedWindowScript = redis.NewScript(`
-- KEYS[1] = counter key
-- ARGV[1] = window_ms (int)
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisConfig controls the limiter's Redis client. Zero timeouts take
// defaults.
type RedisConfig struct {
	Addr         string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PingTimeout  time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 20
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis creates a client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// RedisLimiter is a fixed-window limiter shared by every replica. The
// increment and the window start run atomically in one Lua script.
type RedisLimiter struct {
	rdb    redis.Scripter
	limit  int
	period time.Duration
}

// NewRedisLimiter allows limit requests per key every period.
func NewRedisLimiter(rdb redis.Scripter, limit int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, period: period}
}

// Allow counts one request for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (domain.RateDecision, error) {
	ctx, span := tracer.Start(ctx, "RedisLimiter.Allow")
	defer span.End()
	span.SetAttributes(attribute.String("ratelimit.key", key))

	res, err := fixedWindowScript.Run(ctx, l.rdb, []string{keyPrefix + key}, l.period.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.RateDecision{}, &domain.ErrExternalService{Service: "redis", Err: err}
	}
	if len(res) != 2 {
		return domain.RateDecision{}, &domain.ErrExternalService{
			Service: "redis",
			Err:     fmt.Errorf("unexpected script result %v", res),
		}
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if count > l.limit {
		return domain.RateDecision{Allowed: false, Limit: l.limit, RetryAfter: ttl}, nil
	}
	return domain.RateDecision{Allowed: true, Limit: l.limit, Remaining: l.limit - count}, nil
}
