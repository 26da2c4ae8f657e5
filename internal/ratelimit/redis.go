package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gamecatalog/internal/metrics"
)

const tokenBucketLua = `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 or burst <= 0 then
  return {1, 0, burst}
end

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil then
  tokens = burst
end
if ts == nil then
  ts = now
end

local delta = math.max(0, now - ts)
local refill = (delta * rate) / 1000.0
tokens = math.min(burst, tokens + refill)

local allowed = tokens >= requested
local wait_ms = 0
if allowed then
  tokens = tokens - requested
else
  wait_ms = math.ceil((requested - tokens) * 1000.0 / rate)
end

redis.call("HMSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, math.ceil((burst / rate) * 1000.0 * 2))

return {allowed and 1 or 0, wait_ms, tokens}
`

// RedisLimiter is a token bucket stored in Redis so the web server and the
// maintenance CLI draw from the same provider budget.
type RedisLimiter struct {
	rdb    *redis.Client
	key    string
	rate   float64
	burst  float64
	logger *zap.Logger
	script *redis.Script
}

// NewRedisLimiter allows one call per minInterval (rate = 1/minInterval
// tokens per second) with the given burst.
func NewRedisLimiter(rdb *redis.Client, logger *zap.Logger, key string, minInterval time.Duration, burst int) *RedisLimiter {
	if key == "" {
		key = "gamecatalog:ratelimit:providers"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := 0.0
	if minInterval > 0 {
		r = float64(time.Second) / float64(minInterval)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RedisLimiter{
		rdb:    rdb,
		key:    key,
		rate:   r,
		burst:  float64(burst),
		logger: logger,
		script: redis.NewScript(tokenBucketLua),
	}
}

func (r *RedisLimiter) Wait(ctx context.Context) error {
	if r == nil || r.rdb == nil || r.rate <= 0 {
		return nil
	}

	const jitterMax = 10 * time.Millisecond
	start := time.Now()
	for {
		allowed, waitMs, err := r.tryAcquire(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("%w: %w", ErrRateLimitTimeout, ctxErr)
			}
			return err
		}
		if allowed {
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			return nil
		}

		wait := time.Duration(waitMs) * time.Millisecond
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		wait += time.Duration(rand.Int64N(int64(jitterMax)))

		if err := Sleep(ctx, wait); err != nil {
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			r.logger.Debug("rate limit wait cancelled", zap.String("key", r.key), zap.Duration("waited", time.Since(start)))
			return fmt.Errorf("%w: %w", ErrRateLimitTimeout, err)
		}
	}
}

func (r *RedisLimiter) tryAcquire(ctx context.Context) (bool, int64, error) {
	now := time.Now().UnixMilli()
	res, err := r.script.Run(ctx, r.rdb, []string{r.key}, r.rate, r.burst, now, 1).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit eval: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("ratelimit invalid result")
	}

	allowed := toInt64(values[0]) == 1
	waitMs := toInt64(values[1])
	return allowed, waitMs, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if t == "" {
			return 0
		}
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
