package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript performs the whole admission check server-side so that
// concurrent checks for the same key cannot read a stale count: prune the
// window, count, and conditionally record in one atomic step. Returns
// {allowed, remaining, resetAtMillis}.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  return {1, limit - count - 1, now + window}
end

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {0, 0, reset}
`)

type redisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// Option configures a redis limiter.
type Option func(*redisLimiter)

// WithClock overrides the limiter's time source. Tests use it to move the
// sliding window deterministically.
func WithClock(now func() time.Time) Option {
	return func(l *redisLimiter) { l.now = now }
}

// NewRedisLimiter creates a sliding-window Limiter allowing limit
// admissions per rolling window, keyed per user. Each admission is recorded
// in a sorted set scored by its millisecond timestamp; entries older than
// the window are discarded on every check, so the window slides
// continuously rather than resetting on calendar boundaries.
func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration, opts ...Option) Limiter {
	l := &redisLimiter{rdb: rdb, limit: limit, window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *redisLimiter) key(userID string) string { return "ratelimit:" + userID }

func (l *redisLimiter) Allow(ctx context.Context, userID string) (Result, error) {
	now := l.now()

	raw, err := admitScript.Run(ctx, l.rdb, []string{l.key(userID)},
		now.UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 3 {
		return Result{}, fmt.Errorf("rate limit check failed: unexpected reply %v", raw)
	}
	allowed, _ := reply[0].(int64)
	remaining, _ := reply[1].(int64)
	resetAt, _ := reply[2].(int64)

	return Result{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetAt:   time.UnixMilli(resetAt),
	}, nil
}
