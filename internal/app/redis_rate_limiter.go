package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitScript admits or denies atomically. A denied request does not
// consume a slot, so hammering a full window never pushes the reset further
// out. Returns {allowed, used, ttl_ms}.
var rateLimitScript = redis.NewScript(`
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[2])
if used >= limit then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    ttl = tonumber(ARGV[1])
  end
  return {0, used, ttl}
end
used = redis.call("INCR", KEYS[1])
if used == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {1, used, ttl}
`)

// RateDecision is the outcome of one admission check.
type RateDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RedisRateLimiter implements distributed fixed-window rate limiting using
// Redis. It guards the payment initiation and public tracking endpoints.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "bukafresh:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisRateLimiter{
		client: client,
		prefix: trimmedPrefix,
	}
}

// Allow checks whether (scope, subject) may make one more request within the
// window and consumes a slot if so. A nil limiter, nil client, or non-positive
// limit admits everything.
func (r *RedisRateLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateDecision, error) {
	admitAll := RateDecision{Allowed: true, Remaining: limit}
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return admitAll, nil
	}

	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return admitAll, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)
	raw, err := rateLimitScript.Run(ctx, r.client, []string{key}, windowMs, limit).Result()
	if err != nil {
		return RateDecision{}, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return RateDecision{}, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	allowed, okAllowed := values[0].(int64)
	used, okUsed := values[1].(int64)
	ttlMs, okTTL := values[2].(int64)
	if !okAllowed || !okUsed || !okTTL {
		return RateDecision{}, fmt.Errorf("unexpected redis limiter reply types: %v", values)
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	remaining := limit - int(used)
	if remaining < 0 {
		remaining = 0
	}
	retryAfter := time.Duration(ttlMs) * time.Millisecond
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	return RateDecision{
		Allowed:    allowed == 1,
		Remaining:  remaining,
		RetryAfter: retryAfter,
	}, nil
}
