package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// registerFailureScript counts a failure inside the current window and converts the key into
// a lockout once the limit is hit. Returns the lockout remaining in milliseconds.
var registerFailureScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local lockout = tonumber(ARGV[3])
local limit = tonumber(ARGV[4])

local locked = tonumber(redis.call('HGET', key, 'locked_until_ms') or '0') or 0
if locked > now then
  return locked - now
end

local start = tonumber(redis.call('HGET', key, 'window_start_ms') or '0') or 0
local failures = tonumber(redis.call('HGET', key, 'failures') or '0') or 0
if start == 0 or now - start > window then
  start = now
  failures = 0
end
failures = failures + 1

local ttl = window
if lockout > ttl then ttl = lockout end

if failures >= limit then
  redis.call('HSET', key, 'failures', 0, 'window_start_ms', 0, 'locked_until_ms', now + lockout)
  redis.call('PEXPIRE', key, ttl)
  return lockout
end
redis.call('HSET', key, 'failures', failures, 'window_start_ms', start, 'locked_until_ms', 0)
redis.call('PEXPIRE', key, ttl)
return 0
`)

type RedisPasskeyAttemptGuard struct {
	client redis.UniversalClient
	prefix string
	policy PasskeyAttemptPolicy
	now    func() time.Time
}

func NewRedisPasskeyAttemptGuard(client redis.UniversalClient, prefix string, policy PasskeyAttemptPolicy) *RedisPasskeyAttemptGuard {
	if prefix == "" {
		prefix = "special_access:passkey_attempts"
	}
	return &RedisPasskeyAttemptGuard{client: client, prefix: prefix, policy: policy.normalized(), now: time.Now}
}

func (g *RedisPasskeyAttemptGuard) Check(ctx context.Context, ip, token string) (time.Duration, error) {
	var longest time.Duration
	for _, c := range attemptCounters(g.policy, ip, token) {
		remaining, err := g.lockedFor(ctx, g.key(c.subject))
		if err != nil {
			return 0, err
		}
		if remaining > longest {
			longest = remaining
		}
	}
	return longest, nil
}

func (g *RedisPasskeyAttemptGuard) lockedFor(ctx context.Context, key string) (time.Duration, error) {
	raw, err := g.client.HGet(ctx, key, "locked_until_ms").Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read passkey attempt state: %w", err)
	}
	lockedUntil, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse passkey attempt state: %w", err)
	}
	if remaining := lockedUntil - g.now().UnixMilli(); remaining > 0 {
		return time.Duration(remaining) * time.Millisecond, nil
	}
	return 0, nil
}

func (g *RedisPasskeyAttemptGuard) RegisterFailure(ctx context.Context, ip, token string) (time.Duration, error) {
	var longest time.Duration
	for _, c := range attemptCounters(g.policy, ip, token) {
		ms, err := registerFailureScript.Run(ctx, g.client, []string{g.key(c.subject)},
			g.now().UnixMilli(),
			g.policy.Window.Milliseconds(),
			g.policy.Lockout.Milliseconds(),
			c.limit,
		).Int64()
		if err != nil {
			return 0, fmt.Errorf("register passkey failure: %w", err)
		}
		if d := time.Duration(ms) * time.Millisecond; d > longest {
			longest = d
		}
	}
	return longest, nil
}

func (g *RedisPasskeyAttemptGuard) Reset(ctx context.Context, ip, token string) error {
	counters := attemptCounters(g.policy, ip, token)
	return g.client.Del(ctx, g.key(counters[0].subject), g.key(counters[1].subject)).Err()
}

func (g *RedisPasskeyAttemptGuard) key(subject string) string {
	return fmt.Sprintf("%s:%s", g.prefix, subject)
}
