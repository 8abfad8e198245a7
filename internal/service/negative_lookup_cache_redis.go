package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sandeepkv93/special-access-gate/internal/security"
)

// RedisNegativeLookupCache versions its keys with a generation counter; Forget bumps the
// generation so every older entry becomes unreachable and ages out on its TTL.
type RedisNegativeLookupCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisNegativeLookupCache(client redis.UniversalClient, prefix string) *RedisNegativeLookupCache {
	if prefix == "" {
		prefix = "special_access:missing_token"
	}
	return &RedisNegativeLookupCache{client: client, prefix: prefix}
}

func (c *RedisNegativeLookupCache) IsKnownMissing(ctx context.Context, token string) (bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return false, err
	}
	n, err := c.client.Exists(ctx, c.dataKey(gen, token)).Result()
	if err != nil {
		return false, fmt.Errorf("read negative lookup: %w", err)
	}
	return n > 0, nil
}

func (c *RedisNegativeLookupCache) RememberMissing(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.dataKey(gen, token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("write negative lookup: %w", err)
	}
	return nil
}

func (c *RedisNegativeLookupCache) Forget(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("bump negative lookup generation: %w", err)
	}
	return nil
}

func (c *RedisNegativeLookupCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read negative lookup generation: %w", err)
	}
	return gen, nil
}

func (c *RedisNegativeLookupCache) generationKey() string { return c.prefix + ":gen" }

func (c *RedisNegativeLookupCache) dataKey(gen int64, token string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, security.Fingerprint(token))
}
