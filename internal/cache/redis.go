package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the production-shaped PositionCache for multi-process
// deployments, grounded on the same redis/go-redis/v9 client as
// internal/ratelimit's RedisLimiter.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Set(ctx context.Context, queueID, userIdentifier string, position int, ttl time.Duration) error {
	return c.client.Set(ctx, key(queueID, userIdentifier), strconv.Itoa(position), ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, queueID, userIdentifier string) (int, bool, error) {
	val, err := c.client.Get(ctx, key(queueID, userIdentifier)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	position, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return position, true, nil
}

func (c *RedisCache) Evict(ctx context.Context, queueID, userIdentifier string) error {
	return c.client.Del(ctx, key(queueID, userIdentifier)).Err()
}
