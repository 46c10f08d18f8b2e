package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a sliding-window-log limiter backed by a Redis sorted
// set per key (member = call id, score = call timestamp in millis),
// trimmed with ZREMRANGEBYSCORE and counted with ZCARD — the same
// pipeline idiom as the distributed-rate-limiter dataset's checkRedis,
// adapted to a strict sliding window instead of a token bucket.
//
// Per spec §4.2 the failure policy is fail-open: on any Redis error the
// call is allowed through and no budget is consumed (unlike a token-bucket
// fallback, nothing is written back once Redis is unreachable).
type RedisLimiter struct {
	client    *redis.Client
	overrides *SlidingWindowLimiter // reused purely for its override map
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		overrides: NewSlidingWindowLimiter(time.Now),
	}
}

func (l *RedisLimiter) zkey(key string) string { return fmt.Sprintf("ratelimit:{%s}", key) }

func (l *RedisLimiter) Allow(key string, limit int, window time.Duration) (Decision, error) {
	limit, window = l.overrides.effective(key, limit, window)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	now := time.Now()
	zkey := l.zkey(key)
	cutoff := now.Add(-window).UnixMilli()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, zkey, "-inf", fmt.Sprintf("%d", cutoff))
	countCmd := pipe.ZCard(ctx, zkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return failOpen(), nil
	}

	count, err := countCmd.Result()
	if err != nil {
		return failOpen(), nil
	}

	if int(count) >= limit {
		oldest, err := l.client.ZRangeWithScores(ctx, zkey, 0, 0).Result()
		resetAt := now.Add(window)
		if err == nil && len(oldest) == 1 {
			resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(window)
		}
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	member := fmt.Sprintf("%d-%d", now.UnixNano(), count)
	addPipe := l.client.TxPipeline()
	addPipe.ZAdd(ctx, zkey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	addPipe.PExpire(ctx, zkey, window+time.Second)
	if _, err := addPipe.Exec(ctx); err != nil {
		return failOpen(), nil
	}

	return Decision{Allowed: true, Remaining: limit - int(count) - 1, ResetAt: now.Add(window)}, nil
}

func (l *RedisLimiter) Info(key string, limit int, window time.Duration) (Decision, error) {
	limit, window = l.overrides.effective(key, limit, window)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	zkey := l.zkey(key)
	cutoff := time.Now().Add(-window).UnixMilli()
	count, err := l.client.ZCount(ctx, zkey, fmt.Sprintf("%d", cutoff), "+inf").Result()
	if err != nil {
		return failOpen(), nil
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: remaining > 0, Remaining: remaining, ResetAt: time.Now().Add(window)}, nil
}

func (l *RedisLimiter) Reset(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return l.client.Del(ctx, l.zkey(key)).Err()
}

func (l *RedisLimiter) SetLimit(key string, limit int, window time.Duration) error {
	return l.overrides.SetLimit(key, limit, window)
}

// failOpen is the fixed decision returned when the Redis backend cannot be
// reached: request proceeds, no budget consumed, remaining reported as
// unknown (-1) so callers don't render a misleading X-RateLimit-Remaining.
func failOpen() Decision {
	return Decision{Allowed: true, Remaining: -1}
}
