package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:"

// RedisLimiter implements Limiter using Redis sorted sets and a sliding window, so that
// several bot instances share one budget per chat.
type RedisLimiter struct {
	client redis.Cmdable
	log    *slog.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Redis-backed Limiter implementation.
func NewRedisLimiter(client redis.Cmdable, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &RedisLimiter{
		client: client,
		log:    log,
	}
}

// Check evaluates the rate limit for a given key using a sliding window algorithm.
// Rejected attempts are not recorded, so a chat that keeps retrying is admitted again as soon
// as the oldest accepted request leaves the window.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l.client == nil {
		return nil, errors.New("redis client is not configured for rate limiting")
	}

	now := time.Now()
	if limit <= 0 {
		return &Result{Allowed: false, Remaining: 0, ResetAt: now.Add(window)}, nil
	}

	windowStart := now.Add(-window)
	redisKey := redisKeyPrefix + key

	cutoff := float64(windowStart.UnixNano()) / float64(time.Millisecond)
	score := float64(now.UnixNano()) / float64(time.Millisecond)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("(%f", cutoff))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Error("rate limiter pipeline failed", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	count := int(countCmd.Val())
	if count >= limit {
		return &Result{Allowed: false, Remaining: 0, ResetAt: now.Add(window)}, nil
	}

	pipe = l.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: score, Member: uuid.NewString()})
	pipe.Expire(ctx, redisKey, window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Error("rate limiter failed to record request", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	return &Result{
		Allowed:   true,
		Remaining: limit - count - 1,
		ResetAt:   now.Add(window),
	}, nil
}
