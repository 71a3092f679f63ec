package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner periodically scans Redis rate-limit keys and removes stale entries.
type Cleaner struct {
	client   redis.Cmdable
	log      *slog.Logger
	interval time.Duration
	maxAge   time.Duration
}

// NewCleaner constructs a Cleaner. Entries older than maxAge are dropped.
func NewCleaner(client redis.Cmdable, log *slog.Logger, interval, maxAge time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}

	return &Cleaner{
		client:   client,
		log:      log,
		interval: interval,
		maxAge:   maxAge,
	}
}

// Run starts the cleaner loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.client == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("rate limit cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			if removed := c.Sweep(ctx); removed > 0 {
				c.log.Info("rate limit keys cleaned", slog.Int("keys_removed", removed))
			}
		}
	}
}

// Sweep trims expired entries and deletes keys left empty. It returns the number of keys deleted.
func (c *Cleaner) Sweep(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}

	const scanCount = 100

	cutoff := float64(time.Now().Add(-c.maxAge).UnixNano()) / float64(time.Millisecond)
	var cursor uint64
	cleaned := 0

	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, redisKeyPrefix+"*", scanCount).Result()
		if err != nil {
			c.log.Error("rate limit scan failed", slog.Any("error", err))
			return cleaned
		}

		for _, key := range keys {
			pipe := c.client.TxPipeline()
			pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%f", cutoff))
			cardCmd := pipe.ZCard(ctx, key)
			if _, err := pipe.Exec(ctx); err != nil {
				c.log.Warn("cleanup pipeline failed", slog.String("key", key), slog.Any("error", err))
				continue
			}

			if cardCmd.Val() == 0 {
				if err := c.client.Del(ctx, key).Err(); err != nil {
					c.log.Warn("failed to delete empty rate limit key", slog.String("key", key), slog.Any("error", err))
					continue
				}
				cleaned++
			}
		}

		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}

	return cleaned
}
