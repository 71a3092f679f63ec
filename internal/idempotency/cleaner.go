package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner removes idempotency keys that lost their TTL or carry one longer than maxTTL.
type Cleaner struct {
	client   redis.Cmdable
	log      *slog.Logger
	interval time.Duration
	maxTTL   time.Duration
}

func NewCleaner(client redis.Cmdable, log *slog.Logger, interval, maxTTL time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if maxTTL <= 0 {
		maxTTL = 25 * time.Hour
	}

	return &Cleaner{
		client:   client,
		log:      log,
		interval: interval,
		maxTTL:   maxTTL,
	}
}

func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Sweep(ctx); removed > 0 {
				c.log.Info("removed stale idempotency keys", slog.Int("count", removed))
			}
		}
	}
}

// Sweep performs one pass and returns the number of deleted keys.
func (c *Cleaner) Sweep(ctx context.Context) int {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			c.log.Error("idempotency cleaner scan failed", slog.Any("error", err))
			return removed
		}

		for _, key := range keys {
			ttl, err := c.client.TTL(ctx, key).Result()
			if err != nil {
				c.log.Warn("failed to get key ttl", slog.String("key", key), slog.Any("error", err))
				continue
			}

			if ttl == -1 || ttl > c.maxTTL {
				if err := c.client.Del(ctx, key).Err(); err != nil {
					c.log.Warn("failed to delete stale idempotency key", slog.String("key", key), slog.Any("error", err))
					continue
				}
				removed++
			}
		}

		cursor = next
		if cursor == 0 {
			return removed
		}
	}
}
