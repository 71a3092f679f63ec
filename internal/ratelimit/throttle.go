package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Throttle admits at most one event per chat per window. It backs the deposit notification
// relay so that a burst of deposits produces a single message.
type Throttle struct {
	limiter Limiter
	window  time.Duration
	scope   string
	log     *slog.Logger
}

// NewThrottle creates a Throttle over limiter. A non-positive window disables throttling.
func NewThrottle(limiter Limiter, scope string, window time.Duration, log *slog.Logger) *Throttle {
	if log == nil {
		log = slog.Default()
	}
	return &Throttle{limiter: limiter, window: window, scope: scope, log: log}
}

// Allow reports whether an event for chatID may go out now. Limiter failures fail open.
func (t *Throttle) Allow(ctx context.Context, chatID int64) bool {
	if t == nil || t.limiter == nil || t.window <= 0 {
		return true
	}

	result, err := t.limiter.Check(ctx, ChatKey(t.scope, chatID), 1, t.window)
	if err != nil {
		if errors.Is(err, ErrLimitExceeded) {
			return false
		}
		t.log.Warn("throttle check failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
		return true
	}
	return result.Allowed
}
