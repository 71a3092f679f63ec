// Package ratelimit throttles chats: sliding-window limits for inbound commands and a
// one-per-window throttle for outbound deposit notifications.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter describes a rate-limiting strategy interface.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// ErrLimitExceeded indicates the rate limit has been reached for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// ChatKey builds the limiter key of chatID within scope, e.g. "cmd:send:42".
func ChatKey(scope string, chatID int64) string {
	return fmt.Sprintf("%s:%d", scope, chatID)
}
