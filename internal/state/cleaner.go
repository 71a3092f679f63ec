package state

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner expires flows that were left mid-way for longer than ttl.
// A zero ttl disables it and abandoned flows stay until the user acts.
type Cleaner struct {
	registry Registry
	log      *slog.Logger
	ttl      time.Duration
	interval time.Duration
	onExpire func(ctx context.Context, chatID int64, abandoned State)
	locker   Locker
	lockWait time.Duration
	now      func() time.Time
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(registry Registry, log *slog.Logger, ttl, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Cleaner{
		registry: registry,
		log:      log,
		ttl:      ttl,
		interval: interval,
		lockWait: time.Second,
		now:      time.Now,
	}
}

// OnExpire registers a callback invoked after a chat's abandoned flow has been cleared.
func (c *Cleaner) OnExpire(fn func(ctx context.Context, chatID int64, abandoned State)) {
	c.onExpire = fn
}

// UseLocker makes Sweep hold the chat lock while it re-checks and clears a chat, so a flow that
// moved on after the listing is left alone.
func (c *Cleaner) UseLocker(locker Locker) {
	c.locker = locker
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.registry == nil || c.ttl <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("state cleaner stopped", slog.Any("reason", ctx.Err()))
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep clears every active chat whose last update is older than ttl and returns how many were cleared.
func (c *Cleaner) Sweep(ctx context.Context) int {
	if ctx.Err() != nil || c.ttl <= 0 {
		return 0
	}

	states, err := c.registry.GetAllStates(ctx)
	if err != nil {
		c.log.Error("state cleaner list failed", slog.Any("error", err))
		return 0
	}

	cleared := 0
	cutoff := c.now().Add(-c.ttl)
	for _, st := range states {
		if st == nil || !st.Current.IsActive() || st.UpdatedAt.After(cutoff) {
			continue
		}

		abandoned, ok := c.expire(ctx, st.ChatID, cutoff)
		if !ok {
			continue
		}
		cleared++
		c.log.Info("abandoned flow cleared", slog.Int64("chat_id", st.ChatID), slog.String("state", string(abandoned)))

		if c.onExpire != nil {
			c.onExpire(ctx, st.ChatID, abandoned)
		}
	}

	return cleared
}

// expire clears chatID if its flow is still abandoned once the chat lock is held.
func (c *Cleaner) expire(ctx context.Context, chatID int64, cutoff time.Time) (State, bool) {
	if c.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, c.lockWait)
		unlock, err := c.locker.Lock(lockCtx, chatID)
		cancel()
		if err != nil {
			// A held lock means the chat is being served right now.
			c.log.Debug("state cleaner skipped busy chat", slog.Int64("chat_id", chatID), slog.Any("error", err))
			return "", false
		}
		defer unlock()
	}

	current, err := c.registry.GetChatState(ctx, chatID)
	if err != nil {
		c.log.Error("state cleaner failed to load chat", slog.Int64("chat_id", chatID), slog.Any("error", err))
		return "", false
	}
	if !current.Current.IsActive() || current.UpdatedAt.After(cutoff) {
		return "", false
	}

	if err := c.registry.ClearChat(ctx, chatID); err != nil {
		c.log.Error("state cleaner failed to clear chat", slog.Int64("chat_id", chatID), slog.Any("error", err))
		return "", false
	}
	return current.Current, true
}
