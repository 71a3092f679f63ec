package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/handlers"
	"github.com/Proton-105/payments-bot/internal/idempotency"
)

// DefaultIdempotencyTTL is how long a processed update is remembered.
const DefaultIdempotencyTTL = 24 * time.Hour

// Idempotency ensures handlers execute at most once per Telegram update. Telegram redelivers
// updates when a webhook response is lost; a redelivered transfer confirmation must not send
// funds twice.
func Idempotency(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) handlers.Middleware {
	if manager == nil {
		return func(next handlers.Handler) handlers.Handler {
			return next
		}
	}
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			key := extractIdempotencyKey(c)
			if key == "" {
				return next(c)
			}

			result, err := manager.Execute(context.Background(), key, ttl, func(context.Context) (interface{}, error) {
				return nil, next(c)
			})
			if err != nil {
				if errors.Is(err, idempotency.ErrRequestInProgress) {
					log.Debug("duplicate update while in progress", slog.String("key", key))
					return nil
				}
				return err
			}

			if result != nil && result.FromCache {
				log.Info("skipping already processed update", slog.String("key", key))
			}

			return nil
		}
	}
}

func extractIdempotencyKey(c telebot.Context) string {
	if c == nil {
		return ""
	}

	if u := c.Update(); u.ID != 0 {
		return idempotency.GenerateKey("update", u.ID)
	}

	if cb := c.Callback(); cb != nil && cb.ID != "" {
		return idempotency.GenerateKey("cb", cb.ID)
	}

	if msg := c.Message(); msg != nil && msg.ID != 0 {
		chatID := int64(0)
		if msg.Chat != nil {
			chatID = msg.Chat.ID
		}
		return idempotency.GenerateKey("msg", fmt.Sprint(chatID), msg.ID)
	}

	return ""
}
