package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/handlers"
	"github.com/Proton-105/payments-bot/internal/conversation"
	"github.com/Proton-105/payments-bot/internal/i18n"
	"github.com/Proton-105/payments-bot/internal/ratelimit"
	"github.com/Proton-105/payments-bot/internal/state"
)

const rateLimitedFallback = "⏳ Too many requests. Please slow down and try again shortly."

// RateLimitMiddleware enforces per-chat rate limits for incoming Telegram updates, plus the
// stricter per-command limits of money-moving commands.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	i18n    *i18n.Manager
	log     *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, translations *i18n.Manager, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		i18n:    translations,
		log:     log,
	}
}

// Handle returns a telebot middleware that enforces the limits. A rejected callback is
// answered here with an alert since it never reaches the router.
func (m *RateLimitMiddleware) Handle(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if m.limiter == nil || m.rules == nil || c == nil || c.Sender() == nil {
			return next(c)
		}

		chatID := handlers.ChatID(c)
		if m.rules.IsWhitelisted(chatID) {
			return next(c)
		}

		ctx := context.Background()

		if limit, window, err := m.rules.GetPerUserLimit(); err != nil {
			m.log.Error("failed to load per-user rate limit", slog.Int64("chat_id", chatID), slog.Any("error", err))
		} else if !m.allow(ctx, ratelimit.ChatKey("user", chatID), limit, window) {
			m.log.Warn("rate limit exceeded", slog.Int64("chat_id", chatID))
			return m.reject(c)
		}

		if command := limitedCommand(c); command != "" {
			limit, window, err := m.rules.GetCommandLimit(command)
			switch {
			case errors.Is(err, ratelimit.ErrNoRule):
			case err != nil:
				m.log.Error("failed to load command rate limit", slog.String("command", command), slog.Any("error", err))
			case !m.allow(ctx, ratelimit.ChatKey("cmd:"+command, chatID), limit, window):
				m.log.Warn("command rate limit exceeded", slog.Int64("chat_id", chatID), slog.String("command", command))
				return m.reject(c)
			}
		}

		return next(c)
	}
}

// allow fails open on limiter errors other than an exceeded limit.
func (m *RateLimitMiddleware) allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	result, err := m.limiter.Check(ctx, key, limit, window)
	if err != nil {
		if errors.Is(err, ratelimit.ErrLimitExceeded) {
			return false
		}
		m.log.Warn("rate limiter error", slog.String("key", key), slog.Any("error", err))
		return true
	}
	return result == nil || result.Allowed
}

func (m *RateLimitMiddleware) reject(c telebot.Context) error {
	msg := i18n.Text(handlers.Translator(m.i18n, c), "messages.rate_limited", rateLimitedFallback)
	if c.Callback() != nil {
		return c.Respond(&telebot.CallbackResponse{Text: msg, ShowAlert: true})
	}
	return c.Send(msg)
}

// limitedCommand names the command an update starts, for per-command limits: "/send" and the
// "flow:send_email" button both count as "send".
func limitedCommand(c telebot.Context) string {
	if cb := c.Callback(); cb != nil {
		in := conversation.ParseCallback(cb.Data)
		if in.Action != conversation.ActionFlow {
			return ""
		}
		return flowCommand(state.Flow(in.Value))
	}

	text := strings.TrimSpace(c.Text())
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	return strings.TrimPrefix(commandWord(text), "/")
}

func flowCommand(flow state.Flow) string {
	switch flow {
	case state.FlowSendEmail, state.FlowSendWallet:
		return "send"
	case state.FlowWithdrawBank, state.FlowWithdrawWallet:
		return "withdraw"
	case state.FlowBulk:
		return "bulk"
	case state.FlowPaymentLink:
		return "paylink"
	default:
		return ""
	}
}
