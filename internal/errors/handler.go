package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/payments-bot/pkg/logger"
)

// Handler logs application errors, forwards severe ones to Sentry and
// resolves the message that is safe to show in a chat.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
	// observe, when set, receives the type and severity of every handled error.
	observe func(errType, severity string)
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// OnError registers an observer, used to feed error metrics.
func (h *Handler) OnError(fn func(errType, severity string)) {
	if h == nil {
		return
	}
	h.observe = fn
}

// Handle returns the user-facing message for err and whether the failure is retryable.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}

	if ctx == nil {
		ctx = context.Background()
	}

	log := slog.Default()
	if h != nil && h.log != nil {
		log = h.log
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		attrs := []slog.Attr{
			slog.String("code", appErr.Code),
			slog.String("message", appErr.Message),
			slog.String("severity", string(appErr.Severity)),
			slog.Bool("retryable", appErr.Retryable),
		}
		if appErr.StatusCode != 0 {
			attrs = append(attrs, slog.Int("status_code", appErr.StatusCode))
		}
		if cause := appErr.Unwrap(); cause != nil {
			attrs = append(attrs, slog.String("cause", cause.Error()))
		}

		if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
			attrs = append(attrs, slog.String("correlation_id", correlationID))
		}

		log.Error("application error", attrsToArgs(attrs)...)
		h.record(appErr.Code, string(appErr.Severity))

		if h != nil && h.sentryEnabled && (appErr.Severity == SeverityCritical || appErr.Severity == SeverityHigh) {
			h.sendToSentry(err)
		}

		userMessage := appErr.UserMessage
		if userMessage == "" {
			userMessage = DefaultUserMessage
		}

		return userMessage, appErr.Retryable
	}

	attrs := []slog.Attr{
		slog.String("message", err.Error()),
		slog.String("severity", string(SeverityHigh)),
		slog.Bool("retryable", false),
	}

	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	log.Error("unknown error", attrsToArgs(attrs)...)
	h.record("unknown", string(SeverityHigh))

	if h != nil && h.sentryEnabled {
		h.sendToSentry(err)
	}

	return DefaultUserMessage, false
}

func (h *Handler) record(errType, severity string) {
	if h == nil || h.observe == nil {
		return
	}
	h.observe(errType, severity)
}

func (h *Handler) sendToSentry(err error) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr != nil {
			if appErr.Code != "" {
				scope.SetTag("code", appErr.Code)
			}

			if appErr.Severity != "" {
				scope.SetTag("severity", string(appErr.Severity))
			}
		}

		sentry.CaptureException(err)
	})
}

func attrsToArgs(attrs []slog.Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}

	return args
}
