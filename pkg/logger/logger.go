package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	slogsentry "github.com/samber/slog-sentry/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Proton-105/payments-bot/pkg/config"
)

// Level is shared by every logger built through New so the level can be changed at runtime.
var Level = new(slog.LevelVar)

// New builds the application logger: text or JSON output (optionally rotated through
// lumberjack), sensitive-field masking and, when enabled, Sentry forwarding of errors.
func New(cfg config.Config) *slog.Logger {
	SetLevel(cfg.Logger.Level)

	var out io.Writer = os.Stdout
	if cfg.Logger.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Logger.File,
			MaxSize:    cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAge:     cfg.Logger.MaxAgeDays,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: Level, AddSource: cfg.Logger.Level == "debug"}

	var base slog.Handler
	if strings.EqualFold(cfg.Logger.Format, "json") {
		base = slog.NewJSONHandler(out, opts)
	} else {
		base = slog.NewTextHandler(out, opts)
	}

	handler := slog.Handler(base)
	if cfg.Sentry.Enabled {
		sentryHandler := slogsentry.Option{Level: slog.LevelError, AddSource: true}.NewSentryHandler()
		handler = &fanoutHandler{handlers: []slog.Handler{base, sentryHandler}}
	}

	return slog.New(NewMaskingHandler(handler)).With(slog.String("env", cfg.AppEnv))
}

// SetLevel updates the shared level; unknown values fall back to info.
func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		Level.Set(slog.LevelDebug)
	case "warn", "warning":
		Level.Set(slog.LevelWarn)
	case "error":
		Level.Set(slog.LevelError)
	default:
		Level.Set(slog.LevelInfo)
	}
}

// fanoutHandler forwards records to every handler that accepts the level.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, next := range h.handlers {
		if next.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, next := range h.handlers {
		if !next.Enabled(ctx, record.Level) {
			continue
		}
		if err := next.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
