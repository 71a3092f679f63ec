package middleware

import (
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/handlers"
	"github.com/Proton-105/payments-bot/internal/bot/keyboard"
	"github.com/Proton-105/payments-bot/pkg/metrics"
)

// Metrics measures execution time and status for bot handlers, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		status := "ok"
		if err != nil {
			status = "error"
		}

		metrics.RecordCommand(extractCommandName(c), status, time.Since(start))

		return err
	}
}

// extractCommandName returns a low-cardinality label: the command word, the callback action,
// or "text" for free text.
func extractCommandName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if cb := c.Callback(); cb != nil {
		if action, _, err := keyboard.DecodeCallback(cb.Data); err == nil {
			return "callback:" + action
		}
		return "callback"
	}

	text := strings.TrimSpace(c.Text())
	if strings.HasPrefix(text, "/") {
		return commandWord(text)
	}
	if text != "" {
		return "text"
	}

	return "unknown"
}

func commandWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return strings.ToLower(name)
}
