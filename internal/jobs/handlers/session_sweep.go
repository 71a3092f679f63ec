package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/payments-bot/internal/jobs"
)

// SessionPurger drops expired sessions.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// StateSweeper resets abandoned conversation states.
type StateSweeper interface {
	Sweep(ctx context.Context) int
}

type SessionSweepHandler struct {
	sessions SessionPurger
	states   StateSweeper
	log      *slog.Logger
}

// NewSessionSweepHandler creates the handler; states may be nil.
func NewSessionSweepHandler(sessions SessionPurger, states StateSweeper, log *slog.Logger) *SessionSweepHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SessionSweepHandler{sessions: sessions, states: states, log: log}
}

func (h *SessionSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.SessionSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	purged, err := h.sessions.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge sessions: %w", err)
	}

	reset := 0
	if payload.IdleStates && h.states != nil {
		reset = h.states.Sweep(ctx)
	}

	h.log.InfoContext(ctx, "session sweep finished", slog.Int("sessions_purged", purged), slog.Int("states_reset", reset))
	return nil
}
