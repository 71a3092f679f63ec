package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/payments-bot/internal/jobs"
	"github.com/Proton-105/payments-bot/internal/notify"
)

// DepositRelay fans a deposit out to its organization's chats.
type DepositRelay interface {
	HandleDeposit(ctx context.Context, d notify.Deposit) (int, error)
}

type DepositHandler struct {
	relay DepositRelay
	log   *slog.Logger
}

func NewDepositHandler(relay DepositRelay, log *slog.Logger) *DepositHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DepositHandler{relay: relay, log: log}
}

// ProcessTask decodes the deposit and runs the fan-out. Malformed payloads are not retried.
func (h *DepositHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.DepositNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "deposit notify: failed to decode payload", slog.String("task_type", t.Type()), slog.String("error", err.Error()))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	delivered, err := h.relay.HandleDeposit(ctx, payload.Deposit)
	if err != nil {
		return err
	}

	h.log.InfoContext(ctx, "deposit fanned out",
		slog.String("org_id", payload.Deposit.OrganizationID),
		slog.Int("delivered", delivered),
	)
	return nil
}
