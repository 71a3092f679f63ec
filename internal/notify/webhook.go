package notify

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const (
	webhookSecretHeader = "X-Webhook-Secret"
	maxWebhookBody      = 64 << 10
)

// Enqueuer defers deposit fan-out to a background queue.
type Enqueuer interface {
	EnqueueDeposit(ctx context.Context, d Deposit) error
}

// WebhookHandler accepts deposit events pushed by the payments platform.
type WebhookHandler struct {
	relay  *Relay
	queue  Enqueuer
	secret string
	log    *slog.Logger
}

// NewWebhookHandler creates the handler. An empty secret disables the shared-secret check;
// a nil queue fans out inline.
func NewWebhookHandler(relay *Relay, queue Enqueuer, secret string, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{relay: relay, queue: queue, secret: secret, log: log}
}

// Mount registers the handler on r at path.
func (h *WebhookHandler) Mount(r chi.Router, path string) {
	r.Post(path, h.ServeHTTP)
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(webhookSecretHeader)), []byte(h.secret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid secret"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	deposit, err := ParseEvent(body)
	switch {
	case errors.Is(err, ErrUnsupportedEvent):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	case err != nil:
		h.log.Warn("rejected deposit webhook", slog.Any("error", err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if h.queue != nil {
		if err := h.queue.EnqueueDeposit(r.Context(), deposit); err != nil {
			h.log.Error("failed to enqueue deposit", slog.String("org_id", deposit.OrganizationID), slog.Any("error", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	delivered, err := h.relay.HandleDeposit(r.Context(), deposit)
	if err != nil {
		h.log.Error("deposit fan-out failed", slog.String("org_id", deposit.OrganizationID), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "fan-out failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "delivered": delivered})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
