package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Probe reports process-level liveness and readiness, independent of dependencies.
type Probe interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

type response struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Error      string            `json:"error,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// Handler serves /health and /ready.
type Handler struct {
	checker *Checker
	probe   Probe
	log     *slog.Logger
	now     func() time.Time
}

// NewHandler builds the probe endpoints. probe may be nil.
func NewHandler(checker *Checker, probe Probe, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		checker: checker,
		probe:   probe,
		log:     log,
		now:     time.Now,
	}
}

// Mount registers the probe routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/health", h.Live)
	r.Get("/ready", h.Ready)
}

// Live answers the liveness probe.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	body := response{Status: "ok", Timestamp: h.now().UTC()}
	status := http.StatusOK

	if h.probe != nil {
		if err := h.probe.Liveness(r.Context()); err != nil {
			body.Status, body.Error = "unavailable", err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	h.write(w, status, body)
}

// Ready answers the readiness probe with one status per registered component.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	body := response{Status: "ok", Timestamp: h.now().UTC()}
	status := http.StatusOK

	if h.probe != nil {
		if err := h.probe.Readiness(r.Context()); err != nil {
			body.Status, body.Error = "not_ready", err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	if h.checker != nil {
		body.Components = h.checker.Check(r.Context())
		if !Healthy(body.Components) {
			if status == http.StatusOK {
				body.Status = "degraded"
			}
			status = http.StatusServiceUnavailable
		}
	}

	h.write(w, status, body)
}

func (h *Handler) write(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("failed to write probe response", slog.Any("error", err))
	}
}
