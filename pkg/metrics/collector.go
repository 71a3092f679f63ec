package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Proton-105/payments-bot/internal/state"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_transitions_total",
			Help: "Total number of conversation state transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	activeChats = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_chats",
			Help: "Current number of chats with stored conversation state",
		},
	)
	chatsByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chats_by_state",
			Help: "Number of chats per conversation state",
		},
		[]string{"state"},
	)
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Transfers submitted to the payments API by kind and outcome",
		},
		[]string{"kind", "status"},
	)
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposit_notifications_total",
			Help: "Deposit notifications by outcome (sent, throttled, failed, dropped)",
		},
		[]string{"status"},
	)
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payments_api_request_duration_seconds",
			Help:    "Payments API request latency by endpoint and status class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)
)

func init() {
	state.RegisterTransitionRecorder(RecordStateTransition)
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(command, status).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordStateTransition tracks conversation transitions.
func RecordStateTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	stateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// RecordTransfer counts a transfer attempt. kind is email, wallet, bank or batch.
func RecordTransfer(kind string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	transfersTotal.WithLabelValues(kind, status).Inc()
}

// RecordNotification counts a deposit notification outcome.
func RecordNotification(status string) {
	notificationsTotal.WithLabelValues(status).Inc()
}

// ObserveAPIRequest records the latency of a payments API call.
func ObserveAPIRequest(endpoint string, statusCode int, duration time.Duration) {
	apiRequestDuration.WithLabelValues(endpoint, statusClass(statusCode)).Observe(duration.Seconds())
}

func statusClass(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// SetActiveChats updates the gauge for chats with stored state.
func SetActiveChats(count int) {
	activeChats.Set(float64(count))
}

// SetChatsByState updates the gauge for the given state.
func SetChatsByState(state string, count int) {
	if state == "" {
		state = "unknown"
	}

	chatsByState.WithLabelValues(state).Set(float64(count))
}

// StateLister is the part of the registry the collector needs.
type StateLister interface {
	GetAllStates(ctx context.Context) ([]*state.ChatState, error)
}

// StateCollector periodically gathers conversation state counts and emits gauge metrics.
type StateCollector struct {
	registry StateLister
	interval time.Duration
}

// NewStateCollector builds a metrics collector bound to the provided registry.
func NewStateCollector(registry StateLister) *StateCollector {
	return &StateCollector{registry: registry, interval: 10 * time.Second}
}

// Run polls the registry every 10 seconds, updating gauges until ctx is cancelled.
func (c *StateCollector) Run(ctx context.Context) {
	if c == nil || c.registry == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		_ = c.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

func (c *StateCollector) collect(ctx context.Context) error {
	states, err := c.registry.GetAllStates(ctx)
	if err != nil {
		return err
	}

	SetActiveChats(len(states))

	stateCounts := make(map[string]int, len(states))
	for _, st := range states {
		label := "unknown"
		if st != nil && st.Current != "" {
			label = string(st.Current)
		}
		stateCounts[label]++
	}

	chatsByState.Reset()

	for _, tracked := range state.All() {
		label := string(tracked)
		SetChatsByState(label, stateCounts[label])
		delete(stateCounts, label)
	}

	for label, count := range stateCounts {
		SetChatsByState(label, count)
	}

	return nil
}
