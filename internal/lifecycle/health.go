package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

var (
	errNotStarted   = errors.New("service is still starting")
	errShuttingDown = errors.New("service is shutting down")
)

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Probes tracks the process phase: not ready until MarkReady, unready again once
// MarkStopping is called so load balancers drain traffic before the bot stops.
type Probes struct {
	log      *slog.Logger
	ready    atomic.Bool
	stopping atomic.Bool
}

var _ HealthChecker = (*Probes)(nil)

// NewProbes creates a new Probes instance.
func NewProbes(log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{log: log}
}

// MarkReady flips readiness on once every component has started.
func (p *Probes) MarkReady() {
	p.ready.Store(true)
	p.log.Info("service is ready")
}

// MarkStopping flips readiness off at the beginning of shutdown.
func (p *Probes) MarkStopping() {
	p.stopping.Store(true)
	p.log.Info("service is stopping")
}

// Liveness fails only after shutdown has begun.
func (p *Probes) Liveness(context.Context) error {
	if p.stopping.Load() {
		return errShuttingDown
	}
	return nil
}

// Readiness reports whether the process accepts traffic.
func (p *Probes) Readiness(context.Context) error {
	switch {
	case p.stopping.Load():
		return errShuttingDown
	case !p.ready.Load():
		return errNotStarted
	default:
		p.log.Debug("readiness probe called")
		return nil
	}
}
