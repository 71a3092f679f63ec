package redis

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	goredis "github.com/redis/go-redis/v9"
)

var (
	redisRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_requests_total",
			Help: "Total number of Redis requests by method.",
		},
		[]string{"method"},
	)
	redisErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total number of Redis errors by method.",
		},
		[]string{"method"},
	)
	redisRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_request_duration_seconds",
			Help:    "Redis request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// MetricsHook records per-command counters and latency. redis.Nil is not counted as an error.
type MetricsHook struct{}

var _ goredis.Hook = MetricsHook{}

// DialHook passes dials through untouched.
func (MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

// ProcessHook instruments single commands.
func (MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		method := strings.ToLower(cmd.Name())
		timer := prometheus.NewTimer(redisRequestDuration.WithLabelValues(method))
		err := next(ctx, cmd)
		timer.ObserveDuration()

		redisRequestsTotal.WithLabelValues(method).Inc()
		if err != nil && !errors.Is(err, goredis.Nil) {
			redisErrorsTotal.WithLabelValues(method).Inc()
		}
		return err
	}
}

// ProcessPipelineHook instruments pipelines and transactions as a single "pipeline" method.
func (MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		timer := prometheus.NewTimer(redisRequestDuration.WithLabelValues("pipeline"))
		err := next(ctx, cmds)
		timer.ObserveDuration()

		redisRequestsTotal.WithLabelValues("pipeline").Inc()
		if err != nil && !errors.Is(err, goredis.Nil) {
			redisErrorsTotal.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}
