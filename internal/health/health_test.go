package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProbe struct {
	live  error
	ready error
}

func (p stubProbe) Liveness(context.Context) error { return p.live }
func (p stubProbe) Readiness(context.Context) error { return p.ready }

func TestCheckerCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	checker := NewChecker(nil)
	checker.AddCheck("redis", NewRedisChecker(client))
	checker.AddCheck("payments_api", CheckFunc(func(context.Context) error { return errors.New("connection refused") }))
	checker.AddCheck("telegram", NewTelegramChecker(nil))
	checker.AddCheck("", CheckFunc(func(context.Context) error { return nil }))

	results := checker.Check(context.Background())

	assert.Equal(t, []string{"payments_api", "redis", "telegram"}, checker.Names())
	assert.Equal(t, StatusOK, results["redis"])
	assert.Equal(t, "connection refused", results["payments_api"])
	assert.NotEqual(t, StatusOK, results["telegram"])
	assert.False(t, Healthy(results))
}

func TestCheckerTimeout(t *testing.T) {
	checker := NewChecker(nil)
	checker.timeout = 10 * time.Millisecond
	checker.AddCheck("slow", CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	results := checker.Check(context.Background())
	assert.Equal(t, context.DeadlineExceeded.Error(), results["slow"])
}

func TestHandler(t *testing.T) {
	healthy := NewChecker(nil)
	healthy.AddCheck("sessions", CheckFunc(func(context.Context) error { return nil }))

	failing := NewChecker(nil)
	failing.AddCheck("redis", CheckFunc(func(context.Context) error { return errors.New("down") }))

	testCases := []struct {
		name           string
		path           string
		checker        *Checker
		probe          Probe
		expectedCode   int
		expectedStatus string
	}{
		{name: "live", path: "/health", checker: failing, expectedCode: http.StatusOK, expectedStatus: "ok"},
		{name: "live while stopping", path: "/health", probe: stubProbe{live: errors.New("stopping")}, expectedCode: http.StatusServiceUnavailable, expectedStatus: "unavailable"},
		{name: "ready", path: "/ready", checker: healthy, probe: stubProbe{}, expectedCode: http.StatusOK, expectedStatus: "ok"},
		{name: "degraded", path: "/ready", checker: failing, expectedCode: http.StatusServiceUnavailable, expectedStatus: "degraded"},
		{name: "not started", path: "/ready", checker: healthy, probe: stubProbe{ready: errors.New("starting")}, expectedCode: http.StatusServiceUnavailable, expectedStatus: "not_ready"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.checker, tc.probe, nil).Mount(r)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))

			assert.Equal(t, tc.expectedCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.expectedStatus, body.Status)
			assert.False(t, body.Timestamp.IsZero())
		})
	}
}
