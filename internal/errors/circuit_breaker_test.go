package errors

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_TripsAndRecovers(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{MinRequests: 2, OpenTimeout: time.Minute, HalfOpenMaxRequests: 1})
	cb.now = func() time.Time { return now }

	failure := errors.New("upstream down")
	assert.ErrorIs(t, cb.Call(func() error { return failure }), failure)
	assert.ErrorIs(t, cb.Call(func() error { return failure }), failure)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_CountOnly(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{MinRequests: 2})
	cb.CountOnly(IsRetryable)

	rejected := NewAPIRequestError("payments", http.StatusBadRequest, "invalid")
	for i := 0; i < 5; i++ {
		assert.Error(t, cb.Call(func() error { return rejected }))
	}

	assert.Equal(t, StateClosed, cb.State())
}
