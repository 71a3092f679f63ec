package errors

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestWithRetryPolicy(t *testing.T) {
	testCases := []struct {
		name          string
		errs          []error
		expectedCalls int
		expectErr     bool
	}{
		{
			name:          "succeeds first try",
			errs:          []error{nil},
			expectedCalls: 1,
		},
		{
			name:          "retries 5xx then succeeds",
			errs:          []error{NewExternalAPIError("payments", http.StatusBadGateway, nil), nil},
			expectedCalls: 2,
		},
		{
			name:          "4xx is not retried",
			errs:          []error{NewAPIRequestError("payments", http.StatusBadRequest, "bad amount")},
			expectedCalls: 1,
			expectErr:     true,
		},
		{
			name: "gives up at ceiling",
			errs: []error{
				NewNetworkError("payments", errors.New("timeout")),
				NewNetworkError("payments", errors.New("timeout")),
				NewNetworkError("payments", errors.New("timeout")),
				NewNetworkError("payments", errors.New("timeout")),
				nil,
			},
			expectedCalls: 4,
			expectErr:     true,
		},
		{
			name:          "plain errors are not retried",
			errs:          []error{errors.New("boom")},
			expectedCalls: 1,
			expectErr:     true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := WithRetryPolicy(context.Background(), fastPolicy(), func() error {
				e := tc.errs[calls]
				calls++
				return e
			})

			assert.Equal(t, tc.expectedCalls, calls)
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithRetryPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := fastPolicy()
	policy.InitialBackoff = time.Hour
	policy.MaxBackoff = time.Hour
	policy.OnRetry = func(int, error, time.Duration) { cancel() }

	err := WithRetryPolicy(ctx, policy, func() error {
		return NewExternalAPIError("payments", http.StatusTooManyRequests, nil)
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 100*time.Millisecond, policy.backoff(1))
	assert.Equal(t, 200*time.Millisecond, policy.backoff(2))
	assert.Equal(t, 300*time.Millisecond, policy.backoff(3))
}
