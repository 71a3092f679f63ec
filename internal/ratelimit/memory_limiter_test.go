package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/payments-bot/pkg/config"
)

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Check(ctx, "k", 2, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)
	assert.Equal(t, now.Add(time.Minute), result.ResetAt)

	now = now.Add(time.Minute)
	result, err = limiter.Check(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = func() time.Time { return now }

	_, err := limiter.Check(context.Background(), "idle", 5, time.Minute)
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = limiter.Check(context.Background(), "busy", 5, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 1, limiter.Cleanup(10*time.Minute))
	assert.Len(t, limiter.buckets, 1)
}

func TestThrottle_OnePerWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = func() time.Time { return now }

	throttle := NewThrottle(limiter, "deposit", 5*time.Second, testLogger())
	ctx := context.Background()

	assert.True(t, throttle.Allow(ctx, 1))
	assert.False(t, throttle.Allow(ctx, 1))
	assert.True(t, throttle.Allow(ctx, 2), "chats are throttled independently")

	now = now.Add(5 * time.Second)
	assert.True(t, throttle.Allow(ctx, 1))

	var disabled *Throttle
	assert.True(t, disabled.Allow(ctx, 1))
}

func TestRules(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		PerUser: config.RateLimitRule{Limit: 30, Window: "1m"},
		Commands: map[string]config.RateLimitRule{
			"send": {Limit: 10, Window: "1m"},
			"bulk": {Limit: 3, Window: "bogus"},
		},
		Whitelist: []int64{99},
	})

	testCases := []struct {
		name       string
		command    string
		wantLimit  int
		wantWindow time.Duration
		wantErr    bool
	}{
		{name: "configured", command: "send", wantLimit: 10, wantWindow: time.Minute},
		{name: "slash prefix", command: "/Send", wantLimit: 10, wantWindow: time.Minute},
		{name: "bad window", command: "bulk", wantErr: true},
		{name: "no rule", command: "balance", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			limit, window, err := rules.GetCommandLimit(tc.command)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantLimit, limit)
			assert.Equal(t, tc.wantWindow, window)
		})
	}

	assert.True(t, rules.IsWhitelisted(99))
	assert.False(t, rules.IsWhitelisted(1))

	limit, window, err := rules.GetPerUserLimit()
	require.NoError(t, err)
	assert.Equal(t, 30, limit)
	assert.Equal(t, time.Minute, window)
}
