package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	client, _ := setupTestRedis(t)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "test:allows", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 5-i-1, result.Remaining)
	}
}

func TestRedisLimiter_BlocksWhenExceeded(t *testing.T) {
	client, _ := setupTestRedis(t)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		result, err := limiter.Check(ctx, "test:blocks", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i < 2, result.Allowed, "attempt %d", i)
	}

	count, err := client.ZCard(ctx, "ratelimit:test:blocks").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "rejected attempts are not recorded")
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	client, _ := setupTestRedis(t)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "test:window", 2, 200*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	time.Sleep(250 * time.Millisecond)

	result, err := limiter.Check(ctx, "test:window", 2, 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestAdaptiveLimiter_FallsBackOnRedisError(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), NewMemoryLimiter(testLogger()), testLogger())
	ctx := context.Background()

	// the fallback allows half of the limit
	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "chat:1", 4, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	_, err := limiter.Check(ctx, "chat:1", 4, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestAdaptiveLimiter_PrimaryRejection(t *testing.T) {
	client, _ := setupTestRedis(t)

	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), NewMemoryLimiter(testLogger()), testLogger())
	ctx := context.Background()

	_, err := limiter.Check(ctx, "chat:2", 1, time.Minute)
	require.NoError(t, err)

	_, err = limiter.Check(ctx, "chat:2", 1, time.Minute)
	assert.True(t, errors.Is(err, ErrLimitExceeded))
}

func TestCleaner_Sweep(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	old := float64(time.Now().Add(-time.Hour).UnixNano()) / float64(time.Millisecond)
	fresh := float64(time.Now().UnixNano()) / float64(time.Millisecond)
	require.NoError(t, client.ZAdd(ctx, "ratelimit:stale:1", redis.Z{Score: old, Member: "a"}).Err())
	require.NoError(t, client.ZAdd(ctx, "ratelimit:live:1", redis.Z{Score: old, Member: "a"}, redis.Z{Score: fresh, Member: "b"}).Err())

	cleaner := NewCleaner(client, testLogger(), time.Minute, 5*time.Minute)
	assert.Equal(t, 1, cleaner.Sweep(ctx))

	exists, err := client.Exists(ctx, "ratelimit:stale:1").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	count, err := client.ZCard(ctx, "ratelimit:live:1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
