package state

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockers(t *testing.T) map[string]Locker {
	client, _ := setupTestRedis(t)
	return map[string]Locker{
		"memory": NewMemoryLocker(),
		"redis":  NewRedisLocker(client, testLogger(), time.Second),
	}
}

func TestLocker_SerializesSameChat(t *testing.T) {
	for name, locker := range lockers(t) {
		locker := locker
		t.Run(name, func(t *testing.T) {
			var (
				inside  int32
				maxSeen int32
				wg      sync.WaitGroup
			)

			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock, err := locker.Lock(context.Background(), 555)
					if !assert.NoError(t, err) {
						return
					}
					defer unlock()

					n := atomic.AddInt32(&inside, 1)
					for {
						seen := atomic.LoadInt32(&maxSeen)
						if n <= seen || atomic.CompareAndSwapInt32(&maxSeen, seen, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), maxSeen)
		})
	}
}

func TestLocker_TimesOut(t *testing.T) {
	for name, locker := range lockers(t) {
		locker := locker
		t.Run(name, func(t *testing.T) {
			unlock, err := locker.Lock(context.Background(), 1)
			require.NoError(t, err)
			defer unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			_, err = locker.Lock(ctx, 1)
			assert.ErrorIs(t, err, ErrStateLocked)

			other, err := locker.Lock(context.Background(), 2)
			require.NoError(t, err, "other chats are independent")
			other()
		})
	}
}

func TestMemoryLocker_ReleasesEntries(t *testing.T) {
	locker := NewMemoryLocker()

	unlock, err := locker.Lock(context.Background(), 10)
	require.NoError(t, err)
	unlock()
	unlock()

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Empty(t, locker.locks)
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	client, mr := setupTestRedis(t)
	locker := NewRedisLocker(client, testLogger(), time.Second)

	unlock, err := locker.Lock(context.Background(), 77)
	require.NoError(t, err)

	// simulate expiry and a new holder
	mr.FastForward(minLockTTL + time.Second)
	require.NoError(t, mr.Set("chat:lock:77", "someone-else"))

	unlock()
	value, err := mr.Get("chat:lock:77")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", value)
}

func TestRedisLocker_TTLOutlivesUpdates(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want time.Duration
	}{
		{name: "default", ttl: 0, want: defaultLockTTL},
		{name: "short ttl is raised", ttl: 30 * time.Second, want: minLockTTL},
		{name: "longer ttl is kept", ttl: 5 * time.Minute, want: 5 * time.Minute},
	}

	for i, tc := range tests {
		tc := tc
		chatID := int64(200 + i)
		t.Run(tc.name, func(t *testing.T) {
			client, mr := setupTestRedis(t)
			locker := NewRedisLocker(client, testLogger(), tc.ttl)

			unlock, err := locker.Lock(context.Background(), chatID)
			require.NoError(t, err)
			defer unlock()

			assert.Equal(t, tc.want, mr.TTL(fmt.Sprintf(chatLockKeyPattern, chatID)))
			assert.GreaterOrEqual(t, mr.TTL(fmt.Sprintf(chatLockKeyPattern, chatID)), time.Minute)
		})
	}
}
