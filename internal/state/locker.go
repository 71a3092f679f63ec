package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	chatLockKeyPattern = "chat:lock:%d"
	lockPollInterval   = 25 * time.Millisecond

	// minLockTTL outlives the longest update handler so a slow update keeps its chat.
	minLockTTL     = 2 * time.Minute
	defaultLockTTL = minLockTTL
)

// ErrStateLocked indicates that the chat lock could not be acquired before the context ended.
var ErrStateLocked = errors.New("chat is locked, try again later")

// Locker serializes the handling of updates belonging to one chat.
type Locker interface {
	// Lock blocks until the chat lock is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, chatID int64) (func(), error)
}

type chatMutex struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker is a keyed mutex for a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[int64]*chatMutex
}

// NewMemoryLocker creates an in-process Locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[int64]*chatMutex)}
}

// Lock acquires the chat's mutex.
func (l *MemoryLocker) Lock(ctx context.Context, chatID int64) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[chatID]
	if !ok {
		m = &chatMutex{ch: make(chan struct{}, 1)}
		l.locks[chatID] = m
	}
	m.refs++
	l.mu.Unlock()

	select {
	case m.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(chatID, m, false)
		return nil, fmt.Errorf("%w: %v", ErrStateLocked, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(chatID, m, true) })
	}, nil
}

func (l *MemoryLocker) release(chatID int64, m *chatMutex, held bool) {
	if held {
		<-m.ch
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, chatID)
	}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds chat locks in Redis with SETNX so several instances can share chats.
type RedisLocker struct {
	client redis.Cmdable
	log    *slog.Logger
	ttl    time.Duration
}

// NewRedisLocker creates a distributed Locker. ttl bounds how long a crashed holder blocks a chat
// and is raised to minLockTTL when shorter.
func NewRedisLocker(client redis.Cmdable, log *slog.Logger, ttl time.Duration) *RedisLocker {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if ttl < minLockTTL {
		ttl = minLockTTL
	}

	return &RedisLocker{client: client, log: log, ttl: ttl}
}

// Lock polls SETNX until the lock is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, chatID int64) (func(), error) {
	key := fmt.Sprintf(chatLockKeyPattern, chatID)
	token := uuid.NewString()

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrStateLocked, ctx.Err())
			}
			l.log.Error("failed to acquire chat lock", "chat_id", chatID, "error", err)
			return nil, err
		}
		if acquired {
			break
		}

		select {
		case <-ctx.Done():
			l.log.Warn("chat lock already held", "chat_id", chatID)
			return nil, fmt.Errorf("%w: %v", ErrStateLocked, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				l.log.Error("failed to release chat lock", "chat_id", chatID, "error", err)
			}
		})
	}, nil
}
