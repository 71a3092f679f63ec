package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// DefaultLockTTL bounds how long a crashed worker can keep a key locked.
const DefaultLockTTL = 5 * time.Minute

var ErrRequestInProgress = errors.New("request with this key is already in progress")

type Operation func(ctx context.Context) (interface{}, error)

type Result struct {
	Response  interface{}
	FromCache bool
}

type Manager interface {
	Execute(
		ctx context.Context,
		key string,
		ttl time.Duration,
		fn Operation,
	) (*Result, error)
}

type manager struct {
	store   Store
	log     *slog.Logger
	lockTTL time.Duration
	poll    time.Duration
}

func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		log:     log,
		lockTTL: DefaultLockTTL,
		poll:    100 * time.Millisecond,
	}
}

// Execute runs fn at most once per key within ttl. A concurrent caller for a key that is
// still processing gets ErrRequestInProgress; a later caller gets the cached response.
// A failed fn leaves no record, so the key may be retried.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	for {
		locked, err := m.store.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return nil, err
		}

		if locked {
			return m.run(ctx, key, ttl, fn)
		}

		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		if record != nil {
			switch record.Status {
			case StatusProcessing:
				return nil, ErrRequestInProgress
			case StatusCompleted:
				var response interface{}
				if len(record.Response) > 0 {
					if err := json.Unmarshal(record.Response, &response); err != nil {
						return nil, err
					}
				}
				return &Result{Response: response, FromCache: true}, nil
			}
		}

		// Lock holder has not written its marker yet.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.poll):
		}
	}
}

func (m *manager) run(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
			m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record != nil && record.Status == StatusCompleted {
		var response interface{}
		if len(record.Response) > 0 {
			if err := json.Unmarshal(record.Response, &response); err != nil {
				return nil, err
			}
		}
		return &Result{Response: response, FromCache: true}, nil
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusProcessing}, m.lockTTL); err != nil {
		return nil, err
	}

	result, err := fn(ctx)
	if err != nil {
		if delErr := m.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			m.log.Warn("failed to clear idempotency marker", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}

	responseBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	if err := m.store.Set(ctx, key, &Record{
		Status:   StatusCompleted,
		Response: responseBytes,
	}, ttl); err != nil {
		return nil, err
	}

	return &Result{
		Response:  result,
		FromCache: false,
	}, nil
}
