package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	chatStateKeyPattern  = "chat:state:%d"
	chatStateScanPattern = "chat:state:*"
	stateScanBatchCount  = 100
)

// RedisStorage persists chat states in Redis so several bot instances can share them.
type RedisStorage struct {
	client redis.Cmdable
	log    *slog.Logger
	// ttl bounds how long an untouched record survives; zero keeps records until deleted.
	ttl time.Duration
}

// NewRedisStorage initializes a Redis-backed Storage implementation.
func NewRedisStorage(client redis.Cmdable, log *slog.Logger, ttl time.Duration) *RedisStorage {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStorage{
		client: client,
		log:    log,
		ttl:    ttl,
	}
}

// Get returns the stored chat state or ErrStateNotFound when absent.
func (s *RedisStorage) Get(ctx context.Context, chatID int64) (*ChatState, error) {
	data, err := s.client.Get(ctx, chatStateKey(chatID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}

		s.log.Error("failed to get state from redis", "chat_id", chatID, "error", err)
		return nil, err
	}

	var st ChatState
	if err := json.Unmarshal(data, &st); err != nil {
		s.log.Error("failed to decode chat state", "chat_id", chatID, "error", err)
		return nil, err
	}

	return &st, nil
}

// Save stores st as JSON.
func (s *RedisStorage) Save(ctx context.Context, st *ChatState) error {
	if st == nil {
		return nil
	}

	data, err := json.Marshal(st)
	if err != nil {
		s.log.Error("failed to encode chat state", "chat_id", st.ChatID, "error", err)
		return err
	}

	if err := s.client.Set(ctx, chatStateKey(st.ChatID), data, s.ttl).Err(); err != nil {
		s.log.Error("failed to save state in redis", "chat_id", st.ChatID, "error", err)
		return err
	}

	return nil
}

// Delete removes the stored state for the given chat.
func (s *RedisStorage) Delete(ctx context.Context, chatID int64) error {
	if err := s.client.Del(ctx, chatStateKey(chatID)).Err(); err != nil {
		s.log.Error("failed to clear chat state", "chat_id", chatID, "error", err)
		return err
	}

	return nil
}

// List retrieves every stored chat state by scanning Redis keys.
func (s *RedisStorage) List(ctx context.Context) ([]*ChatState, error) {
	var (
		cursor uint64
		result []*ChatState
	)

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, chatStateScanPattern, stateScanBatchCount).Result()
		if err != nil {
			s.log.Error("failed to scan chat states", "error", err)
			return nil, err
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}

				s.log.Error("failed to fetch chat state", "key", key, "error", err)
				return nil, err
			}

			var st ChatState
			if err := json.Unmarshal(data, &st); err != nil {
				s.log.Error("failed to decode chat state", "key", key, "error", err)
				continue
			}

			result = append(result, &st)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return result, nil
}

func chatStateKey(chatID int64) string {
	return fmt.Sprintf(chatStateKeyPattern, chatID)
}
