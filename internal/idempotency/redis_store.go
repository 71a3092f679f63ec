package idempotency

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idempotency:"

type RedisStore struct {
	client redis.Cmdable
	log    *slog.Logger
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.Cmdable, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		log:    log,
	}
}

func (s *RedisStore) Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	acquired, err := s.client.SetNX(ctx, lockKey(key), 1, lockTTL).Result()
	if err != nil {
		s.log.Error("failed to acquire idempotency lock", slog.String("key", key), slog.Any("error", err))
		return false, err
	}

	return acquired, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	result, err := s.client.HGetAll(ctx, recordKey(key)).Result()
	if err != nil {
		s.log.Error("failed to fetch idempotency record", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	if len(result) == 0 {
		return nil, nil
	}

	var response []byte
	if encoded := result["response"]; encoded != "" {
		response, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.log.Error("failed to decode idempotency response", slog.String("key", key), slog.Any("error", err))
			return nil, err
		}
	}

	return &Record{
		Status:   result["status"],
		Response: response,
	}, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return nil
	}

	fields := map[string]interface{}{
		"status":   record.Status,
		"response": base64.StdEncoding.EncodeToString(record.Response),
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, recordKey(key), fields)
	if ttl > 0 {
		pipe.Expire(ctx, recordKey(key), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error("failed to store idempotency record", slog.String("key", key), slog.Any("error", err))
		return err
	}

	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, recordKey(key)).Err(); err != nil {
		s.log.Error("failed to delete idempotency record", slog.String("key", key), slog.Any("error", err))
		return err
	}

	return nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, lockKey(key)).Err(); err != nil {
		s.log.Error("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		return err
	}

	return nil
}

func recordKey(key string) string {
	return keyPrefix + key
}

func lockKey(key string) string {
	return keyPrefix + key + ":lock"
}
