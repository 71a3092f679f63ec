package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// SubscriptionStore maps organizations to the chats that receive their deposit notifications.
// A chat belongs to at most one organization.
type SubscriptionStore interface {
	Add(ctx context.Context, orgID string, chatID int64) error
	Remove(ctx context.Context, chatID int64) error
	Chats(ctx context.Context, orgID string) ([]int64, error)
	Organizations(ctx context.Context) ([]string, error)
}

// MemoryStore is the in-process SubscriptionStore.
type MemoryStore struct {
	mu     sync.RWMutex
	byOrg  map[string]map[int64]struct{}
	byChat map[int64]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byOrg:  make(map[string]map[int64]struct{}),
		byChat: make(map[int64]string),
	}
}

func (s *MemoryStore) Add(_ context.Context, orgID string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(chatID)
	chats, ok := s.byOrg[orgID]
	if !ok {
		chats = make(map[int64]struct{})
		s.byOrg[orgID] = chats
	}
	chats[chatID] = struct{}{}
	s.byChat[chatID] = orgID
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(chatID)
	return nil
}

func (s *MemoryStore) removeLocked(chatID int64) {
	orgID, ok := s.byChat[chatID]
	if !ok {
		return
	}
	delete(s.byChat, chatID)
	delete(s.byOrg[orgID], chatID)
	if len(s.byOrg[orgID]) == 0 {
		delete(s.byOrg, orgID)
	}
}

func (s *MemoryStore) Chats(_ context.Context, orgID string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]int64, 0, len(s.byOrg[orgID]))
	for chatID := range s.byOrg[orgID] {
		chats = append(chats, chatID)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
	return chats, nil
}

func (s *MemoryStore) Organizations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgs := make([]string, 0, len(s.byOrg))
	for orgID := range s.byOrg {
		orgs = append(orgs, orgID)
	}
	sort.Strings(orgs)
	return orgs, nil
}

const (
	orgChatsKeyPattern = "notify:org:%s"
	chatOrgKeyPattern  = "notify:chat:%d"
	orgIndexKey        = "notify:orgs"
)

// RedisStore keeps subscriptions in Redis sets so every bot instance fans out to the same chats.
type RedisStore struct {
	client redis.Cmdable
	log    *slog.Logger
}

func NewRedisStore(client redis.Cmdable, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Add(ctx context.Context, orgID string, chatID int64) error {
	if err := s.Remove(ctx, chatID); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, fmt.Sprintf(orgChatsKeyPattern, orgID), chatID)
	pipe.Set(ctx, fmt.Sprintf(chatOrgKeyPattern, chatID), orgID, 0)
	pipe.SAdd(ctx, orgIndexKey, orgID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add subscription: %w", err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, chatID int64) error {
	chatKey := fmt.Sprintf(chatOrgKeyPattern, chatID)
	orgID, err := s.client.Get(ctx, chatKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup subscription: %w", err)
	}

	orgKey := fmt.Sprintf(orgChatsKeyPattern, orgID)
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, orgKey, chatID)
	pipe.Del(ctx, chatKey)
	remaining := pipe.SCard(ctx, orgKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}

	if remaining.Val() == 0 {
		if err := s.client.SRem(ctx, orgIndexKey, orgID).Err(); err != nil {
			s.log.Warn("failed to drop organization from index", slog.String("org_id", orgID), slog.Any("error", err))
		}
	}
	return nil
}

func (s *RedisStore) Chats(ctx context.Context, orgID string) ([]int64, error) {
	members, err := s.client.SMembers(ctx, fmt.Sprintf(orgChatsKeyPattern, orgID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	chats := make([]int64, 0, len(members))
	for _, m := range members {
		chatID, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			s.log.Warn("skipping malformed subscription member", slog.String("org_id", orgID), slog.String("member", m))
			continue
		}
		chats = append(chats, chatID)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
	return chats, nil
}

func (s *RedisStore) Organizations(ctx context.Context) ([]string, error) {
	orgs, err := s.client.SMembers(ctx, orgIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	sort.Strings(orgs)
	return orgs, nil
}
