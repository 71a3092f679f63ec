package state

import (
	"context"
	"sync"
)

const shardCount = 32

type shard struct {
	mu     sync.RWMutex
	states map[int64]*ChatState
}

// MemoryStorage keeps chat states in a sharded, mutex-protected map.
type MemoryStorage struct {
	shards [shardCount]*shard
}

// NewMemoryStorage creates an empty in-process Storage.
func NewMemoryStorage() *MemoryStorage {
	s := &MemoryStorage{}
	for i := range s.shards {
		s.shards[i] = &shard{states: make(map[int64]*ChatState)}
	}
	return s
}

func (s *MemoryStorage) shardFor(chatID int64) *shard {
	idx := chatID % shardCount
	if idx < 0 {
		idx = -idx
	}
	return s.shards[idx]
}

// Get returns a copy of the stored record.
func (s *MemoryStorage) Get(_ context.Context, chatID int64) (*ChatState, error) {
	sh := s.shardFor(chatID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	st, ok := sh.states[chatID]
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.Clone(), nil
}

// Save stores a copy of st.
func (s *MemoryStorage) Save(_ context.Context, st *ChatState) error {
	if st == nil {
		return nil
	}

	sh := s.shardFor(st.ChatID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.states[st.ChatID] = st.Clone()
	return nil
}

// Delete removes the record for chatID.
func (s *MemoryStorage) Delete(_ context.Context, chatID int64) error {
	sh := s.shardFor(chatID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	delete(sh.states, chatID)
	return nil
}

// List returns copies of every record.
func (s *MemoryStorage) List(_ context.Context) ([]*ChatState, error) {
	var result []*ChatState
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, st := range sh.states {
			result = append(result, st.Clone())
		}
		sh.mu.RUnlock()
	}
	return result, nil
}
