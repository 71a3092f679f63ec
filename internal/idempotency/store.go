package idempotency

import (
	"context"
	"sync"
	"time"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// Record is the stored outcome of an operation.
type Record struct {
	Status   string
	Response []byte
}

type Store interface {
	Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, record *Record, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ReleaseLock(ctx context.Context, key string) error
}

type memoryEntry struct {
	record    *Record
	expiresAt time.Time
}

// MemoryStore keeps records in process memory. It backs single-instance deployments
// running without Redis.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryEntry
	locks   map[string]time.Time
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]memoryEntry),
		locks:   make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) Lock(_ context.Context, key string, lockTTL time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.locks[key]; ok && now.Before(until) {
		return false, nil
	}
	s.locks[key] = now.Add(lockTTL)
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.records, key)
		return nil, nil
	}

	copied := *entry.record
	return &copied, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{record: &Record{Status: record.Status, Response: append([]byte(nil), record.Response...)}}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.records[key] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) ReleaseLock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}

// Cleanup drops expired records and locks, returning how many were removed.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.records {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(s.records, key)
			removed++
		}
	}
	for key, until := range s.locks {
		if !now.Before(until) {
			delete(s.locks, key)
			removed++
		}
	}
	return removed
}
