package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// FileStore keeps sessions in a single JSON file keyed by chat id. Every write rewrites the file
// through a temporary file and rename.
type FileStore struct {
	mu       sync.RWMutex
	path     string
	sessions map[int64]*Session
}

// NewFileStore loads path, creating its directory when needed. A missing file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}

	store := &FileStore{path: path, sessions: make(map[int64]*Session)}

	// #nosec G304: path comes from configuration
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return store, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(data) == 0 {
		return store, nil
	}

	var raw map[string]*Session
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	for key, s := range raw {
		chatID, err := strconv.ParseInt(key, 10, 64)
		if err != nil || s == nil {
			continue
		}
		s.ChatID = chatID
		store.sessions[chatID] = s
	}

	return store, nil
}

func (f *FileStore) Get(_ context.Context, chatID int64) (*Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s, ok := f.sessions[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *FileStore) Save(_ context.Context, s *Session) error {
	if s == nil {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	previous, existed := f.sessions[s.ChatID]
	copied := *s
	f.sessions[s.ChatID] = &copied

	if err := f.flushLocked(); err != nil {
		if existed {
			f.sessions[s.ChatID] = previous
		} else {
			delete(f.sessions, s.ChatID)
		}
		return err
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	previous, ok := f.sessions[chatID]
	if !ok {
		return nil
	}
	delete(f.sessions, chatID)

	if err := f.flushLocked(); err != nil {
		f.sessions[chatID] = previous
		return err
	}
	return nil
}

func (f *FileStore) List(_ context.Context) ([]*Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]*Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		copied := *s
		result = append(result, &copied)
	}
	return result, nil
}

// Check verifies the session directory is writable.
func (f *FileStore) Check(_ context.Context) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".check-*")
	if err != nil {
		return fmt.Errorf("session dir not writable: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	return os.Remove(name)
}

func (f *FileStore) flushLocked() error {
	raw := make(map[string]*Session, len(f.sessions))
	for chatID, s := range f.sessions {
		raw[strconv.FormatInt(chatID, 10)] = s
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".sessions-*.json")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write sessions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close sessions: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod sessions: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
