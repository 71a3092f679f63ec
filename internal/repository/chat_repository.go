// Package repository persists the registry of chats that have used the bot.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Proton-105/payments-bot/internal/domain"
)

// ErrChatNotFound is returned when a chat has never been registered.
var ErrChatNotFound = errors.New("chat not found")

// ChatRepository defines persistence operations for chats.
type ChatRepository interface {
	FindByID(ctx context.Context, chatID int64) (*domain.Chat, error)
	Create(ctx context.Context, chat *domain.Chat) error
	TouchLastActive(ctx context.Context, chatID int64, at time.Time) error
	Count(ctx context.Context) (int, error)
}

type chatRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewChatRepository creates a PostgreSQL-backed chat repository.
func NewChatRepository(db *sql.DB, log *slog.Logger) ChatRepository {
	if log == nil {
		log = slog.Default()
	}
	return &chatRepository{
		db:  db,
		log: log,
	}
}

// FindByID retrieves a chat by its Telegram identifier.
func (r *chatRepository) FindByID(ctx context.Context, chatID int64) (*domain.Chat, error) {
	const query = `
		SELECT chat_id, username, first_name, last_name, language_code, created_at, last_active_at
		FROM chats
		WHERE chat_id = $1
	`

	var chat domain.Chat
	if err := r.db.QueryRowContext(ctx, query, chatID).Scan(
		&chat.ChatID,
		&chat.Username,
		&chat.FirstName,
		&chat.LastName,
		&chat.LanguageCode,
		&chat.CreatedAt,
		&chat.LastActiveAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrChatNotFound
		}

		r.log.Error("failed to fetch chat", slog.Int64("chat_id", chatID), slog.Any("error", err))
		return nil, fmt.Errorf("select chat: %w", err)
	}

	return &chat, nil
}

// Create inserts a chat. Registering an existing chat is a no-op.
func (r *chatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	const query = `
		INSERT INTO chats (chat_id, username, first_name, last_name, language_code, created_at, last_active_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (chat_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(
		ctx,
		query,
		chat.ChatID,
		chat.Username,
		chat.FirstName,
		chat.LastName,
		chat.LanguageCode,
		chat.CreatedAt,
	); err != nil {
		r.log.Error("failed to create chat", slog.Int64("chat_id", chat.ChatID), slog.Any("error", err))
		return fmt.Errorf("insert chat: %w", err)
	}

	return nil
}

func (r *chatRepository) TouchLastActive(ctx context.Context, chatID int64, at time.Time) error {
	const query = `UPDATE chats SET last_active_at = $2 WHERE chat_id = $1`

	if _, err := r.db.ExecContext(ctx, query, chatID, at); err != nil {
		return fmt.Errorf("update chat last_active_at: %w", err)
	}
	return nil
}

func (r *chatRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chats: %w", err)
	}
	return n, nil
}

// MemoryChatRepository keeps chats in process memory. It is used when no database is configured.
type MemoryChatRepository struct {
	mu    sync.RWMutex
	chats map[int64]domain.Chat
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{chats: make(map[int64]domain.Chat)}
}

func (r *MemoryChatRepository) FindByID(_ context.Context, chatID int64) (*domain.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chat, ok := r.chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	return &chat, nil
}

func (r *MemoryChatRepository) Create(_ context.Context, chat *domain.Chat) error {
	if chat == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chats[chat.ChatID]; ok {
		return nil
	}
	stored := *chat
	if stored.LastActiveAt.IsZero() {
		stored.LastActiveAt = stored.CreatedAt
	}
	r.chats[chat.ChatID] = stored
	return nil
}

func (r *MemoryChatRepository) TouchLastActive(_ context.Context, chatID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok {
		return ErrChatNotFound
	}
	chat.LastActiveAt = at
	r.chats[chatID] = chat
	return nil
}

func (r *MemoryChatRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chats), nil
}
