// Package state keeps the per-chat conversation state registry.
package state

import (
	"context"
	"errors"
)

// ErrStateNotFound indicates that no record exists for the chat.
var ErrStateNotFound = errors.New("chat state not found")

// Storage defines the persistence contract for chat state records.
type Storage interface {
	// Get returns the record for chatID or ErrStateNotFound.
	Get(ctx context.Context, chatID int64) (*ChatState, error)
	// Save overwrites the record for st.ChatID.
	Save(ctx context.Context, st *ChatState) error
	// Delete removes the record; deleting a missing record is not an error.
	Delete(ctx context.Context, chatID int64) error
	// List returns every stored record.
	List(ctx context.Context) ([]*ChatState, error)
}
