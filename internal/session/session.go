// Package session keeps per-chat authentication records.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a chat has no session record.
var ErrNotFound = errors.New("session not found")

// Session is the authentication record of one chat. While a login is in progress only Email and
// OTPSID are set and Authenticated is false.
type Session struct {
	ChatID         int64     `json:"chat_id"`
	Email          string    `json:"email"`
	Token          string    `json:"token,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	Authenticated  bool      `json:"authenticated"`
	OTPSID         string    `json:"otp_sid,omitempty"`
	ExpiresAt      time.Time `json:"expires_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Valid reports whether the session is authenticated and unexpired at now.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || !s.Authenticated || s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// Store persists sessions.
type Store interface {
	Get(ctx context.Context, chatID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, chatID int64) error
	List(ctx context.Context) ([]*Session, error)
	Check(ctx context.Context) error
}
