package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PostgresStore persists sessions in the sessions table (see migrations).
type PostgresStore struct {
	db  *sql.DB
	log *slog.Logger
}

// NewPostgresStore creates a Store over db.
func NewPostgresStore(db *sql.DB, log *slog.Logger) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresStore{db: db, log: log}
}

const sessionColumns = `chat_id, email, token, organization_id, user_id, authenticated, otp_sid, expires_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, chatID int64) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE chat_id = $1`

	s, err := scanSession(p.db.QueryRowContext(ctx, query, chatID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		p.log.Error("failed to fetch session", slog.Int64("chat_id", chatID), slog.Any("error", err))
		return nil, fmt.Errorf("select session: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) Save(ctx context.Context, s *Session) error {
	const query = `
		INSERT INTO sessions (chat_id, email, token, organization_id, user_id, authenticated, otp_sid, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (chat_id) DO UPDATE SET
			email = EXCLUDED.email,
			token = EXCLUDED.token,
			organization_id = EXCLUDED.organization_id,
			user_id = EXCLUDED.user_id,
			authenticated = EXCLUDED.authenticated,
			otp_sid = EXCLUDED.otp_sid,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	var expiresAt sql.NullTime
	if !s.ExpiresAt.IsZero() {
		expiresAt = sql.NullTime{Time: s.ExpiresAt, Valid: true}
	}
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	if _, err := p.db.ExecContext(ctx, query,
		s.ChatID,
		s.Email,
		s.Token,
		s.OrganizationID,
		s.UserID,
		s.Authenticated,
		s.OTPSID,
		expiresAt,
		updatedAt,
	); err != nil {
		p.log.Error("failed to save session", slog.Int64("chat_id", s.ChatID), slog.Any("error", err))
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, chatID int64) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var result []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Check(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s         Session
		expiresAt sql.NullTime
	)
	if err := row.Scan(
		&s.ChatID,
		&s.Email,
		&s.Token,
		&s.OrganizationID,
		&s.UserID,
		&s.Authenticated,
		&s.OTPSID,
		&expiresAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		s.ExpiresAt = expiresAt.Time
	}
	return &s, nil
}
