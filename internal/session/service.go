package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/Proton-105/payments-bot/internal/errors"
	"github.com/Proton-105/payments-bot/internal/payments"
)

// AuthAPI is the part of the payments API used for email OTP login.
type AuthAPI interface {
	RequestEmailOTP(ctx context.Context, email string) (*payments.OTPRequest, error)
	AuthenticateEmailOTP(ctx context.Context, email, otp, sid string) (*payments.AuthResult, error)
}

// Service is the session/auth provider used by the conversation engine and the payments client.
type Service struct {
	store Store
	api   AuthAPI
	ttl   time.Duration
	log   *slog.Logger
	now   func() time.Time
}

// NewService creates a Service. ttl applies when the API does not return a token expiry.
func NewService(store Store, api AuthAPI, ttl time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Service{
		store: store,
		api:   api,
		ttl:   ttl,
		log:   log.With("component", "session"),
		now:   time.Now,
	}
}

// SetAPI wires the auth API after construction; the payments client needs the service as its
// token source, so one side of the pair is always attached late.
func (s *Service) SetAPI(api AuthAPI) {
	s.api = api
}

// IsAuthenticated reports whether the chat holds a valid, unexpired session.
func (s *Service) IsAuthenticated(ctx context.Context, chatID int64) bool {
	sess, err := s.store.Get(ctx, chatID)
	if err != nil {
		return false
	}
	return sess.Valid(s.now())
}

// GetSession returns the chat's authenticated session. Expired sessions are removed and reported as auth errors.
func (s *Service) GetSession(ctx context.Context, chatID int64) (*Session, error) {
	sess, err := s.store.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NewAuthError("no session")
		}
		return nil, apperrors.NewDatabaseError(err)
	}

	if !sess.Valid(s.now()) {
		if sess.Authenticated {
			s.log.Info("session expired", slog.Int64("chat_id", chatID))
			_ = s.store.Delete(ctx, chatID)
		}
		return nil, apperrors.NewAuthError("session expired or incomplete")
	}

	return sess, nil
}

// Token satisfies payments.TokenSource.
func (s *Service) Token(ctx context.Context, chatID int64) (string, error) {
	sess, err := s.GetSession(ctx, chatID)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

// Logout removes the chat's session.
func (s *Service) Logout(ctx context.Context, chatID int64) error {
	if err := s.store.Delete(ctx, chatID); err != nil {
		return apperrors.NewDatabaseError(err)
	}
	s.log.Info("chat logged out", slog.Int64("chat_id", chatID))
	return nil
}

// RequestOTP asks the API to email an OTP and records the pending login for the chat.
func (s *Service) RequestOTP(ctx context.Context, email string, chatID int64) error {
	email = strings.ToLower(strings.TrimSpace(email))

	req, err := s.api.RequestEmailOTP(ctx, email)
	if err != nil {
		return err
	}

	pending := &Session{
		ChatID:    chatID,
		Email:     email,
		OTPSID:    req.SID,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.Save(ctx, pending); err != nil {
		return apperrors.NewDatabaseError(err)
	}

	s.log.Info("otp requested", slog.Int64("chat_id", chatID))
	return nil
}

// AuthenticateWithOTP completes a pending login. It fails with an auth error when no OTP was requested.
func (s *Service) AuthenticateWithOTP(ctx context.Context, otp string, chatID int64) (*Session, error) {
	pending, err := s.store.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.NewAuthError("no pending login")
		}
		return nil, apperrors.NewDatabaseError(err)
	}
	if pending.Email == "" || pending.OTPSID == "" {
		return nil, apperrors.NewAuthError("no pending login")
	}

	result, err := s.api.AuthenticateEmailOTP(ctx, pending.Email, strings.TrimSpace(otp), pending.OTPSID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expiresAt := result.ExpireAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.ttl)
	}

	email := result.User.Email
	if email == "" {
		email = pending.Email
	}

	sess := &Session{
		ChatID:         chatID,
		Email:          email,
		Token:          result.AccessToken,
		OrganizationID: result.User.OrganizationID,
		UserID:         result.User.ID,
		Authenticated:  true,
		ExpiresAt:      expiresAt,
		UpdatedAt:      now,
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	s.log.Info("chat authenticated", slog.Int64("chat_id", chatID), slog.String("organization_id", sess.OrganizationID))
	return sess, nil
}

// Authenticated returns every valid session, used to restore notification subscriptions on startup.
func (s *Service) Authenticated(ctx context.Context) ([]*Session, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := make([]*Session, 0, len(all))
	for _, sess := range all {
		if sess.Valid(now) {
			result = append(result, sess)
		}
	}
	return result, nil
}

// PurgeExpired deletes expired sessions and abandoned logins older than the TTL.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	purged := 0
	for _, sess := range all {
		expired := sess.Authenticated && !sess.Valid(now)
		abandoned := !sess.Authenticated && now.Sub(sess.UpdatedAt) > s.ttl
		if !expired && !abandoned {
			continue
		}
		if err := s.store.Delete(ctx, sess.ChatID); err != nil {
			return purged, err
		}
		purged++
	}

	if purged > 0 {
		s.log.Info("expired sessions purged", slog.Int("count", purged))
	}
	return purged, nil
}

// Check satisfies health.Check.
func (s *Service) Check(ctx context.Context) error {
	return s.store.Check(ctx)
}
