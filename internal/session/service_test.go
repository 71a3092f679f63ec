package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/payments-bot/internal/errors"
	"github.com/Proton-105/payments-bot/internal/payments"
)

type mockAuthAPI struct {
	mock.Mock
}

func (m *mockAuthAPI) RequestEmailOTP(ctx context.Context, email string) (*payments.OTPRequest, error) {
	args := m.Called(ctx, email)
	req, _ := args.Get(0).(*payments.OTPRequest)
	return req, args.Error(1)
}

func (m *mockAuthAPI) AuthenticateEmailOTP(ctx context.Context, email, otp, sid string) (*payments.AuthResult, error) {
	args := m.Called(ctx, email, otp, sid)
	res, _ := args.Get(0).(*payments.AuthResult)
	return res, args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, api AuthAPI) (*Service, *FileStore) {
	t.Helper()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)
	return NewService(store, api, time.Hour, testLogger()), store
}

func TestService_LoginFlow(t *testing.T) {
	ctx := context.Background()
	api := &mockAuthAPI{}
	api.On("RequestEmailOTP", mock.Anything, "user@example.com").
		Return(&payments.OTPRequest{Email: "user@example.com", SID: "sid-1"}, nil).Once()
	api.On("AuthenticateEmailOTP", mock.Anything, "user@example.com", "123456", "sid-1").
		Return(&payments.AuthResult{
			AccessToken: "tok",
			User:        payments.User{ID: "u1", Email: "user@example.com", OrganizationID: "org-1"},
		}, nil).Once()

	svc, _ := newTestService(t, api)

	require.NoError(t, svc.RequestOTP(ctx, " User@Example.com ", 555))
	assert.False(t, svc.IsAuthenticated(ctx, 555))

	sess, err := svc.AuthenticateWithOTP(ctx, "123456", 555)
	require.NoError(t, err)
	assert.True(t, sess.Authenticated)
	assert.Equal(t, "org-1", sess.OrganizationID)
	assert.True(t, svc.IsAuthenticated(ctx, 555))

	token, err := svc.Token(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	require.NoError(t, svc.Logout(ctx, 555))
	assert.False(t, svc.IsAuthenticated(ctx, 555))
	api.AssertExpectations(t)
}

func TestService_AuthenticateWithoutPendingLogin(t *testing.T) {
	svc, _ := newTestService(t, &mockAuthAPI{})

	_, err := svc.AuthenticateWithOTP(context.Background(), "123456", 1)
	assert.True(t, apperrors.IsAuth(err))
}

func TestService_WrongOTPKeepsPendingLogin(t *testing.T) {
	ctx := context.Background()
	api := &mockAuthAPI{}
	api.On("RequestEmailOTP", mock.Anything, "a@b.com").Return(&payments.OTPRequest{SID: "sid"}, nil)
	api.On("AuthenticateEmailOTP", mock.Anything, "a@b.com", "000000", "sid").
		Return(nil, apperrors.NewAPIRequestError("payments", 400, "invalid otp")).Once()

	svc, store := newTestService(t, api)
	require.NoError(t, svc.RequestOTP(ctx, "a@b.com", 2))

	_, err := svc.AuthenticateWithOTP(ctx, "000000", 2)
	assert.Error(t, err)

	pending, err := store.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "sid", pending.OTPSID)
}

func TestService_ExpiredSession(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &mockAuthAPI{})
	now := time.Now()
	svc.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, &Session{ChatID: 3, Token: "t", Authenticated: true, ExpiresAt: now.Add(-time.Minute)}))

	_, err := svc.GetSession(ctx, 3)
	assert.True(t, apperrors.IsAuth(err))

	_, err = store.Get(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound, "expired sessions are removed")
}

func TestService_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &mockAuthAPI{})
	now := time.Now()
	svc.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, &Session{ChatID: 1, Token: "t", Authenticated: true, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, store.Save(ctx, &Session{ChatID: 2, Token: "t", Authenticated: true, ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, store.Save(ctx, &Session{ChatID: 3, Email: "x@y.z", OTPSID: "s", UpdatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, store.Save(ctx, &Session{ChatID: 4, Email: "x@y.z", OTPSID: "s", UpdatedAt: now}))

	purged, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	valid, err := svc.Authenticated(ctx)
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, int64(1), valid[0].ChatID)
}

func TestService_RequestOTPFailure(t *testing.T) {
	api := &mockAuthAPI{}
	api.On("RequestEmailOTP", mock.Anything, "a@b.com").Return(nil, errors.New("down"))
	svc, store := newTestService(t, api)

	assert.Error(t, svc.RequestOTP(context.Background(), "a@b.com", 9))
	_, err := store.Get(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}
