package state

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errStorageFailure = errors.New("storage error")

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Get(ctx context.Context, chatID int64) (*ChatState, error) {
	args := m.Called(ctx, chatID)
	st, _ := args.Get(0).(*ChatState)
	return st, args.Error(1)
}

func (m *mockStorage) Save(ctx context.Context, st *ChatState) error {
	args := m.Called(ctx, st)
	return args.Error(0)
}

func (m *mockStorage) Delete(ctx context.Context, chatID int64) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *mockStorage) List(ctx context.Context) ([]*ChatState, error) {
	args := m.Called(ctx)
	states, _ := args.Get(0).([]*ChatState)
	return states, args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_UnknownChat(t *testing.T) {
	reg := NewRegistry(NewMemoryStorage(), testLogger())
	ctx := context.Background()

	for _, chatID := range []int64{0, 1, 555, -100123} {
		st, err := reg.GetState(ctx, chatID)
		require.NoError(t, err)
		assert.Equal(t, StateIdle, st)

		txCtx, err := reg.GetContext(ctx, chatID)
		require.NoError(t, err)
		assert.True(t, txCtx.IsEmpty())
	}
}

func TestRegistry_UpdateContextMerges(t *testing.T) {
	reg := NewRegistry(NewMemoryStorage(), testLogger())
	ctx := context.Background()

	require.NoError(t, reg.UpdateContext(ctx, 1, TxContext{RecipientEmail: "a@b.com"}))
	require.NoError(t, reg.UpdateContext(ctx, 1, TxContext{Amount: Decimal(decimal.NewFromInt(50))}))

	txCtx, err := reg.GetContext(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", txCtx.RecipientEmail)
	require.NotNil(t, txCtx.Amount)
	assert.True(t, txCtx.Amount.Equal(decimal.NewFromInt(50)))

	st, err := reg.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st)
}

func TestRegistry_ResetStateKeepsContext(t *testing.T) {
	reg := NewRegistry(NewMemoryStorage(), testLogger())
	ctx := context.Background()

	require.NoError(t, reg.SetState(ctx, 7, StateBankAwaitingAmount))
	require.NoError(t, reg.UpdateContext(ctx, 7, TxContext{BankAccountID: "acc-1"}))

	for i := 0; i < 2; i++ {
		require.NoError(t, reg.ResetState(ctx, 7))
		st, err := reg.GetState(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, StateIdle, st)
	}

	txCtx, err := reg.GetContext(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", txCtx.BankAccountID)

	assert.NoError(t, reg.ResetState(ctx, 8), "reset of unknown chat")
}

func TestRegistry_ClearChat(t *testing.T) {
	reg := NewRegistry(NewMemoryStorage(), testLogger())
	ctx := context.Background()

	require.NoError(t, reg.SetState(ctx, 3, StateSendAwaitingConfirm))
	require.NoError(t, reg.UpdateContext(ctx, 3, TxContext{RecipientEmail: "a@b.com"}))
	require.NoError(t, reg.ClearChat(ctx, 3))

	st, err := reg.GetState(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st)

	txCtx, err := reg.GetContext(ctx, 3)
	require.NoError(t, err)
	assert.True(t, txCtx.IsEmpty())
}

func TestRegistry_TransitionTo(t *testing.T) {
	ctx := context.Background()
	chatID := int64(42)

	testCases := []struct {
		name        string
		setupMocks  func(ms *mockStorage)
		next        State
		expectedErr error
	}{
		{
			name: "entry state from idle",
			setupMocks: func(ms *mockStorage) {
				ms.On("Get", mock.Anything, chatID).
					Return(&ChatState{ChatID: chatID, Current: StateIdle}, nil).Once()
				ms.On("Save", mock.Anything, mock.MatchedBy(func(st *ChatState) bool {
					return st.Current == StateSendAwaitingRecipient && !st.UpdatedAt.IsZero()
				})).Return(nil).Once()
			},
			next: StateSendAwaitingRecipient,
		},
		{
			name: "skipping a step",
			setupMocks: func(ms *mockStorage) {
				ms.On("Get", mock.Anything, chatID).
					Return(&ChatState{ChatID: chatID, Current: StateIdle}, nil).Once()
			},
			next:        StateSendAwaitingConfirm,
			expectedErr: ErrInvalidTransition,
		},
		{
			name: "new chat",
			setupMocks: func(ms *mockStorage) {
				ms.On("Get", mock.Anything, chatID).
					Return((*ChatState)(nil), ErrStateNotFound).Once()
				ms.On("Save", mock.Anything, mock.MatchedBy(func(st *ChatState) bool {
					return st.ChatID == chatID && st.Current == StateLoginAwaitingEmail
				})).Return(nil).Once()
			},
			next: StateLoginAwaitingEmail,
		},
		{
			name: "storage failure",
			setupMocks: func(ms *mockStorage) {
				ms.On("Get", mock.Anything, chatID).
					Return((*ChatState)(nil), errStorageFailure).Once()
			},
			next:        StateLoginAwaitingEmail,
			expectedErr: errStorageFailure,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ms := &mockStorage{}
			tc.setupMocks(ms)

			reg := NewRegistry(ms, testLogger())
			err := reg.TransitionTo(ctx, chatID, tc.next)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
			} else {
				assert.NoError(t, err)
			}

			ms.AssertExpectations(t)
		})
	}
}

func TestRegistry_RecordsTransitions(t *testing.T) {
	var recorded [][2]string
	RegisterTransitionRecorder(func(from, to string) {
		recorded = append(recorded, [2]string{from, to})
	})
	t.Cleanup(func() { RegisterTransitionRecorder(nil) })

	reg := NewRegistry(NewMemoryStorage(), testLogger())
	ctx := context.Background()

	require.NoError(t, reg.TransitionTo(ctx, 1, StateLoginAwaitingEmail))
	require.NoError(t, reg.TransitionTo(ctx, 1, StateLoginAwaitingOTP))
	require.NoError(t, reg.ResetState(ctx, 1))

	assert.Equal(t, [][2]string{
		{"idle", "awaiting_email"},
		{"awaiting_email", "awaiting_otp"},
		{"awaiting_otp", "idle"},
	}, recorded)
}
