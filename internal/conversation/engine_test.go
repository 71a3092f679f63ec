package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Proton-105/payments-bot/internal/errors"
	"github.com/Proton-105/payments-bot/internal/payments"
	"github.com/Proton-105/payments-bot/internal/session"
	"github.com/Proton-105/payments-bot/internal/state"
)

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) IsAuthenticated(ctx context.Context, chatID int64) bool {
	args := m.Called(ctx, chatID)
	return args.Bool(0)
}

func (m *mockSessions) GetSession(ctx context.Context, chatID int64) (*session.Session, error) {
	args := m.Called(ctx, chatID)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

func (m *mockSessions) RequestOTP(ctx context.Context, email string, chatID int64) error {
	args := m.Called(ctx, email, chatID)
	return args.Error(0)
}

func (m *mockSessions) AuthenticateWithOTP(ctx context.Context, otp string, chatID int64) (*session.Session, error) {
	args := m.Called(ctx, otp, chatID)
	s, _ := args.Get(0).(*session.Session)
	return s, args.Error(1)
}

func loggedIn(chatID int64) *mockSessions {
	m := &mockSessions{}
	m.On("IsAuthenticated", mock.Anything, chatID).Return(true).Maybe()
	return m
}

type transferCall struct {
	kind    string
	target  string
	network string
	amount  decimal.Decimal
}

// fakePayments quotes fees from the fallback table and records transfer calls.
type fakePayments struct {
	mu          sync.Mutex
	balance     decimal.Decimal
	accounts    []payments.BankAccount
	fees        payments.FallbackTable
	linkURL     string
	transferErr error
	batchFailed map[string]bool
	calls       []transferCall
	batches     [][]payments.BatchItem
}

func newFakePayments(balance int64) *fakePayments {
	return &fakePayments{balance: decimal.NewFromInt(balance), fees: payments.DefaultFallbackTable()}
}

func (f *fakePayments) record(call transferCall) (*payments.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	return &payments.Transfer{ID: "tr-1", Status: "pending", Amount: call.amount, Currency: payments.Currency}, nil
}

func (f *fakePayments) GetBalances(context.Context, int64) ([]payments.Balance, error) {
	return []payments.Balance{{WalletID: "w1", Network: "polygon", Symbol: "USDC", Balance: f.balance}}, nil
}

func (f *fakePayments) GetBankAccounts(context.Context, int64) ([]payments.BankAccount, error) {
	return f.accounts, nil
}

func (f *fakePayments) SendFundsToEmail(_ context.Context, _ int64, email string, amount decimal.Decimal) (*payments.Transfer, error) {
	return f.record(transferCall{kind: "email", target: email, amount: amount})
}

func (f *fakePayments) SendFundsToWallet(_ context.Context, _ int64, address, network string, amount decimal.Decimal) (*payments.Transfer, error) {
	return f.record(transferCall{kind: "wallet", target: address, network: network, amount: amount})
}

func (f *fakePayments) WithdrawToBank(_ context.Context, _ int64, accountID string, amount decimal.Decimal) (*payments.Transfer, error) {
	return f.record(transferCall{kind: "bank", target: accountID, amount: amount})
}

func (f *fakePayments) SendBatch(_ context.Context, _ int64, items []payments.BatchItem) (*payments.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, items)

	var out payments.BatchResult
	for _, item := range items {
		res := payments.BatchItemResult{RequestID: item.RequestID}
		if f.batchFailed[item.Email] {
			res.Error = &struct {
				Message string `json:"message"`
			}{Message: "recipient not found"}
		} else {
			res.Transfer = &payments.Transfer{ID: "tr-" + item.Email, Amount: item.Amount}
		}
		out.Responses = append(out.Responses, res)
	}
	return &out, nil
}

func (f *fakePayments) CreatePaymentLink(_ context.Context, _ int64, amount decimal.Decimal, purpose string) (*payments.PaymentLink, error) {
	url := f.linkURL
	if url == "" {
		url = "https://pay.example.com/pl-1"
	}
	return &payments.PaymentLink{ID: "pl-1", URL: url, Amount: amount, Purpose: purpose}, nil
}

func (f *fakePayments) CalculateFee(_ context.Context, _ int64, amount decimal.Decimal, kind payments.TransferKind, network string) (decimal.Decimal, error) {
	return f.fees.Fee(amount, kind, network), nil
}

func (f *fakePayments) ValidateMinimumAmount(_ context.Context, _ int64, amount decimal.Decimal, kind payments.TransferKind, _ string) (payments.MinimumCheck, error) {
	min := f.fees.Minimum(kind)
	return payments.MinimumCheck{Valid: !amount.LessThan(min), MinimumAmount: min}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, sessions Sessions, api Payments) (*Engine, state.Registry) {
	t.Helper()

	reg := state.NewRegistry(state.NewMemoryStorage(), testLogger())
	eng := NewEngine(reg, state.NewMemoryLocker(), sessions, api, apperrors.NewHandler(testLogger(), false), testLogger(), Options{
		MaxAmount:         decimal.NewFromInt(10000),
		MaxBulkRecipients: 3,
		LockTimeout:       50 * time.Millisecond,
	})
	return eng, reg
}

func handleText(t *testing.T, eng *Engine, chatID int64, msg string) []Reply {
	t.Helper()

	replies, handled, err := eng.Handle(context.Background(), chatID, TextInput(msg))
	require.NoError(t, err)
	require.True(t, handled)
	require.NotEmpty(t, replies)
	return replies
}

func press(t *testing.T, eng *Engine, chatID int64, data string) []Reply {
	t.Helper()

	replies, handled, err := eng.Handle(context.Background(), chatID, ParseCallback(data))
	require.NoError(t, err)
	require.True(t, handled)
	require.NotEmpty(t, replies)
	return replies
}

func assertState(t *testing.T, reg state.Registry, chatID int64, want state.State) {
	t.Helper()

	got, err := reg.GetState(context.Background(), chatID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEngine_Login(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 555

	sessions := &mockSessions{}
	sessions.On("GetSession", mock.Anything, chatID).Return(nil, apperrors.NewAuthError("")).Once()
	sessions.On("RequestOTP", mock.Anything, "user@example.com", chatID).Return(nil).Once()
	sessions.On("AuthenticateWithOTP", mock.Anything, "000000", chatID).
		Return(nil, apperrors.NewAPIRequestError("payments", http.StatusBadRequest, "invalid otp")).Once()
	sessions.On("AuthenticateWithOTP", mock.Anything, "123456", chatID).
		Return(&session.Session{ChatID: chatID, Email: "user@example.com", Authenticated: true, Token: "tok"}, nil).Once()

	eng, reg := newTestEngine(t, sessions, newFakePayments(0))

	sub := &recordingSubscriber{}
	eng.SetSubscriber(sub)

	replies, err := eng.Start(ctx, chatID, state.FlowLogin)
	require.NoError(t, err)
	assert.Contains(t, replies[0].Text, "email")
	assertState(t, reg, chatID, state.StateLoginAwaitingEmail)

	replies = handleText(t, eng, chatID, "not-an-email")
	assert.Contains(t, replies[0].Text, "valid email")
	assertState(t, reg, chatID, state.StateLoginAwaitingEmail)

	handleText(t, eng, chatID, "User@Example.com")
	assertState(t, reg, chatID, state.StateLoginAwaitingOTP)

	txCtx, err := reg.GetContext(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", txCtx.LoginEmail)

	replies = handleText(t, eng, chatID, "abc")
	assert.Contains(t, replies[0].Text, "digits")

	replies = handleText(t, eng, chatID, "000000")
	assert.Contains(t, replies[0].Text, "Invalid or expired code")
	assertState(t, reg, chatID, state.StateLoginAwaitingOTP)

	replies = handleText(t, eng, chatID, "123456")
	assert.Contains(t, replies[0].Text, "Logged in")
	assertState(t, reg, chatID, state.StateIdle)

	txCtx, err = reg.GetContext(ctx, chatID)
	require.NoError(t, err)
	assert.True(t, txCtx.IsEmpty())
	assert.Equal(t, []int64{chatID}, sub.chats)
	sessions.AssertExpectations(t)
}

type recordingSubscriber struct {
	chats []int64
}

func (r *recordingSubscriber) SubscribeToOrganization(_ context.Context, chatID int64) error {
	r.chats = append(r.chats, chatID)
	return nil
}

func TestEngine_LoginWhenAlreadyLoggedIn(t *testing.T) {
	sessions := &mockSessions{}
	sessions.On("GetSession", mock.Anything, int64(7)).Return(&session.Session{Email: "me@example.com", Authenticated: true}, nil)

	eng, reg := newTestEngine(t, sessions, newFakePayments(0))

	replies, err := eng.Start(context.Background(), 7, state.FlowLogin)
	require.NoError(t, err)
	assert.Contains(t, replies[0].Text, "already logged in")
	assertState(t, reg, 7, state.StateIdle)
}

func TestEngine_SendEmail(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 42

	api := newFakePayments(100)
	eng, reg := newTestEngine(t, loggedIn(chatID), api)

	_, err := eng.Start(ctx, chatID, state.FlowSendEmail)
	require.NoError(t, err)
	assertState(t, reg, chatID, state.StateSendAwaitingRecipient)

	handleText(t, eng, chatID, "friend@example.com")
	assertState(t, reg, chatID, state.StateSendAwaitingAmount)

	replies := handleText(t, eng, chatID, "50")
	assertState(t, reg, chatID, state.StateSendAwaitingConfirm)
	assert.Contains(t, replies[0].Text, "Fee: 0.10 USDC")
	assert.Contains(t, replies[0].Text, "Total: *50.10 USDC*")
	assert.Equal(t, confirmKeyboard(), replies[0].Keyboard)

	replies = handleText(t, eng, chatID, "maybe")
	assert.Contains(t, replies[0].Text, "confirm or cancel")
	assertState(t, reg, chatID, state.StateSendAwaitingConfirm)

	replies = press(t, eng, chatID, ActionConfirm)
	assert.Contains(t, replies[0].Text, "Transfer submitted")
	assertState(t, reg, chatID, state.StateIdle)

	require.Len(t, api.calls, 1)
	assert.Equal(t, "friend@example.com", api.calls[0].target)
	assert.True(t, api.calls[0].amount.Equal(decimal.NewFromInt(50)))

	txCtx, err := reg.GetContext(ctx, chatID)
	require.NoError(t, err)
	assert.True(t, txCtx.IsEmpty())
}

func TestEngine_SendEmailFailureReturnsToIdle(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 43

	api := newFakePayments(100)
	api.transferErr = apperrors.NewExternalAPIError("payments", http.StatusBadGateway, errors.New("upstream"))
	eng, reg := newTestEngine(t, loggedIn(chatID), api)

	_, err := eng.Start(ctx, chatID, state.FlowSendEmail)
	require.NoError(t, err)
	handleText(t, eng, chatID, "friend@example.com")
	handleText(t, eng, chatID, "50")

	replies := press(t, eng, chatID, ActionConfirm)
	assert.Contains(t, replies[0].Text, "could not be completed")
	assertState(t, reg, chatID, state.StateIdle)
	assert.Len(t, api.calls, 1)
}

func TestEngine_AmountValidation(t *testing.T) {
	const chatID int64 = 44

	testCases := []struct {
		name     string
		input    string
		contains string
	}{
		{name: "not a number", input: "abc", contains: "valid number"},
		{name: "zero", input: "0", contains: "greater than zero"},
		{name: "negative", input: "-5", contains: "greater than zero"},
		{name: "above ceiling", input: "20000", contains: "unusually high"},
		{name: "below minimum", input: "0.5", contains: "minimum amount"},
		{name: "insufficient with fee", input: "99.9", contains: "Insufficient balance"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			eng, reg := newTestEngine(t, loggedIn(chatID), newFakePayments(100))

			_, err := eng.Start(context.Background(), chatID, state.FlowSendEmail)
			require.NoError(t, err)
			handleText(t, eng, chatID, "friend@example.com")

			replies := handleText(t, eng, chatID, tc.input)
			assert.Contains(t, replies[0].Text, tc.contains)
			assertState(t, reg, chatID, state.StateSendAwaitingAmount)

			txCtx, err := reg.GetContext(context.Background(), chatID)
			require.NoError(t, err)
			assert.Nil(t, txCtx.Amount)
			assert.Equal(t, "friend@example.com", txCtx.RecipientEmail)
		})
	}
}

func TestEngine_CancelFromAnyState(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 45

	flows := []state.Flow{
		state.FlowSendEmail,
		state.FlowSendWallet,
		state.FlowWithdrawWallet,
		state.FlowBulk,
		state.FlowPaymentLink,
	}

	for _, flow := range flows {
		flow := flow
		t.Run(string(flow), func(t *testing.T) {
			eng, reg := newTestEngine(t, loggedIn(chatID), newFakePayments(100))

			_, err := eng.Start(ctx, chatID, flow)
			require.NoError(t, err)

			current, err := reg.GetState(ctx, chatID)
			require.NoError(t, err)
			require.True(t, current.IsActive())

			replies := press(t, eng, chatID, ActionCancel)
			assert.Contains(t, replies[0].Text, "cancelled")
			assertState(t, reg, chatID, state.StateIdle)

			_, handled, err := eng.Handle(ctx, chatID, TextInput("hello"))
			require.NoError(t, err)
			assert.False(t, handled)
		})
	}
}

func TestEngine_CancelTyped(t *testing.T) {
	ctx := context.Background()
	eng, reg := newTestEngine(t, loggedIn(46), newFakePayments(100))

	replies, err := eng.Cancel(ctx, 46)
	require.NoError(t, err)
	assert.Contains(t, replies[0].Text, "nothing to cancel")

	_, err = eng.Start(ctx, 46, state.FlowSendEmail)
	require.NoError(t, err)
	handleText(t, eng, 46, "friend@example.com")

	replies = handleText(t, eng, 46, "Cancel")
	assert.Contains(t, replies[0].Text, "cancelled")
	assertState(t, reg, 46, state.StateIdle)
}

func TestEngine_StartDiscardsPreviousFlow(t *testing.T) {
	ctx := context.Background()
	eng, reg := newTestEngine(t, loggedIn(47), newFakePayments(100))

	_, err := eng.Start(ctx, 47, state.FlowSendEmail)
	require.NoError(t, err)
	handleText(t, eng, 47, "friend@example.com")

	_, err = eng.Start(ctx, 47, state.FlowPaymentLink)
	require.NoError(t, err)
	assertState(t, reg, 47, state.StatePayLinkAwaitingAmount)

	txCtx, err := reg.GetContext(ctx, 47)
	require.NoError(t, err)
	assert.Empty(t, txCtx.RecipientEmail)
}

func TestEngine_SendWallet(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 48
	const address = "0x52908400098527886E0F7030069857D2E4169EE7"

	api := newFakePayments(1000)
	eng, reg := newTestEngine(t, loggedIn(chatID), api)

	_, err := eng.Start(ctx, chatID, state.FlowSendWallet)
	require.NoError(t, err)

	replies := handleText(t, eng, chatID, "0x123")
	assert.Contains(t, replies[0].Text, "invalid")
	assertState(t, reg, chatID, state.StateWalletAwaitingAddress)

	handleText(t, eng, chatID, address)
	assertState(t, reg, chatID, state.StateWalletAwaitingNetwork)

	replies = press(t, eng, chatID, CallbackData(ActionNetwork, "solana"))
	assert.Contains(t, replies[0].Text, "cannot receive funds")
	assertState(t, reg, chatID, state.StateWalletAwaitingNetwork)

	press(t, eng, chatID, CallbackData(ActionNetwork, "polygon"))
	assertState(t, reg, chatID, state.StateWalletAwaitingAmount)

	replies = handleText(t, eng, chatID, "100")
	assert.Contains(t, replies[0].Text, "Fee: 0.60 USDC")
	assertState(t, reg, chatID, state.StateWalletAwaitingConfirm)

	press(t, eng, chatID, ActionConfirm)
	assertState(t, reg, chatID, state.StateIdle)

	require.Len(t, api.calls, 1)
	assert.Equal(t, transferCall{kind: "wallet", target: address, network: "polygon", amount: api.calls[0].amount}, api.calls[0])
	assert.True(t, api.calls[0].amount.Equal(decimal.NewFromInt(100)))
}

func TestEngine_ExternalWithdrawalNeedsTypedConfirmation(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 49

	api := newFakePayments(1000)
	eng, reg := newTestEngine(t, loggedIn(chatID), api)

	_, err := eng.Start(ctx, chatID, state.FlowWithdrawWallet)
	require.NoError(t, err)
	handleText(t, eng, chatID, "0x52908400098527886E0F7030069857D2E4169EE7")
	handleText(t, eng, chatID, "base")
	handleText(t, eng, chatID, "20")
	assertState(t, reg, chatID, state.StateExternalAwaitingConfirm)

	replies := press(t, eng, chatID, ActionConfirm)
	assert.Contains(t, replies[0].Text, "cannot be reversed")
	assertState(t, reg, chatID, state.StateExternalAwaitingFinal)
	assert.Empty(t, api.calls)

	handleText(t, eng, chatID, "yes")
	assertState(t, reg, chatID, state.StateExternalAwaitingFinal)

	handleText(t, eng, chatID, "confirm")
	assertState(t, reg, chatID, state.StateIdle)
	require.Len(t, api.calls, 1)
	assert.Equal(t, "base", api.calls[0].network)
}

func TestEngine_BankWithdrawal(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 50

	api := newFakePayments(500)
	api.accounts = []payments.BankAccount{
		{ID: "acc-1", BankName: "First Bank", AccountNumber: "123456789"},
		{ID: "acc-2", BankName: "Second Bank", AccountNumber: "987654321", IsDefault: true},
	}
	eng, reg := newTestEngine(t, loggedIn(chatID), api)

	replies, err := eng.Start(ctx, chatID, state.FlowWithdrawBank)
	require.NoError(t, err)
	require.Len(t, replies[0].Keyboard, 3)
	assert.Equal(t, "bank:acc-1", replies[0].Keyboard[0][0].Data)

	handleText(t, eng, chatID, "7")
	assertState(t, reg, chatID, state.StateBankAwaitingAccount)

	handleText(t, eng, chatID, "2")
	assertState(t, reg, chatID, state.StateBankAwaitingAmount)

	replies = handleText(t, eng, chatID, "10")
	assert.Contains(t, replies[0].Text, "minimum amount")

	replies = handleText(t, eng, chatID, "100")
	assert.Contains(t, replies[0].Text, "Fee: 2.00 USDC")

	press(t, eng, chatID, ActionConfirm)
	assertState(t, reg, chatID, state.StateIdle)
	require.Len(t, api.calls, 1)
	assert.Equal(t, "acc-2", api.calls[0].target)
}

func TestEngine_BankWithdrawalWithoutAccounts(t *testing.T) {
	eng, reg := newTestEngine(t, loggedIn(51), newFakePayments(500))

	replies, err := eng.Start(context.Background(), 51, state.FlowWithdrawBank)
	require.NoError(t, err)
	assert.Contains(t, replies[0].Text, "no bank accounts")
	assertState(t, reg, 51, state.StateIdle)
}

func TestEngine_Bulk(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 52

	api := newFakePayments(1000)
	api.batchFailed = map[string]bool{"bob@example.com": true}
	eng, reg := newTestEngine(t, loggedIn(chatID), api)

	_, err := eng.Start(ctx, chatID, state.FlowBulk)
	require.NoError(t, err)

	replies := handleText(t, eng, chatID, "alice@example.com 25\nbroken line")
	assert.Contains(t, replies[0].Text, "line 2")
	assertState(t, reg, chatID, state.StateBulkAwaitingRecipients)

	replies = handleText(t, eng, chatID, "alice@example.com 25\n\nbob@example.com 10.5")
	assert.Contains(t, replies[0].Text, "2 recipients")
	assert.Contains(t, replies[0].Text, "Amount: 35.50 USDC")
	assertState(t, reg, chatID, state.StateBulkAwaitingConfirm)

	replies = press(t, eng, chatID, ActionConfirm)
	assert.Contains(t, replies[0].Text, "Succeeded: *1*")
	assert.Contains(t, replies[0].Text, "Failed: *1*")
	assertState(t, reg, chatID, state.StateIdle)

	require.Len(t, api.batches, 1)
	assert.Len(t, api.batches[0], 2)
}

func TestParseBulkRecipients(t *testing.T) {
	ceiling := decimal.NewFromInt(10000)

	testCases := []struct {
		name    string
		raw     string
		max     int
		want    int
		wantErr bool
	}{
		{name: "space separated", raw: "a@example.com 10\nb@example.com 20", max: 5, want: 2},
		{name: "comma separated", raw: "a@example.com,10", max: 5, want: 1},
		{name: "thousands separator", raw: "a@example.com 1,000", max: 5, want: 1},
		{name: "semicolon separated", raw: "a@example.com; 10", max: 5, want: 1},
		{name: "currency suffix", raw: "a@example.com 10 USDC", max: 5, want: 1},
		{name: "two amounts", raw: "a@example.com 10 20", max: 5, wantErr: true},
		{name: "comma separated amounts", raw: "a@example.com, 10, 5", max: 5, wantErr: true},
		{name: "decimal comma", raw: "a@example.com 25,5", max: 5, wantErr: true},
		{name: "missing amount", raw: "a@example.com", max: 5, wantErr: true},
		{name: "too many", raw: "a@example.com 1\nb@example.com 1\nc@example.com 1", max: 2, wantErr: true},
		{name: "duplicate", raw: "a@example.com 1\nA@example.com 2", max: 5, wantErr: true},
		{name: "bad amount", raw: "a@example.com ten", max: 5, wantErr: true},
		{name: "empty", raw: "\n\n", max: 5, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseBulkRecipients(tc.raw, ceiling, tc.max)
			if tc.wantErr {
				var lineErr *BulkLineError
				assert.ErrorAs(t, err, &lineErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}
}

func TestEngine_PaymentLink(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 53

	eng, reg := newTestEngine(t, loggedIn(chatID), newFakePayments(0))

	_, err := eng.Start(ctx, chatID, state.FlowPaymentLink)
	require.NoError(t, err)

	handleText(t, eng, chatID, "25")
	assertState(t, reg, chatID, state.StatePayLinkAwaitingPurpose)

	replies := press(t, eng, chatID, ActionSkip)
	assert.Contains(t, replies[0].Text, "https://pay.example.com/pl-1")
	assertState(t, reg, chatID, state.StateIdle)
}

func TestEngine_MarkdownValuesAreEscaped(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 54

	api := newFakePayments(500)
	api.accounts = []payments.BankAccount{{ID: "acc-1", BankName: "first_bank", AccountNumber: "123456789"}}
	api.linkURL = "https://pay.example.com/pay_link_1"
	eng, _ := newTestEngine(t, loggedIn(chatID), api)

	replies, err := eng.Start(ctx, chatID, state.FlowWithdrawBank)
	require.NoError(t, err)
	require.True(t, replies[0].Markdown)
	assert.Contains(t, replies[0].Text, `first\_bank`)
	assert.Equal(t, "first_bank ••••6789", replies[0].Keyboard[0][0].Text, "button labels are plain text")

	replies = press(t, eng, chatID, CallbackData(ActionBank, "acc-1"))
	assert.Contains(t, replies[0].Text, `first\_bank`)

	_, err = eng.Start(ctx, chatID, state.FlowPaymentLink)
	require.NoError(t, err)
	handleText(t, eng, chatID, "25")
	replies = press(t, eng, chatID, ActionSkip)
	assert.Contains(t, replies[0].Text, `https://pay.example.com/pay\_link\_1`)
}

func TestEngine_UnauthenticatedMidFlow(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 54

	sessions := &mockSessions{}
	sessions.On("IsAuthenticated", mock.Anything, chatID).Return(true).Once()
	sessions.On("IsAuthenticated", mock.Anything, chatID).Return(false)

	eng, reg := newTestEngine(t, sessions, newFakePayments(100))

	_, err := eng.Start(ctx, chatID, state.FlowSendEmail)
	require.NoError(t, err)

	replies := handleText(t, eng, chatID, "friend@example.com")
	require.NotEmpty(t, replies[0].Keyboard)
	assert.Equal(t, "flow:login", replies[0].Keyboard[0][0].Data)
	assertState(t, reg, chatID, state.StateIdle)

	txCtx, err := reg.GetContext(ctx, chatID)
	require.NoError(t, err)
	assert.True(t, txCtx.IsEmpty())
}

func TestEngine_StartRequiresLogin(t *testing.T) {
	sessions := &mockSessions{}
	sessions.On("IsAuthenticated", mock.Anything, int64(55)).Return(false)

	eng, reg := newTestEngine(t, sessions, newFakePayments(100))

	replies, err := eng.Start(context.Background(), 55, state.FlowBulk)
	require.NoError(t, err)
	assert.Equal(t, "flow:login", replies[0].Keyboard[0][0].Data)
	assertState(t, reg, 55, state.StateIdle)
}

func TestEngine_UnknownStateResets(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 56

	eng, reg := newTestEngine(t, loggedIn(chatID), newFakePayments(100))
	require.NoError(t, reg.SetState(ctx, chatID, state.State("awaiting_something_removed")))

	replies := handleText(t, eng, chatID, "hello")
	assert.Equal(t, MenuKeyboard(), replies[0].Keyboard)
	assertState(t, reg, chatID, state.StateIdle)
}

func TestEngine_LockBusy(t *testing.T) {
	ctx := context.Background()
	const chatID int64 = 57

	reg := state.NewRegistry(state.NewMemoryStorage(), testLogger())
	locker := state.NewMemoryLocker()
	eng := NewEngine(reg, locker, loggedIn(chatID), newFakePayments(100), nil, testLogger(), Options{LockTimeout: 20 * time.Millisecond})

	unlock, err := locker.Lock(ctx, chatID)
	require.NoError(t, err)
	defer unlock()

	replies, handled, err := eng.Handle(ctx, chatID, TextInput("50"))
	require.NoError(t, err)
	assert.True(t, handled)
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Text, "Still working")
}
