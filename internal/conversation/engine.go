// Package conversation drives the multi-step chat flows: login, transfers, withdrawals, bulk
// transfers and payment links. It is transport-neutral; the bot package renders its replies.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/Proton-105/payments-bot/internal/errors"
	"github.com/Proton-105/payments-bot/internal/format"
	"github.com/Proton-105/payments-bot/internal/payments"
	"github.com/Proton-105/payments-bot/internal/session"
	"github.com/Proton-105/payments-bot/internal/state"
)

// Sessions is the session/auth provider.
type Sessions interface {
	IsAuthenticated(ctx context.Context, chatID int64) bool
	GetSession(ctx context.Context, chatID int64) (*session.Session, error)
	RequestOTP(ctx context.Context, email string, chatID int64) error
	AuthenticateWithOTP(ctx context.Context, otp string, chatID int64) (*session.Session, error)
}

// Payments is the part of the payments API client the flows call.
type Payments interface {
	GetBalances(ctx context.Context, chatID int64) ([]payments.Balance, error)
	GetBankAccounts(ctx context.Context, chatID int64) ([]payments.BankAccount, error)
	SendFundsToEmail(ctx context.Context, chatID int64, email string, amount decimal.Decimal) (*payments.Transfer, error)
	SendFundsToWallet(ctx context.Context, chatID int64, address, network string, amount decimal.Decimal) (*payments.Transfer, error)
	WithdrawToBank(ctx context.Context, chatID int64, bankAccountID string, amount decimal.Decimal) (*payments.Transfer, error)
	SendBatch(ctx context.Context, chatID int64, items []payments.BatchItem) (*payments.BatchResult, error)
	CreatePaymentLink(ctx context.Context, chatID int64, amount decimal.Decimal, purpose string) (*payments.PaymentLink, error)
	CalculateFee(ctx context.Context, chatID int64, amount decimal.Decimal, kind payments.TransferKind, network string) (decimal.Decimal, error)
	ValidateMinimumAmount(ctx context.Context, chatID int64, amount decimal.Decimal, kind payments.TransferKind, network string) (payments.MinimumCheck, error)
}

// Subscriber registers a freshly logged-in chat for deposit notifications.
type Subscriber interface {
	SubscribeToOrganization(ctx context.Context, chatID int64) error
}

// Options tunes the engine's limits.
type Options struct {
	// MaxAmount is the per-transfer ceiling; larger amounts are rejected as unusually high.
	MaxAmount         decimal.Decimal
	MaxBulkRecipients int
	// LockTimeout bounds how long an update waits for the previous update of the same chat.
	LockTimeout time.Duration
}

var errNoHandler = errors.New("no step handler for state")

// Engine routes inbound input to the step handler of the chat's current state. Updates of one
// chat are serialized through the Locker.
type Engine struct {
	registry   state.Registry
	locker     state.Locker
	sessions   Sessions
	payments   Payments
	subscriber Subscriber
	errs       *apperrors.Handler
	log        *slog.Logger
	opts       Options
}

// NewEngine wires an Engine. locker and errs may be nil.
func NewEngine(registry state.Registry, locker state.Locker, sessions Sessions, api Payments, errs *apperrors.Handler, log *slog.Logger, opts Options) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if !opts.MaxAmount.IsPositive() {
		opts.MaxAmount = decimal.NewFromInt(10000)
	}
	if opts.MaxBulkRecipients <= 0 {
		opts.MaxBulkRecipients = 50
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 30 * time.Second
	}

	return &Engine{
		registry: registry,
		locker:   locker,
		sessions: sessions,
		payments: api,
		errs:     errs,
		log:      log.With("component", "conversation"),
		opts:     opts,
	}
}

// SetSubscriber attaches the deposit notification subscriber used after login.
func (e *Engine) SetSubscriber(sub Subscriber) {
	e.subscriber = sub
}

// Active returns the chat's current state.
func (e *Engine) Active(ctx context.Context, chatID int64) (state.State, error) {
	return e.registry.GetState(ctx, chatID)
}

// Start begins flow for chatID. Any flow in progress is discarded together with its context.
func (e *Engine) Start(ctx context.Context, chatID int64, flow state.Flow) ([]Reply, error) {
	entry, ok := state.EntryState(flow)
	if !ok {
		return nil, fmt.Errorf("unknown flow %q", flow)
	}

	unlock, err := e.lock(ctx, chatID)
	if err != nil {
		return e.lockFailed(err)
	}
	defer unlock()

	if flow == state.FlowLogin {
		if sess, err := e.sessions.GetSession(ctx, chatID); err == nil {
			return []Reply{text(fmt.Sprintf("✅ You are already logged in as *%s*. Use /logout to switch accounts.", format.Escape(sess.Email)))}, nil
		}
	} else if !e.sessions.IsAuthenticated(ctx, chatID) {
		return e.authRequired(ctx, chatID), nil
	}

	if err := e.registry.ClearChat(ctx, chatID); err != nil {
		return e.fail(ctx, chatID, err), nil
	}

	replies, proceed, err := e.enter(ctx, chatID, flow)
	if err != nil {
		return e.fail(ctx, chatID, err), nil
	}
	if !proceed {
		return replies, nil
	}

	if err := e.registry.TransitionTo(ctx, chatID, entry); err != nil {
		return e.fail(ctx, chatID, err), nil
	}

	e.log.Debug("flow started", slog.Int64("chat_id", chatID), slog.String("flow", string(flow)))
	return replies, nil
}

// Handle feeds input to the step handler of the chat's current state. handled is false when the
// chat is idle; the caller then answers with its own fallback.
func (e *Engine) Handle(ctx context.Context, chatID int64, in Input) ([]Reply, bool, error) {
	unlock, err := e.lock(ctx, chatID)
	if err != nil {
		replies, lockErr := e.lockFailed(err)
		return replies, true, lockErr
	}
	defer unlock()

	current, err := e.registry.GetState(ctx, chatID)
	if err != nil {
		return e.fail(ctx, chatID, err), true, nil
	}
	if current == state.StateIdle {
		return nil, false, nil
	}

	if in.IsAction(ActionCancel) {
		return e.cancelLocked(ctx, chatID, current), true, nil
	}

	flow := state.FlowOf(current)
	if flow != state.FlowLogin && flow != state.FlowNone && !e.sessions.IsAuthenticated(ctx, chatID) {
		return e.authRequired(ctx, chatID), true, nil
	}

	replies, err := e.dispatch(ctx, chatID, current, in)
	if err != nil {
		if errors.Is(err, errNoHandler) {
			e.log.Warn("active state without handler, resetting", slog.Int64("chat_id", chatID), slog.String("state", string(current)))
		}
		return e.fail(ctx, chatID, err), true, nil
	}
	return replies, true, nil
}

// Cancel aborts the chat's flow, if any.
func (e *Engine) Cancel(ctx context.Context, chatID int64) ([]Reply, error) {
	unlock, err := e.lock(ctx, chatID)
	if err != nil {
		return e.lockFailed(err)
	}
	defer unlock()

	current, err := e.registry.GetState(ctx, chatID)
	if err != nil {
		return e.fail(ctx, chatID, err), nil
	}
	if current == state.StateIdle {
		return []Reply{withKeyboard("There is nothing to cancel.", MenuKeyboard())}, nil
	}
	return e.cancelLocked(ctx, chatID, current), nil
}

// Discard drops the chat's flow and context without replying, e.g. on logout.
func (e *Engine) Discard(ctx context.Context, chatID int64) error {
	unlock, err := e.lock(ctx, chatID)
	if err != nil {
		return err
	}
	defer unlock()

	return e.registry.ClearChat(ctx, chatID)
}

func (e *Engine) cancelLocked(ctx context.Context, chatID int64, current state.State) []Reply {
	e.finish(ctx, chatID)
	e.log.Info("flow cancelled", slog.Int64("chat_id", chatID), slog.String("state", string(current)))
	return []Reply{withKeyboard("❌ Operation cancelled.", MenuKeyboard())}
}

func (e *Engine) dispatch(ctx context.Context, chatID int64, current state.State, in Input) ([]Reply, error) {
	switch state.FlowOf(current) {
	case state.FlowLogin:
		return e.loginStep(ctx, chatID, current, in)
	case state.FlowSendEmail:
		return e.sendEmailStep(ctx, chatID, current, in)
	case state.FlowSendWallet:
		return e.sendWalletStep(ctx, chatID, current, in)
	case state.FlowWithdrawBank:
		return e.bankStep(ctx, chatID, current, in)
	case state.FlowWithdrawWallet:
		return e.externalStep(ctx, chatID, current, in)
	case state.FlowBulk:
		return e.bulkStep(ctx, chatID, current, in)
	case state.FlowPaymentLink:
		return e.payLinkStep(ctx, chatID, current, in)
	default:
		return nil, errNoHandler
	}
}

// enter produces the entry prompt of flow. proceed is false when the flow cannot start.
func (e *Engine) enter(ctx context.Context, chatID int64, flow state.Flow) ([]Reply, bool, error) {
	switch flow {
	case state.FlowLogin:
		return []Reply{withKeyboard("🔑 Please enter the email address of your account:", cancelKeyboard())}, true, nil
	case state.FlowSendEmail:
		return []Reply{withKeyboard("📧 Enter the recipient's email address:", cancelKeyboard())}, true, nil
	case state.FlowSendWallet, state.FlowWithdrawWallet:
		return []Reply{withKeyboard("👛 Enter the destination wallet address:", cancelKeyboard())}, true, nil
	case state.FlowWithdrawBank:
		return e.enterBank(ctx, chatID)
	case state.FlowBulk:
		return []Reply{withKeyboard(fmt.Sprintf(
			"👥 Send the recipients, one per line, as `email amount`. Up to %d recipients, for example:\n\n`alice@example.com 25`\n`bob@example.com 10.5`",
			e.opts.MaxBulkRecipients), cancelKeyboard())}, true, nil
	case state.FlowPaymentLink:
		return []Reply{withKeyboard("🔗 How much USDC should the payment link request?", cancelKeyboard())}, true, nil
	default:
		return nil, false, fmt.Errorf("unknown flow %q", flow)
	}
}

// advance merges patch into the context and moves to next.
func (e *Engine) advance(ctx context.Context, chatID int64, next state.State, patch state.TxContext) error {
	if !patch.IsEmpty() {
		if err := e.registry.UpdateContext(ctx, chatID, patch); err != nil {
			return err
		}
	}
	return e.registry.TransitionTo(ctx, chatID, next)
}

// finish returns the chat to idle and drops its context.
func (e *Engine) finish(ctx context.Context, chatID int64) {
	if err := e.registry.ClearChat(ctx, chatID); err != nil {
		e.log.Error("failed to clear chat", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

// fail recovers from an unexpected step error: log, reset to idle and show a safe message.
func (e *Engine) fail(ctx context.Context, chatID int64, err error) []Reply {
	if apperrors.IsAuth(err) {
		return e.authRequired(ctx, chatID)
	}

	msg, _ := e.errs.Handle(ctx, err)
	if resetErr := e.registry.ResetState(ctx, chatID); resetErr != nil {
		e.log.Error("failed to reset state after error", slog.Int64("chat_id", chatID), slog.Any("error", resetErr))
	}
	return []Reply{withKeyboard(msg, MenuKeyboard())}
}

func (e *Engine) authRequired(ctx context.Context, chatID int64) []Reply {
	e.finish(ctx, chatID)
	return []Reply{withKeyboard(
		apperrors.NewAuthError("").UserMessage,
		Keyboard{{{Text: "🔑 Login", Data: CallbackData(ActionFlow, string(state.FlowLogin))}}},
	)}
}

func (e *Engine) lock(ctx context.Context, chatID int64) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.opts.LockTimeout)
	defer cancel()
	return e.locker.Lock(lockCtx, chatID)
}

func (e *Engine) lockFailed(err error) ([]Reply, error) {
	if errors.Is(err, state.ErrStateLocked) {
		return []Reply{text("⏳ Still working on your previous message, please wait a moment.")}, nil
	}
	return nil, err
}
