package handlers

import (
	"context"

	"github.com/shopspring/decimal"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/conversation"
	"github.com/Proton-105/payments-bot/internal/payments"
	"github.com/Proton-105/payments-bot/internal/session"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// CallbackHandler processes inline callback events. The router acknowledges the callback
// before the handler runs, so handlers never call Respond.
type CallbackHandler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// AccountAPI is the read side of the payments API used by the account commands.
type AccountAPI interface {
	GetProfile(ctx context.Context, chatID int64) (*payments.User, error)
	GetBalances(ctx context.Context, chatID int64) ([]payments.Balance, error)
	GetWallets(ctx context.Context, chatID int64) ([]payments.Wallet, error)
	SetDefaultWallet(ctx context.Context, chatID int64, walletID string) error
	GetDefaultWallet(ctx context.Context, chatID int64) (*payments.Wallet, error)
	GetTransferHistory(ctx context.Context, chatID int64, page, limit int) (*payments.TransferPage, error)
}

// Sessions is the session provider as seen by the command handlers.
type Sessions interface {
	IsAuthenticated(ctx context.Context, chatID int64) bool
	GetSession(ctx context.Context, chatID int64) (*session.Session, error)
	Logout(ctx context.Context, chatID int64) error
}

// Conversation is the part of the conversation engine the command handlers drive.
type Conversation interface {
	Cancel(ctx context.Context, chatID int64) ([]conversation.Reply, error)
}

// DepositRelay is the notification relay as seen by /logout and /simulate_deposit.
type DepositRelay interface {
	Unsubscribe(ctx context.Context, chatID int64) error
	SimulateDeposit(ctx context.Context, chatID int64, amount decimal.Decimal, network string) error
}
