package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/keyboard"
	apperrors "github.com/Proton-105/payments-bot/internal/errors"
	"github.com/Proton-105/payments-bot/internal/format"
	"github.com/Proton-105/payments-bot/internal/i18n"
	"github.com/Proton-105/payments-bot/internal/payments"
)

// CallbackSetDefaultWallet is the callback action of the "make default" wallet buttons.
const CallbackSetDefaultWallet = "wallet_default"

// Account serves the read-only account commands: /me, /balance, /wallets, /deposit and the
// default wallet callback.
type Account struct {
	api      AccountAPI
	sessions Sessions
	i18n     *i18n.Manager
	errs     *apperrors.Handler
	log      *slog.Logger
}

func NewAccount(api AccountAPI, sessions Sessions, translations *i18n.Manager, errs *apperrors.Handler, log *slog.Logger) *Account {
	if log == nil {
		log = slog.Default()
	}
	return &Account{
		api:      api,
		sessions: sessions,
		i18n:     translations,
		errs:     errs,
		log:      log,
	}
}

// Me shows the profile of the logged-in account.
func (a *Account) Me() Handler {
	return a.authenticated(func(ctx context.Context, c telebot.Context, chatID int64) error {
		profile, err := a.api.GetProfile(ctx, chatID)
		if err != nil {
			return a.failure(ctx, c, err)
		}

		name := strings.TrimSpace(profile.FirstName + " " + profile.LastName)
		if name == "" {
			name = "-"
		}

		var b strings.Builder
		b.WriteString("👤 *Your profile*\n\n")
		fmt.Fprintf(&b, "Name: %s\n", format.Escape(name))
		fmt.Fprintf(&b, "Email: %s\n", format.Escape(profile.Email))
		if profile.Role != "" {
			fmt.Fprintf(&b, "Role: %s\n", format.Escape(profile.Role))
		}
		if profile.Status != "" {
			fmt.Fprintf(&b, "Status: %s\n", format.Escape(profile.Status))
		}
		if profile.OrganizationID != "" {
			fmt.Fprintf(&b, "Organization: %s\n", format.Code(profile.OrganizationID))
		}

		return sendMarkdown(c, b.String(), nil)
	})
}

// Balance lists the balance of every wallet and their total.
func (a *Account) Balance() Handler {
	return a.authenticated(func(ctx context.Context, c telebot.Context, chatID int64) error {
		balances, err := a.api.GetBalances(ctx, chatID)
		if err != nil {
			return a.failure(ctx, c, err)
		}
		if len(balances) == 0 {
			return c.Send("💰 You have no wallets yet. Use /deposit to get your deposit address.")
		}

		total := decimal.Zero
		var b strings.Builder
		b.WriteString("💰 *Your balances*\n\n")
		for _, bal := range balances {
			total = total.Add(bal.Balance)
			marker := ""
			if bal.IsDefault {
				marker = " ⭐"
			}
			fmt.Fprintf(&b, "• *%s*%s: %s\n", format.Network(bal.Network), marker, format.USDC(bal.Balance))
		}
		fmt.Fprintf(&b, "\nTotal: *%s*", format.USDC(total))

		return sendMarkdown(c, b.String(), nil)
	})
}

// Wallets lists wallets with a button to make each non-default wallet the default.
func (a *Account) Wallets() Handler {
	return a.authenticated(func(ctx context.Context, c telebot.Context, chatID int64) error {
		wallets, err := a.api.GetWallets(ctx, chatID)
		if err != nil {
			return a.failure(ctx, c, err)
		}
		if len(wallets) == 0 {
			return c.Send("👛 You have no wallets yet.")
		}

		return sendMarkdown(c, walletsText(wallets), walletsKeyboard(wallets))
	})
}

// SetDefaultWallet handles "wallet_default:<id>" callbacks.
func (a *Account) SetDefaultWallet() CallbackHandler {
	return CallbackHandler(a.authenticated(func(ctx context.Context, c telebot.Context, chatID int64) error {
		walletID := ""
		if cb := c.Callback(); cb != nil {
			_, walletID, _ = keyboard.DecodeCallback(cb.Data)
		}
		if walletID == "" {
			return c.Send("❌ Unknown wallet.")
		}

		if err := a.api.SetDefaultWallet(ctx, chatID, walletID); err != nil {
			return a.failure(ctx, c, err)
		}

		a.log.Info("default wallet changed", slog.Int64("chat_id", chatID), slog.String("wallet_id", walletID))
		return c.Send("✅ Default wallet updated.")
	}))
}

// Deposit shows the default wallet's address for incoming USDC.
func (a *Account) Deposit() Handler {
	return a.authenticated(func(ctx context.Context, c telebot.Context, chatID int64) error {
		wallet, err := a.api.GetDefaultWallet(ctx, chatID)
		if err != nil {
			return a.failure(ctx, c, err)
		}
		if wallet == nil || wallet.WalletAddress == "" {
			return c.Send("📥 No default wallet is set. Use /wallets to choose one.")
		}

		text := fmt.Sprintf(
			"📥 *Deposit USDC*\n\nSend USDC on *%s* to:\n%s\n\n⚠️ Only send USDC on the %s network. You will be notified when the deposit arrives.",
			format.Network(wallet.Network),
			format.Code(wallet.WalletAddress),
			format.Network(wallet.Network),
		)
		return sendMarkdown(c, text, nil)
	})
}

type authenticatedFunc func(ctx context.Context, c telebot.Context, chatID int64) error

// authenticated runs fn only for logged-in chats and answers everyone else with a login button.
func (a *Account) authenticated(fn authenticatedFunc) Handler {
	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}

		ctx, cancel := UpdateContext()
		defer cancel()

		chatID := ChatID(c)
		if a.sessions == nil || !a.sessions.IsAuthenticated(ctx, chatID) {
			return c.Send("🔒 Please log in first.", keyboard.LoginButton(Translator(a.i18n, c)))
		}
		return fn(ctx, c, chatID)
	}
}

// failure reports err and answers with its user-facing message. Authentication failures get
// a login button.
func (a *Account) failure(ctx context.Context, c telebot.Context, err error) error {
	msg, _ := a.errs.Handle(ctx, err)
	if apperrors.IsAuth(err) {
		return c.Send(msg, keyboard.LoginButton(Translator(a.i18n, c)))
	}
	return c.Send(msg)
}

func walletsText(wallets []payments.Wallet) string {
	var b strings.Builder
	b.WriteString("👛 *Your wallets*\n")
	for i, w := range wallets {
		marker := ""
		if w.IsDefault {
			marker = " ⭐ default"
		}
		fmt.Fprintf(&b, "\n%d. *%s*%s\n%s\n", i+1, format.Network(w.Network), marker, format.Code(w.WalletAddress))
	}
	return b.String()
}

func walletsKeyboard(wallets []payments.Wallet) *telebot.ReplyMarkup {
	builder := keyboard.NewInlineKeyboard()
	for i, w := range wallets {
		if w.IsDefault {
			continue
		}
		builder.AddRow(keyboard.InlineButton{
			Text:   fmt.Sprintf("⭐ Make #%d (%s) default", i+1, format.Network(w.Network)),
			Unique: CallbackSetDefaultWallet,
			Data:   w.ID,
		})
	}

	markup, err := builder.Build()
	if err != nil || len(markup.InlineKeyboard) == 0 {
		return nil
	}
	return markup
}
