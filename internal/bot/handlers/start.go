package handlers

import (
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/keyboard"
	"github.com/Proton-105/payments-bot/internal/format"
	"github.com/Proton-105/payments-bot/internal/i18n"
)

const helpText = `*USDC payments bot*

*Account*
/login - log in with your email
/logout - log out
/me - your profile
/balance - wallet balances
/wallets - wallets and default wallet
/deposit - deposit address
/history - recent transfers

*Move money*
/send - send USDC to an email or wallet
/withdraw - withdraw to a bank account or external wallet
/bulk - send to many emails at once
/paylink - create a payment link

/simulate\_deposit \[amount] \[network] - test a deposit notification
/cancel - abort the current operation`

// NewStartHandler greets the user and installs the main reply keyboard.
func NewStartHandler(sessions Sessions, translations *i18n.Manager, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}

		ctx, cancel := UpdateContext()
		defer cancel()

		t := Translator(translations, c)
		name := "there"
		if sender := c.Sender(); sender != nil && sender.FirstName != "" {
			name = sender.FirstName
		}

		chatID := ChatID(c)
		if sessions != nil && sessions.IsAuthenticated(ctx, chatID) {
			if sess, err := sessions.GetSession(ctx, chatID); err == nil {
				return c.Send(
					fmt.Sprintf("👋 Welcome back, %s! You are logged in as *%s*.", format.Escape(name), format.Escape(sess.Email)),
					telebot.ModeMarkdown,
					keyboard.MainMenu(t),
				)
			}
		}

		if err := c.Send(
			fmt.Sprintf("👋 Hi %s! I can send, withdraw and receive USDC for you.", name),
			keyboard.MainMenu(t),
		); err != nil {
			log.Error("failed to send welcome", slog.Int64("chat_id", chatID), slog.Any("error", err))
			return err
		}

		return c.Send("🔑 Log in to get started.", keyboard.LoginButton(t))
	}
}

// NewHelpHandler lists the commands.
func NewHelpHandler() Handler {
	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}
		return c.Send(helpText, telebot.ModeMarkdown)
	}
}
