package handlers

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/keyboard"
	"github.com/Proton-105/payments-bot/internal/i18n"
)

// NewMenuHandler answers the "menu" callback with the flow menu.
func NewMenuHandler(translations *i18n.Manager) CallbackHandler {
	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}
		t := Translator(translations, c)
		return c.Send(i18n.Text(t, "messages.choose_action", "📋 What would you like to do?"), keyboard.FlowMenu(t))
	}
}

// NewSendMenuHandler answers /send with the choice between email and wallet transfers.
func NewSendMenuHandler(translations *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}
		return c.Send("📤 Where do you want to send USDC?", keyboard.SendChoice(Translator(translations, c)))
	}
}

// NewWithdrawMenuHandler answers /withdraw with the choice between bank and wallet withdrawals.
func NewWithdrawMenuHandler(translations *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}
		return c.Send("🏦 Where do you want to withdraw to?", keyboard.WithdrawChoice(Translator(translations, c)))
	}
}

// NewFallbackHandler answers free text that no flow is waiting for.
func NewFallbackHandler(translations *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}
		t := Translator(translations, c)
		return c.Send(i18n.Text(t, "messages.fallback", "🤔 I didn't understand that. Use the menu below or /help."), keyboard.MenuButton(t))
	}
}

// NewExpiredButtonHandler answers flow buttons pressed after their flow has ended.
func NewExpiredButtonHandler(translations *i18n.Manager) CallbackHandler {
	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}
		t := Translator(translations, c)
		return c.Send(i18n.Text(t, "messages.expired_button", "⌛ This button has expired. Start again from the menu."), keyboard.MenuButton(t))
	}
}
