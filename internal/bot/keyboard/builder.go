package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/conversation"
	"github.com/Proton-105/payments-bot/internal/i18n"
	"github.com/Proton-105/payments-bot/internal/state"
)

// FromConversation renders engine keyboard rows as inline markup. It returns nil for an
// empty keyboard so callers can pass the result straight to Send.
func FromConversation(kb conversation.Keyboard) *telebot.ReplyMarkup {
	if len(kb) == 0 {
		return nil
	}

	builder := NewInlineKeyboard()
	for _, row := range kb {
		buttons := make([]InlineButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, InlineButton{Text: btn.Text, Unique: btn.Data})
		}
		builder.AddRow(buttons...)
	}

	markup, err := builder.Build()
	if err != nil {
		// Engine payloads are short constants; fall back to the raw rows.
		return &telebot.ReplyMarkup{InlineKeyboard: rawRows(kb)}
	}
	return markup
}

func rawRows(kb conversation.Keyboard) [][]telebot.InlineButton {
	rows := make([][]telebot.InlineButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]telebot.InlineButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, telebot.InlineButton{Text: btn.Text, Data: btn.Data})
		}
		rows = append(rows, buttons)
	}
	return rows
}

// FlowMenu builds the inline menu shown for the "menu" callback: one button per flow.
func FlowMenu(t i18n.Translator) *telebot.ReplyMarkup {
	lookup := func(key, fallback string) string {
		return translated(t, key, fallback)
	}

	flow := func(key, fallback string, f state.Flow) InlineButton {
		return InlineButton{Text: lookup(key, fallback), Unique: conversation.ActionFlow, Data: string(f)}
	}

	markup, _ := NewInlineKeyboard().
		AddRow(
			flow("flow_menu.send_email", "📧 Send to email", state.FlowSendEmail),
			flow("flow_menu.send_wallet", "👛 Send to wallet", state.FlowSendWallet),
		).
		AddRow(
			flow("flow_menu.withdraw_bank", "🏦 Withdraw to bank", state.FlowWithdrawBank),
			flow("flow_menu.withdraw_wallet", "🔐 Withdraw to wallet", state.FlowWithdrawWallet),
		).
		AddRow(
			flow("flow_menu.bulk", "👥 Bulk transfer", state.FlowBulk),
			flow("flow_menu.payment_link", "🔗 Payment link", state.FlowPaymentLink),
		).
		Build()
	return markup
}

// SendChoice offers the two send flows.
func SendChoice(t i18n.Translator) *telebot.ReplyMarkup {
	markup, _ := NewInlineKeyboard().
		AddRow(InlineButton{Text: translated(t, "flow_menu.send_email", "📧 Send to email"), Unique: conversation.ActionFlow, Data: string(state.FlowSendEmail)}).
		AddRow(InlineButton{Text: translated(t, "flow_menu.send_wallet", "👛 Send to wallet"), Unique: conversation.ActionFlow, Data: string(state.FlowSendWallet)}).
		AddRow(cancelButton(t)).
		Build()
	return markup
}

// WithdrawChoice offers the two withdrawal flows.
func WithdrawChoice(t i18n.Translator) *telebot.ReplyMarkup {
	markup, _ := NewInlineKeyboard().
		AddRow(InlineButton{Text: translated(t, "flow_menu.withdraw_bank", "🏦 Withdraw to bank"), Unique: conversation.ActionFlow, Data: string(state.FlowWithdrawBank)}).
		AddRow(InlineButton{Text: translated(t, "flow_menu.withdraw_wallet", "🔐 Withdraw to wallet"), Unique: conversation.ActionFlow, Data: string(state.FlowWithdrawWallet)}).
		AddRow(cancelButton(t)).
		Build()
	return markup
}

// MenuButton is the single "Menu" button attached to fallback replies.
func MenuButton(t i18n.Translator) *telebot.ReplyMarkup {
	markup, _ := NewInlineKeyboard().
		AddRow(InlineButton{Text: translated(t, "flow_menu.menu", "📋 Menu"), Unique: conversation.ActionMenu}).
		Build()
	return markup
}

// LoginButton starts the login flow.
func LoginButton(t i18n.Translator) *telebot.ReplyMarkup {
	markup, _ := NewInlineKeyboard().
		AddRow(InlineButton{Text: translated(t, "flow_menu.login", "🔑 Log in"), Unique: conversation.ActionFlow, Data: string(state.FlowLogin)}).
		Build()
	return markup
}

func cancelButton(t i18n.Translator) InlineButton {
	return InlineButton{Text: translated(t, "flow_menu.cancel", "❌ Cancel"), Unique: conversation.ActionCancel}
}
