package keyboard

import (
	telebot "gopkg.in/telebot.v3"
)

// InlineButton represents a lightweight inline keyboard button definition used by the builder.
type InlineButton struct {
	Text   string
	Unique string // Callback action, e.g. "history".
	Data   string // Optional value appended as "<unique>:<data>".
}

// InlineKeyboardBuilder accumulates rows of InlineButton definitions before rendering telebot markup.
type InlineKeyboardBuilder struct {
	rows [][]InlineButton
}

// NewInlineKeyboard creates an empty builder.
func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{rows: make([][]InlineButton, 0)}
}

// AddRow appends a new row made of custom InlineButton definitions.
func (b *InlineKeyboardBuilder) AddRow(buttons ...InlineButton) *InlineKeyboardBuilder {
	if len(buttons) == 0 {
		return b
	}

	row := make([]InlineButton, len(buttons))
	copy(row, buttons)
	b.rows = append(b.rows, row)
	return b
}

// Build encodes every button's callback data and returns inline markup. It fails when any
// payload exceeds Telegram's 64-byte limit.
func (b *InlineKeyboardBuilder) Build() (*telebot.ReplyMarkup, error) {
	inlineKeyboard := make([][]telebot.InlineButton, len(b.rows))
	for i, row := range b.rows {
		inlineKeyboard[i] = make([]telebot.InlineButton, len(row))
		for j, btn := range row {
			data, err := EncodeCallback(btn.Unique, btn.Data)
			if err != nil {
				return nil, err
			}
			inlineKeyboard[i][j] = telebot.InlineButton{
				Text: btn.Text,
				Data: data,
			}
		}
	}

	return &telebot.ReplyMarkup{InlineKeyboard: inlineKeyboard}, nil
}
