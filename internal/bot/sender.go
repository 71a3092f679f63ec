package bot

import (
	"context"
	"errors"

	telebot "gopkg.in/telebot.v3"
)

var errBotNotStarted = errors.New("telegram bot is not initialized")

// Notify pushes an unsolicited Markdown message, such as a deposit notification, to a chat.
func (b *Bot) Notify(ctx context.Context, chatID int64, text string) error {
	if b == nil || b.telebot == nil {
		return errBotNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.telebot.Send(telebot.ChatID(chatID), text, telebot.ModeMarkdown)
	return err
}
