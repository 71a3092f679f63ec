package handlers

import (
	"context"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/keyboard"
	"github.com/Proton-105/payments-bot/internal/conversation"
	"github.com/Proton-105/payments-bot/internal/i18n"
)

// updateTimeout bounds the API calls made while handling one update.
const updateTimeout = 60 * time.Second

// UpdateContext returns the context used to process one update.
func UpdateContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), updateTimeout)
}

// ChatID returns the chat the update belongs to, falling back to the sender for updates
// without a chat.
func ChatID(c telebot.Context) int64 {
	if c == nil {
		return 0
	}
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	if sender := c.Sender(); sender != nil {
		return sender.ID
	}
	return 0
}

// Translator picks the catalog matching the sender's Telegram language.
func Translator(m *i18n.Manager, c telebot.Context) i18n.Translator {
	lang := ""
	if c != nil && c.Sender() != nil {
		lang = c.Sender().LanguageCode
	}
	return m.Translator(lang)
}

// SendReplies renders engine replies in order.
func SendReplies(c telebot.Context, replies []conversation.Reply) error {
	for _, reply := range replies {
		if reply.Text == "" {
			continue
		}

		opts := make([]interface{}, 0, 2)
		if reply.Markdown {
			opts = append(opts, telebot.ModeMarkdown)
		}
		if markup := keyboard.FromConversation(reply.Keyboard); markup != nil {
			opts = append(opts, markup)
		}

		if err := c.Send(reply.Text, opts...); err != nil {
			return err
		}
	}
	return nil
}

func sendMarkdown(c telebot.Context, text string, markup *telebot.ReplyMarkup) error {
	if markup == nil {
		return c.Send(text, telebot.ModeMarkdown)
	}
	return c.Send(text, telebot.ModeMarkdown, markup)
}
