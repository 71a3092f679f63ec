package bot

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/handlers"
	"github.com/Proton-105/payments-bot/internal/conversation"
	"github.com/Proton-105/payments-bot/internal/state"
)

// Conversation is the conversation engine as driven by the bot.
type Conversation interface {
	Start(ctx context.Context, chatID int64, flow state.Flow) ([]conversation.Reply, error)
	Handle(ctx context.Context, chatID int64, in conversation.Input) ([]conversation.Reply, bool, error)
	Cancel(ctx context.Context, chatID int64) ([]conversation.Reply, error)
	Discard(ctx context.Context, chatID int64) error
}

// Dispatcher bridges Telegram updates and the conversation engine: it normalizes text and
// button presses into engine input and renders the engine's replies.
type Dispatcher struct {
	engine  Conversation
	expired handlers.CallbackHandler
	log     *slog.Logger
}

// NewDispatcher creates a Dispatcher. expired answers flow buttons pressed while no flow is active.
func NewDispatcher(engine Conversation, expired handlers.CallbackHandler, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		engine:  engine,
		expired: expired,
		log:     log,
	}
}

// Dispatch routes free text to the chat's active flow. It reports false when the chat is idle.
func (d *Dispatcher) Dispatch(c telebot.Context) (bool, error) {
	if c == nil || d.engine == nil {
		return false, nil
	}

	ctx, cancel := handlers.UpdateContext()
	defer cancel()

	replies, handled, err := d.engine.Handle(ctx, handlers.ChatID(c), conversation.TextInput(c.Text()))
	if err != nil || !handled {
		return handled, err
	}
	return true, handlers.SendReplies(c, replies)
}

// FlowCallback routes a flow button (confirm, network, bank account, skip) into the active flow.
func (d *Dispatcher) FlowCallback() handlers.CallbackHandler {
	return func(c telebot.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}

		ctx, cancel := handlers.UpdateContext()
		defer cancel()

		replies, handled, err := d.engine.Handle(ctx, handlers.ChatID(c), conversation.ParseCallback(cb.Data))
		if err != nil {
			return err
		}
		if !handled {
			return d.answerExpired(c)
		}
		return handlers.SendReplies(c, replies)
	}
}

// StartFlow returns a command handler that starts flow.
func (d *Dispatcher) StartFlow(flow state.Flow) handlers.Handler {
	return func(c telebot.Context) error {
		return d.start(c, flow)
	}
}

// StartFromCallback handles "flow:<name>" buttons.
func (d *Dispatcher) StartFromCallback() handlers.CallbackHandler {
	return func(c telebot.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}

		in := conversation.ParseCallback(cb.Data)
		flow := state.Flow(in.Value)
		if _, ok := state.EntryState(flow); !ok {
			d.log.Warn("unknown flow requested", slog.String("flow", in.Value), slog.Int64("chat_id", handlers.ChatID(c)))
			return d.answerExpired(c)
		}
		return d.start(c, flow)
	}
}

func (d *Dispatcher) start(c telebot.Context, flow state.Flow) error {
	ctx, cancel := handlers.UpdateContext()
	defer cancel()

	replies, err := d.engine.Start(ctx, handlers.ChatID(c), flow)
	if err != nil {
		return err
	}
	return handlers.SendReplies(c, replies)
}

func (d *Dispatcher) answerExpired(c telebot.Context) error {
	if d.expired == nil {
		return nil
	}
	return d.expired(c)
}
