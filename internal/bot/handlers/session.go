package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/payments"
	"github.com/Proton-105/payments-bot/internal/ratelimit"
)

const defaultSimulatedNetwork = "polygon"

var defaultSimulatedAmount = decimal.NewFromInt(100)

// NewCancelHandler aborts the chat's flow.
func NewCancelHandler(conv Conversation, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}

		ctx, cancel := UpdateContext()
		defer cancel()

		replies, err := conv.Cancel(ctx, ChatID(c))
		if err != nil {
			log.Error("failed to cancel flow", slog.Int64("chat_id", ChatID(c)), slog.Any("error", err))
			return err
		}
		return SendReplies(c, replies)
	}
}

// Discarder drops a chat's flow without replying.
type Discarder interface {
	Discard(ctx context.Context, chatID int64) error
}

// NewLogoutHandler drops the session, the active flow and the deposit subscription.
func NewLogoutHandler(sessions Sessions, conv Discarder, relay DepositRelay, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}

		ctx, cancel := UpdateContext()
		defer cancel()

		chatID := ChatID(c)
		if !sessions.IsAuthenticated(ctx, chatID) {
			return c.Send("ℹ️ You are not logged in.")
		}

		if conv != nil {
			if err := conv.Discard(ctx, chatID); err != nil {
				log.Warn("failed to discard flow on logout", slog.Int64("chat_id", chatID), slog.Any("error", err))
			}
		}
		if relay != nil {
			if err := relay.Unsubscribe(ctx, chatID); err != nil {
				log.Warn("failed to unsubscribe on logout", slog.Int64("chat_id", chatID), slog.Any("error", err))
			}
		}

		if err := sessions.Logout(ctx, chatID); err != nil {
			return err
		}

		log.Info("chat logged out", slog.Int64("chat_id", chatID))
		return c.Send("👋 You have been logged out.")
	}
}

// NewSimulateDepositHandler handles "/simulate_deposit [amount] [network]".
func NewSimulateDepositHandler(sessions Sessions, relay DepositRelay, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		if c == nil {
			return nil
		}

		ctx, cancel := UpdateContext()
		defer cancel()

		chatID := ChatID(c)
		if !sessions.IsAuthenticated(ctx, chatID) {
			return c.Send("🔒 Please log in first with /login.")
		}

		amount, network, err := parseSimulateArgs(CommandArgs(c.Text()))
		if err != nil {
			return c.Send("Usage: /simulate\\_deposit \\[amount] \\[network], e.g. `/simulate_deposit 25 solana`", telebot.ModeMarkdown)
		}

		switch err := relay.SimulateDeposit(ctx, chatID, amount, network); {
		case err == nil:
			return nil
		case errors.Is(err, ratelimit.ErrLimitExceeded):
			return c.Send("⏳ Please wait a few seconds between deposit notifications.")
		default:
			log.Error("simulated deposit failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
			return err
		}
	}
}

// CommandArgs returns the whitespace-separated arguments after the command word.
func CommandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

func parseSimulateArgs(args []string) (decimal.Decimal, string, error) {
	amount := defaultSimulatedAmount
	network := defaultSimulatedNetwork

	if len(args) > 0 {
		parsed, err := decimal.NewFromString(args[0])
		if err != nil || !parsed.IsPositive() {
			return decimal.Zero, "", errors.New("invalid amount")
		}
		amount = parsed
	}
	if len(args) > 1 {
		network = strings.ToLower(args[1])
		if !payments.IsSupportedNetwork(network) {
			return decimal.Zero, "", fmt.Errorf("unsupported network %q", network)
		}
	}
	return amount, network, nil
}
