package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Proton-105/payments-bot/internal/format"
	"github.com/Proton-105/payments-bot/internal/state"
)

func (e *Engine) loginStep(ctx context.Context, chatID int64, current state.State, in Input) ([]Reply, error) {
	switch current {
	case state.StateLoginAwaitingEmail:
		email, err := ValidateEmail(in.Text)
		if err != nil {
			return []Reply{withKeyboard("❌ That doesn't look like a valid email. Please enter your email address:", cancelKeyboard())}, nil
		}

		if err := e.sessions.RequestOTP(ctx, email, chatID); err != nil {
			return nil, err
		}
		if err := e.advance(ctx, chatID, state.StateLoginAwaitingOTP, state.TxContext{LoginEmail: email}); err != nil {
			return nil, err
		}
		return []Reply{withKeyboard(fmt.Sprintf("📨 A one-time code was sent to *%s*. Enter it here:", format.Escape(email)), cancelKeyboard())}, nil

	case state.StateLoginAwaitingOTP:
		otp, ok := ValidateOTP(in.Text)
		if !ok {
			return []Reply{withKeyboard("❌ The code should contain digits only. Please enter the code from your email:", cancelKeyboard())}, nil
		}

		sess, err := e.sessions.AuthenticateWithOTP(ctx, otp, chatID)
		if err != nil {
			if isRejected(err) {
				return []Reply{withKeyboard("❌ Invalid or expired code. Please try again:", cancelKeyboard())}, nil
			}
			return nil, err
		}
		e.finish(ctx, chatID)

		if e.subscriber != nil {
			if err := e.subscriber.SubscribeToOrganization(ctx, chatID); err != nil {
				e.log.Warn("deposit notification subscription failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
			}
		}

		return []Reply{withKeyboard(fmt.Sprintf("✅ Logged in as *%s*.\n\nUse /balance to see your funds or /send to make a transfer.", format.Escape(sess.Email)), MenuKeyboard())}, nil
	}

	return nil, errNoHandler
}
