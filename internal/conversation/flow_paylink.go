package conversation

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/Proton-105/payments-bot/internal/format"
	"github.com/Proton-105/payments-bot/internal/state"
)

const maxPurposeLength = 100

func (e *Engine) payLinkStep(ctx context.Context, chatID int64, current state.State, in Input) ([]Reply, error) {
	switch current {
	case state.StatePayLinkAwaitingAmount:
		amount, err := ParseAmount(in.Text, e.opts.MaxAmount)
		if err != nil {
			return []Reply{withKeyboard(amountErrorText(err, e.opts.MaxAmount), cancelKeyboard())}, nil
		}
		if err := e.advance(ctx, chatID, state.StatePayLinkAwaitingPurpose, state.TxContext{Amount: state.Decimal(amount)}); err != nil {
			return nil, err
		}
		return []Reply{withKeyboard("📝 Add a short description for the payer, or skip:", Keyboard{{
			{Text: "⏭ Skip", Data: ActionSkip},
			{Text: "❌ Cancel", Data: ActionCancel},
		}})}, nil

	case state.StatePayLinkAwaitingPurpose:
		purpose := ""
		if !in.IsAction(ActionSkip) {
			if in.Action != "" || in.Text == "" {
				return []Reply{withKeyboard("Please type a description or press Skip.", cancelKeyboard())}, nil
			}
			if utf8.RuneCountInString(in.Text) > maxPurposeLength {
				return []Reply{withKeyboard(fmt.Sprintf("❌ The description is too long (max %d characters). Please shorten it:", maxPurposeLength), cancelKeyboard())}, nil
			}
			purpose = in.Text
		}

		txCtx, err := e.registry.GetContext(ctx, chatID)
		if err != nil {
			return nil, err
		}
		amount, err := requireAmount(txCtx)
		if err != nil {
			return nil, err
		}

		link, err := e.payments.CreatePaymentLink(ctx, chatID, amount, purpose)
		e.finish(ctx, chatID)
		if err != nil {
			return e.transferFailed(ctx, chatID, err), nil
		}

		msg := fmt.Sprintf("🔗 Payment link for *%s* created:\n%s", format.USDC(amount), format.Escape(link.URL))
		if purpose != "" {
			msg += "\n\nDescription: " + format.Escape(purpose)
		}
		if !link.ExpiresAt.IsZero() {
			msg += "\nExpires: " + format.Date(link.ExpiresAt)
		}
		return []Reply{withKeyboard(msg, MenuKeyboard())}, nil
	}

	return nil, errNoHandler
}
