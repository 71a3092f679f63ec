package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Proton-105/payments-bot/internal/format"
	"github.com/Proton-105/payments-bot/internal/payments"
	"github.com/Proton-105/payments-bot/internal/state"
)

func (e *Engine) sendEmailStep(ctx context.Context, chatID int64, current state.State, in Input) ([]Reply, error) {
	switch current {
	case state.StateSendAwaitingRecipient:
		email, err := ValidateEmail(in.Text)
		if err != nil {
			return []Reply{withKeyboard("❌ That doesn't look like a valid email. Please enter the recipient's email address:", cancelKeyboard())}, nil
		}
		if err := e.advance(ctx, chatID, state.StateSendAwaitingAmount, state.TxContext{RecipientEmail: email}); err != nil {
			return nil, err
		}
		return []Reply{withKeyboard(fmt.Sprintf("💵 How much USDC do you want to send to *%s*?", format.Escape(email)), cancelKeyboard())}, nil

	case state.StateSendAwaitingAmount:
		q, replies, err := e.quoteAmount(ctx, chatID, in, payments.KindEmail, "")
		if replies != nil || err != nil {
			return replies, err
		}
		return e.toConfirmation(ctx, chatID, state.StateSendAwaitingConfirm, q, func(txCtx state.TxContext) string {
			return summary("Confirm transfer", []string{"To: " + format.Escape(txCtx.RecipientEmail)}, txCtx)
		})

	case state.StateSendAwaitingConfirm:
		if !in.IsAction(ActionConfirm) {
			return confirmPrompt(), nil
		}

		txCtx, err := e.registry.GetContext(ctx, chatID)
		if err != nil {
			return nil, err
		}
		amount, err := requireAmount(txCtx)
		if err != nil || txCtx.RecipientEmail == "" {
			return nil, errMissingContext
		}
		return e.execute(ctx, chatID, string(payments.KindEmail), func() (*payments.Transfer, error) {
			return e.payments.SendFundsToEmail(ctx, chatID, txCtx.RecipientEmail, amount)
		})
	}

	return nil, errNoHandler
}

func (e *Engine) sendWalletStep(ctx context.Context, chatID int64, current state.State, in Input) ([]Reply, error) {
	switch current {
	case state.StateWalletAwaitingAddress:
		return e.addressStep(ctx, chatID, in, state.StateWalletAwaitingNetwork)

	case state.StateWalletAwaitingNetwork:
		return e.networkStep(ctx, chatID, in, state.StateWalletAwaitingAmount)

	case state.StateWalletAwaitingAmount:
		return e.walletAmountStep(ctx, chatID, in, state.StateWalletAwaitingConfirm, "Confirm wallet transfer")

	case state.StateWalletAwaitingConfirm:
		if !in.IsAction(ActionConfirm) {
			return confirmPrompt(), nil
		}
		return e.executeWallet(ctx, chatID)
	}

	return nil, errNoHandler
}

func (e *Engine) addressStep(ctx context.Context, chatID int64, in Input, next state.State) ([]Reply, error) {
	address, err := ValidateAddress(in.Text)
	if err != nil {
		return []Reply{withKeyboard("❌ That wallet address looks invalid or too short. Please enter a valid address:", cancelKeyboard())}, nil
	}
	if err := e.advance(ctx, chatID, next, state.TxContext{WalletAddress: address}); err != nil {
		return nil, err
	}
	return []Reply{withKeyboard("🌐 Select the network:", networkKeyboard())}, nil
}

func (e *Engine) networkStep(ctx context.Context, chatID int64, in Input, next state.State) ([]Reply, error) {
	network := strings.ToLower(strings.TrimSpace(in.Choice(ActionNetwork)))
	if !payments.IsSupportedNetwork(network) {
		return []Reply{withKeyboard("❌ Unsupported network. Please choose one of the networks below:", networkKeyboard())}, nil
	}

	txCtx, err := e.registry.GetContext(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !addressMatchesNetwork(txCtx.WalletAddress, network) {
		return []Reply{withKeyboard(fmt.Sprintf("❌ The address %s cannot receive funds on %s. Choose another network or /cancel:",
			format.Code(format.ShortAddress(txCtx.WalletAddress)), format.Network(network)), networkKeyboard())}, nil
	}

	if err := e.advance(ctx, chatID, next, state.TxContext{Network: network}); err != nil {
		return nil, err
	}
	return []Reply{withKeyboard(fmt.Sprintf("💵 How much USDC do you want to send on %s?", format.Network(network)), cancelKeyboard())}, nil
}

func (e *Engine) walletAmountStep(ctx context.Context, chatID int64, in Input, next state.State, title string) ([]Reply, error) {
	txCtx, err := e.registry.GetContext(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if txCtx.Network == "" {
		return nil, errMissingContext
	}

	q, replies, err := e.quoteAmount(ctx, chatID, in, payments.KindWallet, txCtx.Network)
	if replies != nil || err != nil {
		return replies, err
	}
	return e.toConfirmation(ctx, chatID, next, q, func(txCtx state.TxContext) string {
		return summary(title, []string{
			"To: " + format.Code(txCtx.WalletAddress),
			"Network: " + format.Network(txCtx.Network),
		}, txCtx)
	})
}

func (e *Engine) executeWallet(ctx context.Context, chatID int64) ([]Reply, error) {
	txCtx, err := e.registry.GetContext(ctx, chatID)
	if err != nil {
		return nil, err
	}
	amount, err := requireAmount(txCtx)
	if err != nil || txCtx.WalletAddress == "" || txCtx.Network == "" {
		return nil, errMissingContext
	}
	return e.execute(ctx, chatID, string(payments.KindWallet), func() (*payments.Transfer, error) {
		return e.payments.SendFundsToWallet(ctx, chatID, txCtx.WalletAddress, txCtx.Network, amount)
	})
}

// toConfirmation stores the quote, moves to the confirmation state and renders the summary.
func (e *Engine) toConfirmation(ctx context.Context, chatID int64, next state.State, q *quote, render func(state.TxContext) string) ([]Reply, error) {
	patch := state.TxContext{Amount: state.Decimal(q.amount), Fee: state.Decimal(q.fee)}
	if err := e.advance(ctx, chatID, next, patch); err != nil {
		return nil, err
	}

	txCtx, err := e.registry.GetContext(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return []Reply{withKeyboard(render(txCtx), confirmKeyboard())}, nil
}

func confirmPrompt() []Reply {
	return []Reply{withKeyboard("Please use the buttons below to confirm or cancel.", confirmKeyboard())}
}

func networkKeyboard() Keyboard {
	var rows Keyboard
	var row []Button
	for _, network := range payments.Networks() {
		row = append(row, Button{Text: format.Network(network), Data: CallbackData(ActionNetwork, network)})
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return append(rows, []Button{{Text: "❌ Cancel", Data: ActionCancel}})
}

// addressMatchesNetwork rejects EVM addresses on Solana and base58 addresses on EVM networks.
func addressMatchesNetwork(address, network string) bool {
	evm := strings.HasPrefix(address, "0x")
	if network == "solana" {
		return !evm
	}
	return evm
}
