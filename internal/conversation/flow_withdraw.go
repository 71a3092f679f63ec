package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Proton-105/payments-bot/internal/format"
	"github.com/Proton-105/payments-bot/internal/payments"
	"github.com/Proton-105/payments-bot/internal/state"
)

// finalConfirmWord must be typed to release an external wallet withdrawal.
const finalConfirmWord = "CONFIRM"

func (e *Engine) enterBank(ctx context.Context, chatID int64) ([]Reply, bool, error) {
	accounts, err := e.payments.GetBankAccounts(ctx, chatID)
	if err != nil {
		return nil, false, err
	}
	if len(accounts) == 0 {
		return []Reply{withKeyboard("🏦 You have no bank accounts linked. Add one in the web dashboard first, then try /withdraw again.", MenuKeyboard())}, false, nil
	}

	var b strings.Builder
	b.WriteString("🏦 Choose the bank account to withdraw to:\n\n")
	kb := make(Keyboard, 0, len(accounts)+1)
	for i, acc := range accounts {
		label := bankLabel(acc)
		fmt.Fprintf(&b, "%d. %s\n", i+1, format.Escape(label))
		kb = append(kb, []Button{{Text: label, Data: CallbackData(ActionBank, acc.ID)}})
	}
	kb = append(kb, []Button{{Text: "❌ Cancel", Data: ActionCancel}})

	return []Reply{withKeyboard(b.String(), kb)}, true, nil
}

func (e *Engine) bankStep(ctx context.Context, chatID int64, current state.State, in Input) ([]Reply, error) {
	switch current {
	case state.StateBankAwaitingAccount:
		accounts, err := e.payments.GetBankAccounts(ctx, chatID)
		if err != nil {
			return nil, err
		}
		acc, ok := pickAccount(accounts, in.Choice(ActionBank))
		if !ok {
			return []Reply{withKeyboard("❌ Unknown bank account. Please choose one from the list:", cancelKeyboard())}, nil
		}
		if err := e.advance(ctx, chatID, state.StateBankAwaitingAmount, state.TxContext{BankAccountID: acc.ID}); err != nil {
			return nil, err
		}
		return []Reply{withKeyboard(fmt.Sprintf("💵 How much USDC do you want to withdraw to %s?", format.Escape(bankLabel(*acc))), cancelKeyboard())}, nil

	case state.StateBankAwaitingAmount:
		q, replies, err := e.quoteAmount(ctx, chatID, in, payments.KindBank, "")
		if replies != nil || err != nil {
			return replies, err
		}
		return e.toConfirmation(ctx, chatID, state.StateBankAwaitingConfirm, q, func(txCtx state.TxContext) string {
			return summary("Confirm bank withdrawal", []string{"Account: " + format.Code(txCtx.BankAccountID)}, txCtx)
		})

	case state.StateBankAwaitingConfirm:
		if !in.IsAction(ActionConfirm) {
			return confirmPrompt(), nil
		}

		txCtx, err := e.registry.GetContext(ctx, chatID)
		if err != nil {
			return nil, err
		}
		amount, err := requireAmount(txCtx)
		if err != nil || txCtx.BankAccountID == "" {
			return nil, errMissingContext
		}
		return e.execute(ctx, chatID, string(payments.KindBank), func() (*payments.Transfer, error) {
			return e.payments.WithdrawToBank(ctx, chatID, txCtx.BankAccountID, amount)
		})
	}

	return nil, errNoHandler
}

// externalStep is the wallet withdrawal flow. It differs from a wallet send by the extra typed
// confirmation before funds leave the account.
func (e *Engine) externalStep(ctx context.Context, chatID int64, current state.State, in Input) ([]Reply, error) {
	switch current {
	case state.StateExternalAwaitingAddress:
		return e.addressStep(ctx, chatID, in, state.StateExternalAwaitingNetwork)

	case state.StateExternalAwaitingNetwork:
		return e.networkStep(ctx, chatID, in, state.StateExternalAwaitingAmount)

	case state.StateExternalAwaitingAmount:
		return e.walletAmountStep(ctx, chatID, in, state.StateExternalAwaitingConfirm, "Confirm withdrawal")

	case state.StateExternalAwaitingConfirm:
		if !in.IsAction(ActionConfirm) {
			return confirmPrompt(), nil
		}
		if err := e.registry.TransitionTo(ctx, chatID, state.StateExternalAwaitingFinal); err != nil {
			return nil, err
		}
		return []Reply{withKeyboard(fmt.Sprintf(
			"⚠️ Withdrawals to external wallets cannot be reversed.\n\nType *%s* to proceed or press Cancel.", finalConfirmWord), cancelKeyboard())}, nil

	case state.StateExternalAwaitingFinal:
		if !strings.EqualFold(strings.TrimSpace(in.Text), finalConfirmWord) {
			return []Reply{withKeyboard(fmt.Sprintf("Type *%s* to proceed or press Cancel.", finalConfirmWord), cancelKeyboard())}, nil
		}
		return e.executeWallet(ctx, chatID)
	}

	return nil, errNoHandler
}

// pickAccount matches choice against an account ID or its 1-based position in the list.
func pickAccount(accounts []payments.BankAccount, choice string) (*payments.BankAccount, bool) {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return nil, false
	}
	for i := range accounts {
		if accounts[i].ID == choice {
			return &accounts[i], true
		}
	}
	if n, err := strconv.Atoi(choice); err == nil && n >= 1 && n <= len(accounts) {
		return &accounts[n-1], true
	}
	return nil, false
}

func bankLabel(acc payments.BankAccount) string {
	label := acc.BankName
	if label == "" {
		label = "Bank account"
	}
	if acc.AccountNumber != "" {
		label += " " + format.MaskAccount(acc.AccountNumber)
	}
	if acc.IsDefault {
		label += " (default)"
	}
	return label
}
