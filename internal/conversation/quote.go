package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/payments-bot/internal/format"
	"github.com/Proton-105/payments-bot/internal/payments"
	"github.com/Proton-105/payments-bot/internal/state"
	"github.com/Proton-105/payments-bot/pkg/metrics"
)

type quote struct {
	amount decimal.Decimal
	fee    decimal.Decimal
}

// quoteAmount runs the amount step checks in order: parse and ceiling, minimum, fee, then the
// fee-inclusive balance check. Non-nil replies mean the user must re-enter the amount.
func (e *Engine) quoteAmount(ctx context.Context, chatID int64, in Input, kind payments.TransferKind, network string) (*quote, []Reply, error) {
	amount, err := ParseAmount(in.Text, e.opts.MaxAmount)
	if err != nil {
		return nil, []Reply{withKeyboard(amountErrorText(err, e.opts.MaxAmount), cancelKeyboard())}, nil
	}

	check, err := e.payments.ValidateMinimumAmount(ctx, chatID, amount, kind, network)
	if err != nil {
		return nil, nil, err
	}
	if !check.Valid {
		return nil, []Reply{withKeyboard(fmt.Sprintf(
			"❌ The minimum amount for this transfer is *%s*. Please enter a larger amount:",
			format.USDC(check.MinimumAmount)), cancelKeyboard())}, nil
	}

	fee, err := e.payments.CalculateFee(ctx, chatID, amount, kind, network)
	if err != nil {
		return nil, nil, err
	}

	if replies, err := e.checkBalance(ctx, chatID, amount, fee); replies != nil || err != nil {
		return nil, replies, err
	}

	return &quote{amount: amount, fee: fee}, nil, nil
}

func (e *Engine) checkBalance(ctx context.Context, chatID int64, amount, fee decimal.Decimal) ([]Reply, error) {
	available, err := e.availableBalance(ctx, chatID)
	if err != nil {
		return nil, err
	}

	var insufficient *InsufficientBalanceError
	if err := CheckBalance(available, amount, fee); errors.As(err, &insufficient) {
		return []Reply{withKeyboard(fmt.Sprintf(
			"❌ Insufficient balance.\n\nRequired: *%s* (amount + fee)\nAvailable: *%s*\n\nPlease enter a smaller amount:",
			format.USDC(insufficient.Required), format.USDC(insufficient.Available)), cancelKeyboard())}, nil
	}
	return nil, nil
}

// availableBalance sums the USDC balances of every wallet.
func (e *Engine) availableBalance(ctx context.Context, chatID int64) (decimal.Decimal, error) {
	balances, err := e.payments.GetBalances(ctx, chatID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, b := range balances {
		if b.Symbol == "" || strings.EqualFold(b.Symbol, payments.Currency) {
			total = total.Add(b.Balance)
		}
	}
	return total, nil
}

// summary renders the confirmation message of a single transfer.
func summary(title string, lines []string, txCtx state.TxContext) string {
	var b strings.Builder
	b.WriteString("*" + title + "*\n\n")
	for _, line := range lines {
		b.WriteString(line + "\n")
	}

	fee := decimal.Zero
	if txCtx.Fee != nil {
		fee = *txCtx.Fee
	}
	amount := decimal.Zero
	if txCtx.Amount != nil {
		amount = *txCtx.Amount
	}

	fmt.Fprintf(&b, "Amount: %s\nFee: %s\nTotal: *%s*\n\nPlease confirm.", format.USDC(amount), format.USDC(fee), format.USDC(txCtx.Total()))
	return b.String()
}

// execute runs a terminal transfer call. The chat returns to idle whatever the outcome.
func (e *Engine) execute(ctx context.Context, chatID int64, kind string, call func() (*payments.Transfer, error)) ([]Reply, error) {
	transfer, err := call()
	e.finish(ctx, chatID)
	metrics.RecordTransfer(kind, err == nil)

	if err != nil {
		return e.transferFailed(ctx, chatID, err), nil
	}

	msg := fmt.Sprintf("✅ Transfer submitted!\n\nAmount: *%s*", format.USDC(transfer.Amount))
	if transfer.Status != "" {
		msg += "\nStatus: " + format.Escape(transfer.Status)
	}
	if transfer.ID != "" {
		msg += "\nReference: " + format.Code(transfer.ID)
	}
	return []Reply{withKeyboard(msg, MenuKeyboard())}, nil
}

func (e *Engine) transferFailed(ctx context.Context, chatID int64, err error) []Reply {
	if IsAuthError(err) {
		return e.authRequired(ctx, chatID)
	}
	msg, _ := e.errs.Handle(ctx, err)
	return []Reply{withKeyboard("❌ The transfer could not be completed.\n\n"+msg, MenuKeyboard())}
}

var errMissingContext = errors.New("transaction context incomplete")

func requireAmount(txCtx state.TxContext) (decimal.Decimal, error) {
	if txCtx.Amount == nil {
		return decimal.Zero, errMissingContext
	}
	return *txCtx.Amount, nil
}
