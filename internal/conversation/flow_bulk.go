package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Proton-105/payments-bot/internal/format"
	"github.com/Proton-105/payments-bot/internal/payments"
	"github.com/Proton-105/payments-bot/internal/state"
	"github.com/Proton-105/payments-bot/pkg/metrics"
)

// bulkPreviewLines caps the recipients listed in the confirmation message.
const bulkPreviewLines = 10

// BulkLineError reports the first malformed line of a recipient list.
type BulkLineError struct {
	Line   int
	Reason string
}

func (e *BulkLineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ParseBulkRecipients parses "email amount" lines. Blank lines are skipped; duplicate emails
// are rejected.
func ParseBulkRecipients(raw string, ceiling decimal.Decimal, max int) ([]state.BulkRecipient, error) {
	var recipients []state.BulkRecipient
	seen := make(map[string]struct{})

	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields, ok := splitBulkLine(line)
		if !ok {
			return nil, &BulkLineError{Line: i + 1, Reason: "expected `email amount`"}
		}

		email, err := ValidateEmail(fields[0])
		if err != nil {
			return nil, &BulkLineError{Line: i + 1, Reason: "invalid email"}
		}
		if _, dup := seen[email]; dup {
			return nil, &BulkLineError{Line: i + 1, Reason: "duplicate recipient"}
		}
		seen[email] = struct{}{}

		amount, err := ParseAmount(fields[1], ceiling)
		if err != nil {
			reason := "invalid amount"
			if errors.Is(err, ErrAmountTooHigh) {
				reason = "amount above the " + format.USDC(ceiling) + " limit"
			}
			return nil, &BulkLineError{Line: i + 1, Reason: reason}
		}

		recipients = append(recipients, state.BulkRecipient{Email: email, Amount: amount})
		if len(recipients) > max {
			return nil, &BulkLineError{Line: i + 1, Reason: fmt.Sprintf("at most %d recipients are allowed", max)}
		}
	}

	if len(recipients) == 0 {
		return nil, &BulkLineError{Line: 1, Reason: "no recipients found"}
	}
	return recipients, nil
}

// splitBulkLine splits a recipient line into exactly an email and one amount. The email may be
// followed by a comma or semicolon and the amount by a "USDC" suffix; anything else is rejected.
func splitBulkLine(line string) ([2]string, bool) {
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == '\t' || r == ';' })
	if len(fields) == 0 {
		return [2]string{}, false
	}

	// "email,amount" written without a space.
	if at := strings.IndexByte(fields[0], ','); at >= 0 && at < len(fields[0])-1 {
		fields = append([]string{fields[0][:at], fields[0][at+1:]}, fields[1:]...)
	}
	fields[0] = strings.TrimSuffix(fields[0], ",")

	if len(fields) == 3 && strings.EqualFold(fields[2], "USDC") {
		fields = fields[:2]
	}
	if len(fields) != 2 {
		return [2]string{}, false
	}
	return [2]string{fields[0], fields[1]}, true
}

func (e *Engine) bulkStep(ctx context.Context, chatID int64, current state.State, in Input) ([]Reply, error) {
	switch current {
	case state.StateBulkAwaitingRecipients:
		recipients, err := ParseBulkRecipients(in.Text, e.opts.MaxAmount, e.opts.MaxBulkRecipients)
		if err != nil {
			return []Reply{withKeyboard("❌ Could not read the recipient list ("+err.Error()+"). Please send it again:", cancelKeyboard())}, nil
		}

		total, fee, replies, err := e.quoteBulk(ctx, chatID, recipients)
		if replies != nil || err != nil {
			return replies, err
		}

		patch := state.TxContext{BulkRecipients: recipients, Amount: state.Decimal(total), Fee: state.Decimal(fee)}
		if err := e.advance(ctx, chatID, state.StateBulkAwaitingConfirm, patch); err != nil {
			return nil, err
		}

		txCtx, err := e.registry.GetContext(ctx, chatID)
		if err != nil {
			return nil, err
		}
		return []Reply{withKeyboard(bulkSummary(txCtx), confirmKeyboard())}, nil

	case state.StateBulkAwaitingConfirm:
		if !in.IsAction(ActionConfirm) {
			return confirmPrompt(), nil
		}

		txCtx, err := e.registry.GetContext(ctx, chatID)
		if err != nil {
			return nil, err
		}
		if len(txCtx.BulkRecipients) == 0 {
			return nil, errMissingContext
		}
		return e.executeBulk(ctx, chatID, txCtx.BulkRecipients)
	}

	return nil, errNoHandler
}

// quoteBulk checks every amount against the email minimum and the summed fees against the balance.
func (e *Engine) quoteBulk(ctx context.Context, chatID int64, recipients []state.BulkRecipient) (decimal.Decimal, decimal.Decimal, []Reply, error) {
	smallest := recipients[0].Amount
	total := decimal.Zero
	for _, r := range recipients {
		total = total.Add(r.Amount)
		if r.Amount.LessThan(smallest) {
			smallest = r.Amount
		}
	}

	check, err := e.payments.ValidateMinimumAmount(ctx, chatID, smallest, payments.KindEmail, "")
	if err != nil {
		return decimal.Zero, decimal.Zero, nil, err
	}
	if !check.Valid {
		return decimal.Zero, decimal.Zero, []Reply{withKeyboard(fmt.Sprintf(
			"❌ Every amount must be at least *%s*. Please send the list again:",
			format.USDC(check.MinimumAmount)), cancelKeyboard())}, nil
	}

	fee := decimal.Zero
	for _, r := range recipients {
		itemFee, err := e.payments.CalculateFee(ctx, chatID, r.Amount, payments.KindEmail, "")
		if err != nil {
			return decimal.Zero, decimal.Zero, nil, err
		}
		fee = fee.Add(itemFee)
	}

	if replies, err := e.checkBalance(ctx, chatID, total, fee); replies != nil || err != nil {
		return decimal.Zero, decimal.Zero, replies, err
	}
	return total, fee, nil, nil
}

func (e *Engine) executeBulk(ctx context.Context, chatID int64, recipients []state.BulkRecipient) ([]Reply, error) {
	items := make([]payments.BatchItem, 0, len(recipients))
	for _, r := range recipients {
		items = append(items, payments.BatchItem{RequestID: uuid.NewString(), Email: r.Email, Amount: r.Amount})
	}

	result, err := e.payments.SendBatch(ctx, chatID, items)
	e.finish(ctx, chatID)
	if err != nil {
		metrics.RecordTransfer("batch", false)
		return e.transferFailed(ctx, chatID, err), nil
	}

	succeeded := 0
	var failed []string
	byID := make(map[string]payments.BatchItemResult, len(result.Responses))
	for _, r := range result.Responses {
		byID[r.RequestID] = r
	}
	for _, item := range items {
		if r, ok := byID[item.RequestID]; ok && r.Succeeded() {
			succeeded++
			continue
		}
		failed = append(failed, item.Email)
	}
	metrics.RecordTransfer("batch", len(failed) == 0)

	if len(failed) > 0 {
		e.log.Warn("bulk transfer partially failed", slog.Int64("chat_id", chatID), slog.Int("failed", len(failed)), slog.Int("succeeded", succeeded))
	}

	msg := fmt.Sprintf("✅ Bulk transfer submitted.\n\nSucceeded: *%d*\nFailed: *%d*", succeeded, len(failed))
	if len(failed) > 0 {
		msg += "\n\nNot sent to:\n" + format.Escape(strings.Join(failed, "\n"))
	}
	return []Reply{withKeyboard(msg, MenuKeyboard())}, nil
}

func bulkSummary(txCtx state.TxContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Confirm bulk transfer* to %d recipients\n\n", len(txCtx.BulkRecipients))
	for i, r := range txCtx.BulkRecipients {
		if i == bulkPreviewLines {
			fmt.Fprintf(&b, "…and %d more\n", len(txCtx.BulkRecipients)-bulkPreviewLines)
			break
		}
		fmt.Fprintf(&b, "%s: %s\n", format.Escape(r.Email), format.USDC(r.Amount))
	}

	fee := decimal.Zero
	if txCtx.Fee != nil {
		fee = *txCtx.Fee
	}
	amount := decimal.Zero
	if txCtx.Amount != nil {
		amount = *txCtx.Amount
	}
	fmt.Fprintf(&b, "\nAmount: %s\nFee: %s\nTotal: *%s*\n\nPlease confirm.", format.USDC(amount), format.USDC(fee), format.USDC(txCtx.Total()))
	return b.String()
}
