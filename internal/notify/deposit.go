// Package notify relays deposit events from the payments platform to the chats of the
// organization that received them.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/payments-bot/internal/format"
)

// EventDeposit is the only event type the relay acts on.
const EventDeposit = "deposit"

var (
	ErrUnsupportedEvent = errors.New("unsupported event")
	ErrInvalidDeposit   = errors.New("invalid deposit payload")
)

// Deposit is one incoming USDC deposit.
type Deposit struct {
	Amount         decimal.Decimal `json:"amount"`
	Network        string          `json:"network"`
	OrganizationID string          `json:"organizationId"`
	TxHash         string          `json:"txHash,omitempty"`
	Timestamp      time.Time       `json:"timestamp,omitempty"`
}

// Event is the envelope shared by the webhook and the channel feed.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ParseEvent decodes a deposit event. Other event types yield ErrUnsupportedEvent.
func ParseEvent(raw []byte) (Deposit, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Deposit{}, fmt.Errorf("%w: %v", ErrInvalidDeposit, err)
	}
	if evt.Event != EventDeposit {
		return Deposit{}, fmt.Errorf("%w: %q", ErrUnsupportedEvent, evt.Event)
	}
	return parseDepositData(evt.Data)
}

// parseDepositData accepts the object itself or, as channel feeds send it, a JSON string
// holding the object.
func parseDepositData(data json.RawMessage) (Deposit, error) {
	var encoded string
	if err := json.Unmarshal(data, &encoded); err == nil {
		data = json.RawMessage(encoded)
	}

	var d Deposit
	if err := json.Unmarshal(data, &d); err != nil {
		return Deposit{}, fmt.Errorf("%w: %v", ErrInvalidDeposit, err)
	}
	if err := d.Validate(); err != nil {
		return Deposit{}, err
	}
	return d, nil
}

// Validate checks the fields every deposit must carry.
func (d Deposit) Validate() error {
	if strings.TrimSpace(d.OrganizationID) == "" {
		return fmt.Errorf("%w: organizationId is required", ErrInvalidDeposit)
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidDeposit)
	}
	return nil
}

// Message renders the chat notification for d.
func (d Deposit) Message() string {
	var b strings.Builder
	b.WriteString("💰 *New deposit received*\n\n")
	fmt.Fprintf(&b, "Amount: *%s*\n", format.USDC(d.Amount))
	if d.Network != "" {
		fmt.Fprintf(&b, "Network: %s\n", format.Network(d.Network))
	}
	if d.TxHash != "" {
		fmt.Fprintf(&b, "Tx: %s\n", format.Code(format.ShortAddress(d.TxHash)))
	}
	if !d.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", format.Date(d.Timestamp))
	}
	b.WriteString("\nUse /balance to see your updated balance.")
	return b.String()
}
