package state

import "github.com/shopspring/decimal"

// BulkRecipient is one line of a bulk transfer.
type BulkRecipient struct {
	Email  string          `json:"email"`
	Amount decimal.Decimal `json:"amount"`
}

// TxContext accumulates the fields a flow collects. Fields are filled step by step and only
// the terminal confirmation step treats the record as complete.
type TxContext struct {
	LoginEmail     string           `json:"login_email,omitempty"`
	RecipientEmail string           `json:"recipient_email,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Fee            *decimal.Decimal `json:"fee,omitempty"`
	WalletAddress  string           `json:"wallet_address,omitempty"`
	Network        string           `json:"network,omitempty"`
	BankAccountID  string           `json:"bank_account_id,omitempty"`
	BulkRecipients []BulkRecipient  `json:"bulk_recipients,omitempty"`
	Purpose        string           `json:"purpose,omitempty"`
}

// Merge shallow-merges patch into c: every non-empty field of patch wins.
func (c TxContext) Merge(patch TxContext) TxContext {
	if patch.LoginEmail != "" {
		c.LoginEmail = patch.LoginEmail
	}
	if patch.RecipientEmail != "" {
		c.RecipientEmail = patch.RecipientEmail
	}
	if patch.Amount != nil {
		amount := *patch.Amount
		c.Amount = &amount
	}
	if patch.Fee != nil {
		fee := *patch.Fee
		c.Fee = &fee
	}
	if patch.WalletAddress != "" {
		c.WalletAddress = patch.WalletAddress
	}
	if patch.Network != "" {
		c.Network = patch.Network
	}
	if patch.BankAccountID != "" {
		c.BankAccountID = patch.BankAccountID
	}
	if patch.BulkRecipients != nil {
		c.BulkRecipients = append([]BulkRecipient(nil), patch.BulkRecipients...)
	}
	if patch.Purpose != "" {
		c.Purpose = patch.Purpose
	}
	return c
}

// Clone returns a copy that shares no memory with c.
func (c TxContext) Clone() TxContext {
	return TxContext{}.Merge(c)
}

// IsEmpty reports whether no field has been collected.
func (c TxContext) IsEmpty() bool {
	return c.LoginEmail == "" && c.RecipientEmail == "" && c.Amount == nil && c.Fee == nil &&
		c.WalletAddress == "" && c.Network == "" && c.BankAccountID == "" &&
		len(c.BulkRecipients) == 0 && c.Purpose == ""
}

// Total returns amount plus fee, treating missing values as zero.
func (c TxContext) Total() decimal.Decimal {
	total := decimal.Zero
	if c.Amount != nil {
		total = total.Add(*c.Amount)
	}
	if c.Fee != nil {
		total = total.Add(*c.Fee)
	}
	return total
}

// Decimal is a helper for building patches.
func Decimal(d decimal.Decimal) *decimal.Decimal {
	return &d
}
