package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferKind selects the rail used for a transfer; fees and minimums depend on it.
type TransferKind string

const (
	KindEmail  TransferKind = "email"
	KindWallet TransferKind = "wallet"
	KindBank   TransferKind = "bank"
)

// Currency is the only asset the bot moves.
const Currency = "USDC"

const defaultPurposeCode = "self"

// OTPRequest is returned when an email OTP has been sent.
type OTPRequest struct {
	Email string `json:"email"`
	SID   string `json:"sid"`
}

// User is the account the access token belongs to.
type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	OrganizationID string `json:"organizationId"`
	Role           string `json:"role"`
	Status         string `json:"status"`
}

// AuthResult is returned by a successful OTP verification.
type AuthResult struct {
	AccessToken string    `json:"accessToken"`
	ExpireAt    time.Time `json:"expireAt"`
	User        User      `json:"user"`
}

// Balance of one wallet.
type Balance struct {
	WalletID  string          `json:"walletId"`
	Network   string          `json:"network"`
	Symbol    string          `json:"symbol"`
	Balance   decimal.Decimal `json:"balance"`
	Address   string          `json:"address"`
	IsDefault bool            `json:"isDefault"`
}

type Wallet struct {
	ID            string `json:"id"`
	Network       string `json:"network"`
	WalletAddress string `json:"walletAddress"`
	WalletType    string `json:"walletType"`
	IsDefault     bool   `json:"isDefault"`
}

type BankAccount struct {
	ID            string `json:"id"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	Country       string `json:"country"`
	IsDefault     bool   `json:"isDefault"`
}

// Transfer is one movement of funds as reported by the API.
type Transfer struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"totalFee"`
	Currency    string          `json:"currency"`
	Recipient   string          `json:"recipient,omitempty"`
	Network     string          `json:"network,omitempty"`
	TxHash      string          `json:"transactionHash,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	PaymentURL  string          `json:"paymentUrl,omitempty"`
	Description string          `json:"purposeCode,omitempty"`
}

// TransferPage is one page of transfer history.
type TransferPage struct {
	Data    []Transfer `json:"data"`
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
	Total   int        `json:"count"`
	HasMore bool       `json:"hasMore"`
}

// BatchItem is one recipient of a bulk transfer.
type BatchItem struct {
	RequestID string
	Email     string
	Amount    decimal.Decimal
}

// BatchItemResult reports the outcome of one BatchItem.
type BatchItemResult struct {
	RequestID string    `json:"requestId"`
	Transfer  *Transfer `json:"response,omitempty"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Succeeded reports whether the item produced a transfer.
func (r BatchItemResult) Succeeded() bool {
	return r.Error == nil && r.Transfer != nil
}

type BatchResult struct {
	Responses []BatchItemResult `json:"responses"`
}

// PaymentLink is a hosted checkout link for receiving USDC.
type PaymentLink struct {
	ID        string          `json:"id"`
	URL       string          `json:"url"`
	Amount    decimal.Decimal `json:"amount"`
	Purpose   string          `json:"purpose"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// MinimumCheck is the result of ValidateMinimumAmount.
type MinimumCheck struct {
	Valid         bool            `json:"valid"`
	MinimumAmount decimal.Decimal `json:"minimumAmount"`
}

type feeQuote struct {
	Fee decimal.Decimal `json:"fee"`
}

type quoteRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Type    TransferKind    `json:"type"`
	Network string          `json:"network,omitempty"`
}

type apiError struct {
	Message any    `json:"message"`
	Error   string `json:"error"`
}
