package conversation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/payments-bot/internal/format"
)

var (
	ErrAmountInvalid     = errors.New("amount is not a number")
	ErrAmountNotPositive = errors.New("amount must be greater than zero")
	ErrAmountTooHigh     = errors.New("amount is unusually high")
	ErrEmailInvalid      = errors.New("invalid email address")
	ErrAddressInvalid    = errors.New("invalid wallet address")
)

var (
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	evmPattern     = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	addressPattern = regexp.MustCompile(`^[0-9a-zA-Z]+$`)
	otpPattern     = regexp.MustCompile(`^[0-9]{4,8}$`)
	// Commas are only accepted as thousands separators.
	groupedPattern = regexp.MustCompile(`^[0-9]{1,3}(,[0-9]{3})+(\.[0-9]+)?$`)
)

const (
	minAddressLength = 26
	maxAddressLength = 128
)

// ParseAmount parses a user-typed amount. It must be a plain positive number not above ceiling.
// A comma is accepted only as a thousands separator, so "25,5" is rejected rather than read as 255.
func ParseAmount(text string, ceiling decimal.Decimal) (decimal.Decimal, error) {
	raw := strings.TrimSpace(text)
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(raw, "USDC"), "usdc"))
	if strings.Contains(raw, ",") {
		if !groupedPattern.MatchString(raw) {
			return decimal.Zero, ErrAmountInvalid
		}
		raw = strings.ReplaceAll(raw, ",", "")
	}
	if raw == "" {
		return decimal.Zero, ErrAmountInvalid
	}

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrAmountInvalid
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrAmountNotPositive
	}
	if ceiling.IsPositive() && amount.GreaterThan(ceiling) {
		return decimal.Zero, ErrAmountTooHigh
	}
	return amount, nil
}

// ValidateEmail normalizes and checks an email address.
func ValidateEmail(text string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(text))
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return "", ErrEmailInvalid
	}
	return email, nil
}

// ValidateAddress checks the shape of an external wallet address.
func ValidateAddress(text string) (string, error) {
	addr := strings.TrimSpace(text)
	if len(addr) < minAddressLength || len(addr) > maxAddressLength {
		return "", ErrAddressInvalid
	}
	if strings.HasPrefix(addr, "0x") {
		if !evmPattern.MatchString(addr) {
			return "", ErrAddressInvalid
		}
		return addr, nil
	}
	if !addressPattern.MatchString(addr) {
		return "", ErrAddressInvalid
	}
	return addr, nil
}

// ValidateOTP checks that text looks like a one-time code.
func ValidateOTP(text string) (string, bool) {
	otp := strings.ReplaceAll(strings.TrimSpace(text), " ", "")
	return otp, otpPattern.MatchString(otp)
}

// InsufficientBalanceError reports a failed fee-inclusive balance check.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s", e.Required, e.Available)
}

// CheckBalance verifies that available covers amount plus fee.
func CheckBalance(available, amount, fee decimal.Decimal) error {
	required := amount.Add(fee)
	if required.GreaterThan(available) {
		return &InsufficientBalanceError{Required: required, Available: available}
	}
	return nil
}

// amountErrorText maps ParseAmount errors to a corrective prompt.
func amountErrorText(err error, ceiling decimal.Decimal) string {
	switch {
	case errors.Is(err, ErrAmountTooHigh):
		return fmt.Sprintf("⚠️ That amount is unusually high. The maximum per transfer is %s. Please enter a smaller amount:", format.USDC(ceiling))
	case errors.Is(err, ErrAmountNotPositive):
		return "❌ The amount must be greater than zero. Please enter a valid amount:"
	default:
		return "❌ Please enter a valid number, for example `25` or `10.5`:"
	}
}
