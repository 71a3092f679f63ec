package payments

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FeeRule describes one rail's local fallback pricing.
type FeeRule struct {
	Percent decimal.Decimal
	Min     decimal.Decimal
	Minimum decimal.Decimal
}

// FallbackTable is used when the quote endpoints cannot be reached.
type FallbackTable struct {
	Rules      map[TransferKind]FeeRule
	NetworkFee map[string]decimal.Decimal
}

// DefaultFallbackTable mirrors the API's published pricing.
func DefaultFallbackTable() FallbackTable {
	return FallbackTable{
		Rules: map[TransferKind]FeeRule{
			KindEmail: {
				Percent: decimal.RequireFromString("0.002"),
				Minimum: decimal.NewFromInt(1),
			},
			KindWallet: {
				Percent: decimal.RequireFromString("0.005"),
				Minimum: decimal.NewFromInt(10),
			},
			KindBank: {
				Percent: decimal.RequireFromString("0.015"),
				Min:     decimal.NewFromInt(2),
				Minimum: decimal.NewFromInt(50),
			},
		},
		NetworkFee: map[string]decimal.Decimal{
			"polygon":  decimal.RequireFromString("0.1"),
			"arbitrum": decimal.RequireFromString("0.1"),
			"base":     decimal.RequireFromString("0.05"),
			"ethereum": decimal.NewFromInt(2),
			"solana":   decimal.RequireFromString("0.01"),
		},
	}
}

// Fee computes the fallback fee for amount, rounded to cents.
func (t FallbackTable) Fee(amount decimal.Decimal, kind TransferKind, network string) decimal.Decimal {
	rule, ok := t.Rules[kind]
	if !ok {
		return decimal.Zero
	}

	fee := amount.Mul(rule.Percent)
	if fee.LessThan(rule.Min) {
		fee = rule.Min
	}
	if kind == KindWallet {
		fee = fee.Add(t.NetworkFee[strings.ToLower(network)])
	}
	return fee.Round(2)
}

// Minimum returns the fallback minimum amount for kind.
func (t FallbackTable) Minimum(kind TransferKind) decimal.Decimal {
	return t.Rules[kind].Minimum
}

// Networks lists the networks supported for wallet transfers, in display order.
func Networks() []string {
	return []string{"polygon", "arbitrum", "base", "ethereum", "solana"}
}

// IsSupportedNetwork reports whether network (case-insensitive) is a known network.
func IsSupportedNetwork(network string) bool {
	network = strings.ToLower(strings.TrimSpace(network))
	for _, known := range Networks() {
		if known == network {
			return true
		}
	}
	return false
}
