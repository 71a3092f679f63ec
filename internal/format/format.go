// Package format renders values for Telegram Markdown messages.
package format

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// Escape escapes user-provided text for legacy Markdown parse mode.
func Escape(s string) string {
	return markdownEscaper.Replace(s)
}

// Amount renders d with two decimals.
func Amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// USDC renders d as "12.50 USDC".
func USDC(d decimal.Decimal) string {
	return Amount(d) + " USDC"
}

// ShortAddress shortens long addresses and ids to head…tail.
func ShortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// MaskAccount keeps the last four characters of an account number.
func MaskAccount(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("•", 4) + number[len(number)-4:]
}

// Network capitalizes a network name for display.
func Network(network string) string {
	if network == "" {
		return ""
	}
	return strings.ToUpper(network[:1]) + strings.ToLower(network[1:])
}

// Date renders t in UTC as "2006-01-02 15:04".
func Date(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// Code wraps s in inline code.
func Code(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "'") + "`"
}
