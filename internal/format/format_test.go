package format

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEscape(t *testing.T) {
	assert.Equal(t, `first\_last\*name \[x]`, Escape("first_last*name [x]"))
}

func TestAmount(t *testing.T) {
	assert.Equal(t, "50.10", Amount(decimal.RequireFromString("50.1")))
	assert.Equal(t, "0.10", Amount(decimal.RequireFromString("0.1")))
	assert.Equal(t, "10000.00 USDC", USDC(decimal.NewFromInt(10000)))
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "0x1234…cdef", ShortAddress("0x1234567890abcdef1234567890abcdef"))
	assert.Equal(t, "short", ShortAddress("short"))
	assert.Equal(t, "••••6789", MaskAccount("123456789"))
}

func TestDateAndNetwork(t *testing.T) {
	assert.Equal(t, "-", Date(time.Time{}))
	assert.Equal(t, "2024-03-01 10:05", Date(time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)))
	assert.Equal(t, "Polygon", Network("POLYGON"))
}
