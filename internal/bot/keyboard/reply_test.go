package keyboard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/payments-bot/internal/bot/keyboard"
)

func TestMainMenu(t *testing.T) {
	translator := &mockTranslator{
		translations: map[string]string{
			"main_menu.balance":  "Balance",
			"main_menu.wallets":  "Wallets",
			"main_menu.send":     "Send",
			"main_menu.withdraw": "Withdraw",
			"main_menu.deposit":  "Deposit",
			"main_menu.history":  "History",
			"main_menu.me":       "Profile",
		},
	}

	markup := keyboard.MainMenu(translator)
	assert.True(t, markup.ResizeKeyboard)

	expectedRows := [][]string{
		{"Balance", "Wallets"},
		{"Send", "Withdraw"},
		{"Deposit", "History"},
		{"Profile", "❓ Help"},
	}

	require.Len(t, markup.ReplyKeyboard, len(expectedRows))
	for i, row := range expectedRows {
		require.Len(t, markup.ReplyKeyboard[i], len(row))
		for j, text := range row {
			assert.Equal(t, text, markup.ReplyKeyboard[i][j].Text)
		}
	}
}

func TestMainMenuAliases(t *testing.T) {
	aliases := keyboard.MainMenuAliases(&mockTranslator{
		translations: map[string]string{"main_menu.balance": "Баланс"},
	})

	assert.Equal(t, "/balance", aliases["Баланс"])
	assert.Equal(t, "/me", aliases["👤 Profile"])
	assert.Equal(t, "/help", aliases["❓ Help"])
	assert.Len(t, aliases, 8)
}
