package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/i18n"
)

// mainMenuLayout lists the reply keyboard rows as translation keys. Each key's last segment is
// the command the button stands for.
var mainMenuLayout = [][]string{
	{"main_menu.balance", "main_menu.wallets"},
	{"main_menu.send", "main_menu.withdraw"},
	{"main_menu.deposit", "main_menu.history"},
	{"main_menu.me", "main_menu.help"},
}

var mainMenuDefaults = map[string]string{
	"main_menu.balance":  "💰 Balance",
	"main_menu.wallets":  "👛 Wallets",
	"main_menu.send":     "📤 Send",
	"main_menu.withdraw": "🏦 Withdraw",
	"main_menu.deposit":  "📥 Deposit",
	"main_menu.history":  "📜 History",
	"main_menu.me":       "👤 Profile",
	"main_menu.help":     "❓ Help",
}

// MainMenu builds a localized reply keyboard for the bot main menu.
func MainMenu(t i18n.Translator) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: false,
	}

	rows := make([]telebot.Row, 0, len(mainMenuLayout))
	for _, keys := range mainMenuLayout {
		buttons := make([]telebot.Btn, 0, len(keys))
		for _, key := range keys {
			buttons = append(buttons, markup.Text(translated(t, key, mainMenuDefaults[key])))
		}
		rows = append(rows, markup.Row(buttons...))
	}

	markup.Reply(rows...)
	return markup
}

// MainMenuAliases maps every reply keyboard label to its slash command, e.g.
// "💰 Balance" → "/balance".
func MainMenuAliases(t i18n.Translator) map[string]string {
	aliases := make(map[string]string, len(mainMenuDefaults))
	for _, keys := range mainMenuLayout {
		for _, key := range keys {
			aliases[translated(t, key, mainMenuDefaults[key])] = "/" + key[len("main_menu."):]
		}
	}
	return aliases
}
