package bot

import (
	"strings"

	telebot "gopkg.in/telebot.v3"
)

// Command constants for Telegram bot commands.
const (
	CommandStart           = "/start"
	CommandHelp            = "/help"
	CommandLogin           = "/login"
	CommandLogout          = "/logout"
	CommandMe              = "/me"
	CommandBalance         = "/balance"
	CommandWallets         = "/wallets"
	CommandHistory         = "/history"
	CommandDeposit         = "/deposit"
	CommandSend            = "/send"
	CommandWithdraw        = "/withdraw"
	CommandBulk            = "/bulk"
	CommandPaymentLink     = "/paylink"
	CommandSimulateDeposit = "/simulate_deposit"
	CommandCancel          = "/cancel"
)

// Callback prefix constants for inline button interactions.
const (
	CallbackMenu             = "menu"
	CallbackCancel           = "cancel"
	CallbackConfirm          = "confirm"
	CallbackSkip             = "skip"
	CallbackNetwork          = "net:"
	CallbackBankAccount      = "bank:"
	CallbackFlow             = "flow:"
	CallbackSetDefaultWallet = "wallet_default:"
	CallbackHistoryPage      = "history:"
)

// menuCommands is published through setMyCommands so clients can offer completion.
var menuCommands = []struct {
	command     string
	description string
}{
	{CommandStart, "Start the bot"},
	{CommandLogin, "Log in with your email"},
	{CommandBalance, "Show wallet balances"},
	{CommandSend, "Send USDC"},
	{CommandWithdraw, "Withdraw USDC"},
	{CommandBulk, "Send to many recipients"},
	{CommandPaymentLink, "Create a payment link"},
	{CommandDeposit, "Show deposit address"},
	{CommandWallets, "Manage wallets"},
	{CommandHistory, "Transfer history"},
	{CommandMe, "Your profile"},
	{CommandCancel, "Cancel the current operation"},
	{CommandLogout, "Log out"},
	{CommandHelp, "Help"},
}

func telegramCommands() []telebot.Command {
	commands := make([]telebot.Command, 0, len(menuCommands))
	for _, cmd := range menuCommands {
		commands = append(commands, telebot.Command{
			Text:        strings.TrimPrefix(cmd.command, "/"),
			Description: cmd.description,
		})
	}
	return commands
}
