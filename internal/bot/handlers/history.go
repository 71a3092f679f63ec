package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/payments-bot/internal/bot/keyboard"
	"github.com/Proton-105/payments-bot/internal/format"
	"github.com/Proton-105/payments-bot/internal/payments"
)

// CallbackHistoryPage is the callback action of the history pagination buttons.
const CallbackHistoryPage = "history"

const defaultHistoryPageSize = 5

// History serves /history and its "history:<page>" pagination callbacks.
type History struct {
	*Account
	pageSize int
}

func NewHistory(account *Account, pageSize int) *History {
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}
	return &History{Account: account, pageSize: pageSize}
}

// Command shows the first page.
func (h *History) Command() Handler {
	return h.authenticated(func(ctx context.Context, c telebot.Context, chatID int64) error {
		return h.showPage(ctx, c, chatID, 1)
	})
}

// Page handles the pagination buttons.
func (h *History) Page() CallbackHandler {
	return CallbackHandler(h.authenticated(func(ctx context.Context, c telebot.Context, chatID int64) error {
		page := 1
		if cb := c.Callback(); cb != nil {
			if _, raw, err := keyboard.DecodeCallback(cb.Data); err == nil {
				if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
					page = n
				}
			}
		}
		return h.showPage(ctx, c, chatID, page)
	}))
}

func (h *History) showPage(ctx context.Context, c telebot.Context, chatID int64, page int) error {
	result, err := h.api.GetTransferHistory(ctx, chatID, page, h.pageSize)
	if err != nil {
		return h.failure(ctx, c, err)
	}
	if result == nil || len(result.Data) == 0 {
		if page > 1 {
			return c.Send("📜 No more transfers.")
		}
		return c.Send("📜 You have no transfers yet.")
	}

	totalPages := keyboard.TotalPages(result.Total, h.pageSize)
	if result.Total == 0 && result.HasMore {
		totalPages = page + 1
	}

	text := historyText(result.Data, page, totalPages)

	buttons := keyboard.PaginationButtons(Translator(h.i18n, c), CallbackHistoryPage, page, totalPages)
	if len(buttons) <= 1 {
		return sendMarkdown(c, text, nil)
	}

	markup, err := keyboard.NewInlineKeyboard().AddRow(buttons...).Build()
	if err != nil {
		return sendMarkdown(c, text, nil)
	}
	return sendMarkdown(c, text, markup)
}

func historyText(transfers []payments.Transfer, page, totalPages int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📜 *Transfer history* (page %d/%d)\n", page, totalPages)

	for _, t := range transfers {
		fmt.Fprintf(&b, "\n%s *%s* %s\n", transferIcon(t.Type), format.Escape(transferTypeLabel(t.Type)), format.USDC(t.Amount))
		if t.Recipient != "" {
			fmt.Fprintf(&b, "To: %s\n", format.Escape(format.ShortAddress(t.Recipient)))
		}
		if t.Network != "" {
			fmt.Fprintf(&b, "Network: %s\n", format.Network(t.Network))
		}
		fmt.Fprintf(&b, "Status: %s · %s\n", format.Escape(t.Status), format.Date(t.CreatedAt))
	}

	return b.String()
}

func transferIcon(kind string) string {
	switch strings.ToLower(kind) {
	case "deposit":
		return "📥"
	case "withdraw", "off_ramp":
		return "🏦"
	default:
		return "📤"
	}
}

func transferTypeLabel(kind string) string {
	if kind == "" {
		return "Transfer"
	}
	label := strings.ReplaceAll(strings.ToLower(kind), "_", " ")
	return strings.ToUpper(label[:1]) + label[1:]
}
