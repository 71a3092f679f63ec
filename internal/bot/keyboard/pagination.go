package keyboard

import (
	"strconv"
	"strings"

	"github.com/Proton-105/payments-bot/internal/i18n"
)

// PaginationButtons returns up to three inline buttons (prev, current page, next)
// allowing the caller to paginate lists using a shared action prefix.
func PaginationButtons(t i18n.Translator, action string, page, totalPages int) []InlineButton {
	if totalPages < 1 {
		totalPages = 1
	}
	page = min(max(page, 1), totalPages)

	buttons := make([]InlineButton, 0, 3)

	if page > 1 {
		buttons = append(buttons, InlineButton{
			Text:   translated(t, "pagination.prev", "◀️ Prev"),
			Unique: action,
			Data:   strconv.Itoa(page - 1),
		})
	}

	buttons = append(buttons, InlineButton{
		Text:   paginationLabel(t, page, totalPages),
		Unique: action,
		Data:   strconv.Itoa(page),
	})

	if page < totalPages {
		buttons = append(buttons, InlineButton{
			Text:   translated(t, "pagination.next", "Next ▶️"),
			Unique: action,
			Data:   strconv.Itoa(page + 1),
		})
	}

	return buttons
}

// TotalPages returns how many pages of size limit hold total items, at least one.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

func translated(t i18n.Translator, key, fallback string) string {
	return i18n.Text(t, key, fallback)
}

func paginationLabel(t i18n.Translator, page, total int) string {
	label := translated(t, "pagination.page", "Page {{.Page}}/{{.Total}}")
	return strings.NewReplacer(
		"{{.Page}}", strconv.Itoa(page),
		"{{.Total}}", strconv.Itoa(total),
	).Replace(label)
}
