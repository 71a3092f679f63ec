package conversation

// Button is a transport-neutral inline button. Data is the callback payload.
type Button struct {
	Text string
	Data string
}

// Keyboard is a list of button rows.
type Keyboard [][]Button

// Reply is one outbound message.
type Reply struct {
	Text     string
	Markdown bool
	Keyboard Keyboard
}

func text(msg string) Reply {
	return Reply{Text: msg, Markdown: true}
}

func withKeyboard(msg string, kb Keyboard) Reply {
	return Reply{Text: msg, Markdown: true, Keyboard: kb}
}

func confirmKeyboard() Keyboard {
	return Keyboard{{
		{Text: "✅ Confirm", Data: ActionConfirm},
		{Text: "❌ Cancel", Data: ActionCancel},
	}}
}

func cancelKeyboard() Keyboard {
	return Keyboard{{{Text: "❌ Cancel", Data: ActionCancel}}}
}

// MenuKeyboard is attached to fallback replies.
func MenuKeyboard() Keyboard {
	return Keyboard{{{Text: "📋 Menu", Data: ActionMenu}}}
}
