package conversation

import "strings"

// Callback actions understood by the step handlers. Callback payloads have the form
// "<action>" or "<action>:<value>".
const (
	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
	ActionNetwork = "net"
	ActionBank    = "bank"
	ActionSkip    = "skip"
	ActionFlow    = "flow"
	ActionMenu    = "menu"
)

// Input is one inbound event normalized for the step handlers: either free text or a
// button action with an optional value.
type Input struct {
	Text   string
	Action string
	Value  string
}

// TextInput wraps a free-text message.
func TextInput(text string) Input {
	return Input{Text: strings.TrimSpace(text)}
}

// ActionInput wraps a button press.
func ActionInput(action, value string) Input {
	return Input{Action: action, Value: value}
}

// ParseCallback splits "action:value" callback data.
func ParseCallback(data string) Input {
	data = strings.TrimSpace(data)
	action, value, _ := strings.Cut(data, ":")
	return ActionInput(action, value)
}

// CallbackData builds the payload ParseCallback understands.
func CallbackData(action, value string) string {
	if value == "" {
		return action
	}
	return action + ":" + value
}

// IsAction reports whether the input is the given button action, or the same word typed as text.
func (in Input) IsAction(action string) bool {
	if in.Action != "" {
		return in.Action == action
	}
	return strings.EqualFold(in.Text, action)
}

// Choice returns the button value for action, falling back to the typed text.
func (in Input) Choice(action string) string {
	if in.Action == action {
		return in.Value
	}
	if in.Action == "" {
		return in.Text
	}
	return ""
}
