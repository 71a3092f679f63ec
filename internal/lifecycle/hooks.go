package lifecycle

import "context"

// Stage orders shutdown: hooks of a lower stage finish before the next stage starts.
type Stage int

const (
	// StageIntake stops accepting new work: Telegram polling, the HTTP server, the deposit feed.
	StageIntake Stage = iota
	// StageWorkers drains background processing.
	StageWorkers
	// StageStorage closes connections the earlier stages were still using.
	StageStorage
)

// Hook describes a named shutdown hook.
type Hook struct {
	Name  string
	Stage Stage
	Fn    func(ctx context.Context) error
}
