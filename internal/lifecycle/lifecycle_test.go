package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsStagesInOrder(t *testing.T) {
	s := NewShutdown(nil)

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	s.Register(StageStorage, "redis", record("redis"))
	s.Register(StageIntake, "telegram", record("telegram"))
	s.Register(StageWorkers, "jobs", record("jobs"))
	s.Register(StageIntake, "nil hook", nil)

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, []string{"telegram", "jobs", "redis"}, order)
}

func TestShutdownJoinsErrors(t *testing.T) {
	s := NewShutdown(nil)
	boom := errors.New("boom")

	ran := false
	s.Register(StageIntake, "http", func(context.Context) error { return boom })
	s.Register(StageStorage, "db", func(context.Context) error { ran = true; return nil })

	err := s.Execute(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "http")
	assert.True(t, ran)
}

func TestProbes(t *testing.T) {
	p := NewProbes(nil)
	ctx := context.Background()

	assert.NoError(t, p.Liveness(ctx))
	assert.ErrorIs(t, p.Readiness(ctx), errNotStarted)

	p.MarkReady()
	assert.NoError(t, p.Readiness(ctx))

	p.MarkStopping()
	assert.ErrorIs(t, p.Readiness(ctx), errShuttingDown)
	assert.ErrorIs(t, p.Liveness(ctx), errShuttingDown)
}
