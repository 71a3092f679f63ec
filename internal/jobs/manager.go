package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/payments-bot/internal/notify"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	// EnqueueDeposit schedules the fan-out of d. It satisfies notify.Enqueuer.
	EnqueueDeposit(ctx context.Context, d notify.Deposit) error
	Close() error
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client enqueuer
	log    *slog.Logger
}

var _ notify.Enqueuer = (*manager)(nil)

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	return newManager(asynq.NewClient(redisOpt), log)
}

func newManager(client enqueuer, log *slog.Logger) *manager {
	if log == nil {
		log = slog.Default()
	}
	return &manager{
		client: client,
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.client.EnqueueContext(ctx, task, opts...)
}

func (m *manager) EnqueueDeposit(ctx context.Context, d notify.Deposit) error {
	task, err := NewDepositNotifyTask(d)
	if err != nil {
		return err
	}

	info, err := m.Enqueue(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		m.log.InfoContext(ctx, "jobs: duplicate deposit ignored", slog.String("org_id", d.OrganizationID), slog.String("tx_hash", d.TxHash))
		return nil
	}
	if err != nil {
		return err
	}

	m.log.DebugContext(ctx, "jobs: deposit queued", slog.String("task_id", info.ID), slog.String("queue", info.Queue))
	return nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
