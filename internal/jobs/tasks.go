// Package jobs runs background work on asynq: deposit fan-out and the periodic session sweep.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/payments-bot/internal/notify"
)

const (
	TaskTypeDepositNotify = "notify:deposit"
	TaskTypeSessionSweep  = "session:sweep"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the priority map the worker consumes.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

type DepositNotifyPayload struct {
	Deposit notify.Deposit `json:"deposit"`
}

type SessionSweepPayload struct {
	// IdleStates also resets abandoned conversation states when true.
	IdleStates bool `json:"idle_states"`
}

// NewDepositNotifyTask wraps d for the critical queue. Fan-out is retried a few times and the
// task id is derived from the transaction hash so a redelivered webhook is not fanned out twice.
func NewDepositNotifyTask(d notify.Deposit) (*asynq.Task, error) {
	payload, err := json.Marshal(DepositNotifyPayload{Deposit: d})
	if err != nil {
		return nil, err
	}

	opts := []asynq.Option{asynq.Queue(QueueCritical), asynq.MaxRetry(3), asynq.Timeout(30 * time.Second)}
	if d.TxHash != "" {
		opts = append(opts, asynq.TaskID(fmt.Sprintf("deposit:%s:%s", d.OrganizationID, d.TxHash)))
	}
	return asynq.NewTask(TaskTypeDepositNotify, payload, opts...), nil
}

func NewSessionSweepTask(idleStates bool) (*asynq.Task, error) {
	payload, err := json.Marshal(SessionSweepPayload{IdleStates: idleStates})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeSessionSweep, payload, asynq.Queue(QueueLow), asynq.MaxRetry(1)), nil
}
