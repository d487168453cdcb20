package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerReconcile compares balance rows against ledger sums.
	TaskLedgerReconcile = "ledger:reconcile"
	// TaskIdempotencyCleanup prunes expired request keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ReconcilePayload selects the location kinds to check. Empty means all kinds.
type ReconcilePayload struct {
	Kinds []string `json:"kinds,omitempty"`
}

// NewReconcileTask constructs an Asynq task for ledger reconciliation.
func NewReconcileTask(kinds ...string) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcilePayload{Kinds: kinds})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerReconcile, body, asynq.Queue(QueueDefault)), nil
}

// CleanupPayload carries the retention window applied by a cleanup run.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewCleanupTask constructs an Asynq task pruning idempotency keys older than retention.
func NewCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
