package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// DBTX is implemented by pgx.Tx and *pgxpool.Pool.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Runner executes atomic units against the pool and retries serialization conflicts.
type Runner struct {
	pool       *pgxpool.Pool
	maxRetries int
	backoff    time.Duration
}

// NewRunner constructs a Runner. maxRetries <= 0 disables retrying.
func NewRunner(pool *pgxpool.Pool, maxRetries int) *Runner {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Runner{pool: pool, maxRetries: maxRetries, backoff: 20 * time.Millisecond}
}

// Run executes fn in a RepeatableRead transaction. A conflict that survives every retry is
// returned as shared.RetryableError; any other error is returned untouched.
func (r *Runner) Run(ctx context.Context, fn func(pgx.Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("platform/db: runner not initialised")
	}
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * r.backoff):
			}
		}
		err = r.runOnce(ctx, fn)
		if !IsRetryable(err) {
			return err
		}
	}
	return &shared.RetryableError{Op: "platform/db: tx", Err: err}
}

func (r *Runner) runOnce(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsRetryable reports whether err is a serialization failure or deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
	}
	return false
}
