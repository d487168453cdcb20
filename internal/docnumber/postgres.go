package docnumber

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAllocator keeps one counter row per (prefix, period) in document_sequences. The
// upsert increments under the row lock so concurrent callers never observe the same value.
type PostgresAllocator struct {
	q   queryRower
	now func() time.Time
}

// NewPostgresAllocator builds the allocator over a pool or transaction.
func NewPostgresAllocator(q queryRower) *PostgresAllocator {
	return &PostgresAllocator{q: q, now: time.Now}
}

// Next increments and returns the month's counter for prefix.
func (a *PostgresAllocator) Next(ctx context.Context, prefix string) (string, error) {
	if err := validPrefix(prefix); err != nil {
		return "", err
	}
	now := a.now()
	var seq int64
	err := a.q.QueryRow(ctx, `INSERT INTO document_sequences (prefix, period, last_seq, updated_at)
VALUES ($1, $2, 1, NOW())
ON CONFLICT (prefix, period) DO UPDATE SET last_seq = document_sequences.last_seq + 1, updated_at = NOW()
RETURNING last_seq`, prefix, Period(now)).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("docnumber: next %s: %w", prefix, err)
	}
	return Format(prefix, now, seq), nil
}
