package stockcount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool   *pgxpool.Pool
	runner *db.Runner
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, runner *db.Runner) *Repository {
	return &Repository{pool: pool, runner: runner}
}

type txRepo struct {
	*inventory.TxStore
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.runner.Run(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: inventory.NewTxStore(tx), tx: tx})
	})
}

// Get returns the session and its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Session, error) {
	return load(ctx, r.pool, id, "")
}

func load(ctx context.Context, q db.DBTX, id int64, lock string) (Session, error) {
	var (
		s             Session
		scope, status string
		locationID    int64
	)
	err := q.QueryRow(ctx, `SELECT id, code, scope, location_id, status, note, finalized_at, created_at, updated_at
FROM stock_count_sessions WHERE id = $1`+lock, id).Scan(&s.ID, &s.Code, &scope, &locationID, &status, &s.Note, &s.FinalizedAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, shared.NotFound("stock count session", id)
	}
	if err != nil {
		return Session{}, err
	}
	s.Scope, s.Status = Scope(scope), Status(status)
	if s.Location, err = s.Scope.Location(locationID); err != nil {
		return Session{}, fmt.Errorf("stock count session %d: %w", id, err)
	}
	lines, err := loadLines(ctx, q, id)
	if err != nil {
		return Session{}, err
	}
	s.Lines = lines
	return s, nil
}

func loadLines(ctx context.Context, q db.DBTX, id int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, session_id, product_id, system_qty, counted_qty
FROM stock_count_lines WHERE session_id = $1 ORDER BY product_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.SessionID, &l.ProductID, &l.SystemQty, &l.CountedQty); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, s Session) (Session, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_count_sessions (code, scope, location_id, status, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, s.Code, string(s.Scope), s.Location.ID(), string(s.Status), s.Note, s.CreatedAt, s.UpdatedAt).Scan(&s.ID)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

func (t *txRepo) LockForUpdate(ctx context.Context, id int64) (Session, error) {
	return load(ctx, t.tx, id, " FOR UPDATE")
}

func (t *txRepo) UpsertLines(ctx context.Context, id int64, lines []Line) ([]Line, error) {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO stock_count_lines (session_id, product_id, system_qty, counted_qty)
VALUES ($1,$2,$3,$4)
ON CONFLICT (session_id, product_id) DO UPDATE SET system_qty = EXCLUDED.system_qty, counted_qty = EXCLUDED.counted_qty`,
			id, l.ProductID, l.SystemQty, l.CountedQty)
	}
	batch.Queue(`UPDATE stock_count_sessions SET updated_at = NOW() WHERE id = $1`, id)
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, err
	}
	return loadLines(ctx, t.tx, id)
}

func (t *txRepo) Close(ctx context.Context, id int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE stock_count_sessions SET status = $2, finalized_at = $3, updated_at = $3 WHERE id = $1`, id, string(StatusClosed), at)
	return err
}
