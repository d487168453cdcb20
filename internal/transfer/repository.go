package transfer

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

// Repository provides PostgreSQL backed persistence. The destination is stored as two
// nullable columns guarded by a CHECK constraint and surfaces as an inventory.Location.
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

// Get returns the transfer and its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Transfer, error) {
	return load(ctx, r.pool, id, "")
}

func load(ctx context.Context, q db.DBTX, id int64, lock string) (Transfer, error) {
	var (
		t                   Transfer
		status              string
		toBranch, toPartner *int64
	)
	err := q.QueryRow(ctx, `SELECT id, code, from_branch_id, to_branch_id, to_partner_id, status, note, sent_at, received_at, created_at, updated_at
FROM transfers WHERE id = $1`+lock, id).Scan(&t.ID, &t.Code, &t.FromBranchID, &toBranch, &toPartner, &status, &t.Note, &t.SentAt, &t.ReceivedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, shared.NotFound("transfer", id)
	}
	if err != nil {
		return Transfer{}, err
	}
	t.Status = Status(status)
	t.Destination, err = inventory.ExactlyOne(deref(toBranch), deref(toPartner))
	if err != nil {
		return Transfer{}, fmt.Errorf("transfer %d: %w", id, err)
	}
	rows, err := q.Query(ctx, `SELECT id, transfer_id, product_id, qty FROM transfer_lines WHERE transfer_id = $1 ORDER BY id`, id)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.TransferID, &l.ProductID, &l.Qty); err != nil {
			return Transfer{}, err
		}
		t.Lines = append(t.Lines, l)
	}
	return t, rows.Err()
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (t *txRepo) Insert(ctx context.Context, tr Transfer) (Transfer, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO transfers (code, from_branch_id, to_branch_id, to_partner_id, status, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		tr.Code, tr.FromBranchID, nullID(tr.Destination.BranchID()), nullID(tr.Destination.PartnerID()), string(tr.Status), tr.Note, tr.CreatedAt, tr.UpdatedAt).Scan(&tr.ID)
	if err != nil {
		return Transfer{}, err
	}
	tr.Lines, err = t.insertLines(ctx, tr.ID, tr.Lines)
	if err != nil {
		return Transfer{}, err
	}
	return tr, nil
}

func (t *txRepo) insertLines(ctx context.Context, id int64, lines []Line) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		l.TransferID = id
		if err := t.tx.QueryRow(ctx, `INSERT INTO transfer_lines (transfer_id, product_id, qty) VALUES ($1,$2,$3) RETURNING id`,
			id, l.ProductID, l.Qty).Scan(&l.ID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (t *txRepo) LockForUpdate(ctx context.Context, id int64) (Transfer, error) {
	return load(ctx, t.tx, id, " FOR UPDATE")
}

func (t *txRepo) ReplaceLines(ctx context.Context, id int64, lines []Line) ([]Line, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM transfer_lines WHERE transfer_id = $1`, id); err != nil {
		return nil, err
	}
	return t.insertLines(ctx, id, lines)
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	var query string
	switch status {
	case StatusSent:
		query = `UPDATE transfers SET status = $2, sent_at = $3, updated_at = $3 WHERE id = $1`
	case StatusReceived:
		query = `UPDATE transfers SET status = $2, received_at = $3, updated_at = $3 WHERE id = $1`
	default:
		query = `UPDATE transfers SET status = $2, updated_at = $3 WHERE id = $1`
	}
	_, err := t.tx.Exec(ctx, query, id, string(status), at)
	return err
}
