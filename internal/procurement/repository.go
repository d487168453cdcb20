package procurement

import (
	"context"
	"errors"

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

// NewRepository constructs a repository. runner retries serialization failures.
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

// Get returns purchase and lines.
func (r *Repository) Get(ctx context.Context, id int64) (Purchase, error) {
	return loadPurchase(ctx, r.pool, id, "")
}

const selectPurchaseSQL = `SELECT id, code, supplier_id, branch_id, status, total_cost, note, created_at, updated_at
FROM purchases WHERE id = $1`

const selectLinesSQL = `SELECT id, purchase_id, product_id, qty_ordered, qty_received, unit_cost
FROM purchase_lines WHERE purchase_id = $1 ORDER BY id`

func loadPurchase(ctx context.Context, q db.DBTX, id int64, lock string) (Purchase, error) {
	var p Purchase
	var status string
	err := q.QueryRow(ctx, selectPurchaseSQL+lock, id).Scan(&p.ID, &p.Code, &p.SupplierID, &p.BranchID, &status, &p.TotalCost, &p.Note, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, shared.NotFound("purchase", id)
	}
	if err != nil {
		return Purchase{}, err
	}
	p.Status = Status(status)
	rows, err := q.Query(ctx, selectLinesSQL+lock, id)
	if err != nil {
		return Purchase{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.PurchaseID, &l.ProductID, &l.Ordered, &l.Received, &l.UnitCost); err != nil {
			return Purchase{}, err
		}
		p.Lines = append(p.Lines, l)
	}
	return p, rows.Err()
}

func (t *txRepo) Insert(ctx context.Context, p Purchase) (Purchase, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO purchases (code, supplier_id, branch_id, status, total_cost, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		p.Code, p.SupplierID, p.BranchID, string(p.Status), p.TotalCost, p.Note, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return Purchase{}, err
	}
	for i := range p.Lines {
		line := &p.Lines[i]
		line.PurchaseID = p.ID
		err := t.tx.QueryRow(ctx, `INSERT INTO purchase_lines (purchase_id, product_id, qty_ordered, qty_received, unit_cost)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, p.ID, line.ProductID, line.Ordered, line.Received, line.UnitCost).Scan(&line.ID)
		if err != nil {
			return Purchase{}, err
		}
	}
	return p, nil
}

func (t *txRepo) LockForUpdate(ctx context.Context, id int64) (Purchase, error) {
	return loadPurchase(ctx, t.tx, id, " FOR UPDATE")
}

func (t *txRepo) AddReceived(ctx context.Context, lineID, qty int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_lines SET qty_received = qty_received + $2
WHERE id = $1 AND qty_received + $2 <= qty_ordered`, lineID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return shared.Validation("line_id", "receive exceeds ordered quantity")
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchases SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	return err
}

func (t *txRepo) ClaimRequest(ctx context.Context, key string) (bool, error) {
	return shared.ClaimKey(ctx, t.tx, key, receiveModule)
}
