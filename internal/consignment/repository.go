package consignment

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

// Get returns the delivery and its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Delivery, error) {
	return load(ctx, r.pool, id, "")
}

func load(ctx context.Context, q db.DBTX, id int64, lock string) (Delivery, error) {
	var (
		d                       Delivery
		mode, status            string
		fromBranch, fromPartner *int64
		toBranch, toPartner     *int64
	)
	err := q.QueryRow(ctx, `SELECT id, code, mode, from_branch_id, from_partner_id, to_branch_id, to_partner_id,
       status, total_amount, note, received_at, created_at, updated_at
FROM consignment_deliveries WHERE id = $1`+lock, id).Scan(&d.ID, &d.Code, &mode, &fromBranch, &fromPartner, &toBranch, &toPartner,
		&status, &d.TotalAmount, &d.Note, &d.ReceivedAt, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, shared.NotFound("consignment delivery", id)
	}
	if err != nil {
		return Delivery{}, err
	}
	d.Mode, d.Status = Mode(mode), Status(status)
	if d.Origin, err = inventory.ExactlyOne(deref(fromBranch), deref(fromPartner)); err != nil {
		return Delivery{}, fmt.Errorf("consignment delivery %d origin: %w", id, err)
	}
	if d.Destination, err = inventory.ExactlyOne(deref(toBranch), deref(toPartner)); err != nil {
		return Delivery{}, fmt.Errorf("consignment delivery %d destination: %w", id, err)
	}
	rows, err := q.Query(ctx, `SELECT id, delivery_id, product_id, qty, unit_price, amount, qty_received
FROM consignment_delivery_lines WHERE delivery_id = $1 ORDER BY id`, id)
	if err != nil {
		return Delivery{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DeliveryID, &l.ProductID, &l.Qty, &l.UnitPrice, &l.Amount, &l.QtyReceived); err != nil {
			return Delivery{}, err
		}
		d.Lines = append(d.Lines, l)
	}
	return d, rows.Err()
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

func (t *txRepo) Insert(ctx context.Context, d Delivery) (Delivery, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO consignment_deliveries
  (code, mode, from_branch_id, from_partner_id, to_branch_id, to_partner_id, status, total_amount, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		d.Code, string(d.Mode),
		nullID(d.Origin.BranchID()), nullID(d.Origin.PartnerID()),
		nullID(d.Destination.BranchID()), nullID(d.Destination.PartnerID()),
		string(d.Status), d.TotalAmount, d.Note, d.CreatedAt, d.UpdatedAt).Scan(&d.ID)
	if err != nil {
		return Delivery{}, err
	}
	for i := range d.Lines {
		line := &d.Lines[i]
		line.DeliveryID = d.ID
		if err := t.tx.QueryRow(ctx, `INSERT INTO consignment_delivery_lines (delivery_id, product_id, qty, unit_price, amount)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, d.ID, line.ProductID, line.Qty, line.UnitPrice, line.Amount).Scan(&line.ID); err != nil {
			return Delivery{}, err
		}
	}
	return d, nil
}

func (t *txRepo) LockForUpdate(ctx context.Context, id int64) (Delivery, error) {
	return load(ctx, t.tx, id, " FOR UPDATE")
}

func (t *txRepo) MarkReceived(ctx context.Context, id int64, received map[int64]int64, at time.Time) error {
	batch := &pgx.Batch{}
	for lineID, qty := range received {
		batch.Queue(`UPDATE consignment_delivery_lines SET qty_received = $3 WHERE id = $1 AND delivery_id = $2`, lineID, id, qty)
	}
	batch.Queue(`UPDATE consignment_deliveries SET status = $2, received_at = $3, updated_at = $3 WHERE id = $1`, id, string(StatusReceived), at)
	return t.tx.SendBatch(ctx, batch).Close()
}
