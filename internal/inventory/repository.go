package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// TxStore implements Writer on top of a pgx transaction. Row locks taken by the upserts
// serialize concurrent writers of the same (product, location).
type TxStore struct {
	q db.DBTX
}

// NewTxStore binds the stores to q, normally a pgx.Tx.
func NewTxStore(q db.DBTX) *TxStore {
	return &TxStore{q: q}
}

func (s *TxStore) Get(ctx context.Context, productID int64, loc Location) (int64, error) {
	var qty int64
	err := s.q.QueryRow(ctx, `SELECT qty FROM stock_balances
WHERE product_id=$1 AND location_kind=$2 AND location_id=$3 FOR UPDATE`, productID, string(loc.Kind()), loc.ID()).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (s *TxStore) ApplyDelta(ctx context.Context, productID int64, loc Location, delta int64) (int64, error) {
	var qty int64
	err := s.q.QueryRow(ctx, `INSERT INTO stock_balances (product_id, location_kind, location_id, qty, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (product_id, location_kind, location_id) DO UPDATE SET qty=stock_balances.qty+EXCLUDED.qty, updated_at=NOW()
RETURNING qty`, productID, string(loc.Kind()), loc.ID(), delta).Scan(&qty)
	return qty, err
}

func (s *TxStore) SetAbsolute(ctx context.Context, productID int64, loc Location, qty int64) error {
	_, err := s.q.Exec(ctx, `INSERT INTO stock_balances (product_id, location_kind, location_id, qty, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (product_id, location_kind, location_id) DO UPDATE SET qty=EXCLUDED.qty, updated_at=NOW()`, productID, string(loc.Kind()), loc.ID(), qty)
	return err
}

// RecordAudit writes an audit row in the same transaction as the stock mutation.
func (s *TxStore) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.InsertAudit(ctx, s.q, log)
}

const insertMovementSQL = `INSERT INTO stock_movements (product_id, location_kind, location_id, signed_qty, movement_type, ref_kind, ref_id, unit_cost, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`

func (s *TxStore) Append(ctx context.Context, e Entry) (Entry, error) {
	err := s.q.QueryRow(ctx, insertMovementSQL, movementArgs(e)...).Scan(&e.ID)
	return e, err
}

func (s *TxStore) AppendBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertMovementSQL, movementArgs(e)...)
	}
	results := s.q.SendBatch(ctx, batch)
	for range entries {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func movementArgs(e Entry) []any {
	return []any{e.ProductID, string(e.Location.Kind()), e.Location.ID(), e.Qty, string(e.Type), string(e.RefKind), e.RefID, e.UnitCost, e.PostedAt}
}

// Repository serves read-side queries outside workflow transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Balance(ctx context.Context, productID int64, loc Location) (int64, error) {
	if r == nil {
		return 0, errors.New("inventory repository not initialised")
	}
	var qty int64
	err := r.pool.QueryRow(ctx, `SELECT qty FROM stock_balances WHERE product_id=$1 AND location_kind=$2 AND location_id=$3`,
		productID, string(loc.Kind()), loc.ID()).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (r *Repository) ListBalances(ctx context.Context, loc Location) ([]Balance, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT product_id, qty, updated_at FROM stock_balances
WHERE location_kind=$1 AND location_id=$2 ORDER BY product_id`, string(loc.Kind()), loc.ID())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := []Balance{}
	for rows.Next() {
		bal := Balance{Location: loc}
		if err := rows.Scan(&bal.ProductID, &bal.Qty, &bal.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, bal)
	}
	return balances, rows.Err()
}

func (r *Repository) StockCard(ctx context.Context, filter StockCardFilter) ([]Entry, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, signed_qty, movement_type, ref_kind, ref_id, unit_cost, posted_at
FROM stock_movements
WHERE product_id=$1 AND location_kind=$2 AND location_id=$3
  AND posted_at BETWEEN COALESCE($4, '-infinity'::timestamptz) AND COALESCE($5, 'infinity'::timestamptz)
ORDER BY posted_at ASC, id ASC
LIMIT $6`, filter.ProductID, string(filter.Location.Kind()), filter.Location.ID(), nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		e := Entry{ProductID: filter.ProductID, Location: filter.Location}
		var movementType, refKind string
		if err := rows.Scan(&e.ID, &e.Qty, &movementType, &refKind, &e.RefID, &e.UnitCost, &e.PostedAt); err != nil {
			return nil, err
		}
		e.Type = MovementType(movementType)
		e.RefKind = DocumentKind(refKind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Drift lists pairs of the given kind whose balance differs from the ledger sum.
func (r *Repository) Drift(ctx context.Context, kind LocationKind) ([]Drift, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT COALESCE(b.product_id, m.product_id), COALESCE(b.location_id, m.location_id),
       COALESCE(b.qty, 0), COALESCE(m.total, 0)
FROM (SELECT product_id, location_id, qty FROM stock_balances WHERE location_kind=$1) b
FULL OUTER JOIN (
  SELECT product_id, location_id, SUM(signed_qty)::bigint AS total
  FROM stock_movements WHERE location_kind=$1 GROUP BY product_id, location_id
) m ON m.product_id=b.product_id AND m.location_id=b.location_id
WHERE COALESCE(b.qty, 0) <> COALESCE(m.total, 0)`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	drifts := []Drift{}
	for rows.Next() {
		var d Drift
		var locID int64
		if err := rows.Scan(&d.ProductID, &locID, &d.BalanceQty, &d.LedgerQty); err != nil {
			return nil, err
		}
		loc, err := NewLocation(kind, locID)
		if err != nil {
			return nil, fmt.Errorf("inventory: drift row: %w", err)
		}
		d.Location = loc
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
