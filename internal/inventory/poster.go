package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// MovementObserver receives committed movements, typically Prometheus counters.
type MovementObserver interface {
	ObserveMovement(movementType string, qty int64)
}

// PosterConfig groups optional settings.
type PosterConfig struct {
	AllowNegativeStock bool
}

// Poster writes ledger entries together with the balance mutation that justifies them.
// It is the only path through which workflows touch stock.
type Poster struct {
	allowNeg bool
	audit    shared.AuditRecorder
	observer MovementObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewPoster builds a Poster. audit, observer and logger may be nil.
func NewPoster(cfg PosterConfig, audit shared.AuditRecorder, observer MovementObserver, logger *slog.Logger) *Poster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{
		allowNeg: cfg.AllowNegativeStock,
		audit:    audit,
		observer: observer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AuditWriter is implemented by Writers that can write audit rows inside their transaction.
// When the Writer passed to Post implements it, negative balances are audited before commit.
type AuditWriter interface {
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Posting accumulates what an atomic unit wrote, for post-commit reporting.
type Posting struct {
	Entries   []Entry
	Negatives []Balance

	pendingAudits []shared.AuditLog
}

// Merge appends other into p.
func (p *Posting) Merge(other Posting) {
	p.Entries = append(p.Entries, other.Entries...)
	p.Negatives = append(p.Negatives, other.Negatives...)
	p.pendingAudits = append(p.pendingAudits, other.pendingAudits...)
}

// Post applies every entry's signed quantity to its balance row and appends the entries
// to the ledger through w, which must be bound to the caller's transaction.
func (p *Poster) Post(ctx context.Context, w Writer, entries []Entry) (Posting, error) {
	var posting Posting
	if len(entries) == 0 {
		return posting, nil
	}
	now := p.now()
	stamped := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return Posting{}, err
		}
		if e.PostedAt.IsZero() {
			e.PostedAt = now
		}
		newQty, err := w.ApplyDelta(ctx, e.ProductID, e.Location, e.Qty)
		if err != nil {
			return Posting{}, fmt.Errorf("inventory: apply delta: %w", err)
		}
		if e.Qty < 0 && newQty < 0 {
			if !p.allowNeg {
				return Posting{}, &InsufficientStockError{
					ProductID: e.ProductID,
					Location:  e.Location,
					Available: newQty - e.Qty,
					Requested: -e.Qty,
				}
			}
			neg := Balance{ProductID: e.ProductID, Location: e.Location, Qty: newQty, UpdatedAt: now}
			posting.Negatives = append(posting.Negatives, neg)
			log := negativeBalanceLog(ctx, neg)
			if aw, ok := w.(AuditWriter); ok {
				if err := aw.RecordAudit(ctx, log); err != nil {
					return Posting{}, fmt.Errorf("inventory: audit negative balance: %w", err)
				}
			} else {
				posting.pendingAudits = append(posting.pendingAudits, log)
			}
		}
		stamped = append(stamped, e)
	}
	if err := w.AppendBatch(ctx, stamped); err != nil {
		return Posting{}, fmt.Errorf("inventory: append ledger: %w", err)
	}
	posting.Entries = stamped
	return posting, nil
}

func negativeBalanceLog(ctx context.Context, neg Balance) shared.AuditLog {
	return shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   "inventory:negative_balance",
		Entity:   "stock_balances",
		EntityID: fmt.Sprintf("%d:%s", neg.ProductID, neg.Location),
		Meta: map[string]any{
			"product_id":    neg.ProductID,
			"location_kind": string(neg.Location.Kind()),
			"location_id":   neg.Location.ID(),
			"qty":           neg.Qty,
		},
		At: neg.UpdatedAt,
	}
}

// Reset overwrites the balance of e's product and location with qty, for a physical count
// that is authoritative over whatever the balance row held. The current balance is read
// through w (row-locked on Postgres) and the appended entry carries qty minus that balance,
// typed COUNT_ADJUST_IN or COUNT_ADJUST_OUT, so the ledger sum keeps matching the balance.
// When the balance already equals qty nothing is written and the Posting is empty.
func (p *Poster) Reset(ctx context.Context, w Writer, e Entry, qty int64) (Posting, error) {
	if qty < 0 {
		return Posting{}, shared.Validation("counted_qty", "must be at least 0")
	}
	current, err := w.Get(ctx, e.ProductID, e.Location)
	if err != nil {
		return Posting{}, fmt.Errorf("inventory: read balance: %w", err)
	}
	diff := qty - current
	if diff == 0 {
		return Posting{}, nil
	}
	e.Qty = diff
	e.Type = MovementCountAdjustIn
	if diff < 0 {
		e.Type = MovementCountAdjustOut
	}
	if err := e.Validate(); err != nil {
		return Posting{}, err
	}
	if e.PostedAt.IsZero() {
		e.PostedAt = p.now()
	}
	appended, err := w.Append(ctx, e)
	if err != nil {
		return Posting{}, fmt.Errorf("inventory: append ledger: %w", err)
	}
	if err := w.SetAbsolute(ctx, e.ProductID, e.Location, qty); err != nil {
		return Posting{}, fmt.Errorf("inventory: set balance: %w", err)
	}
	return Posting{Entries: []Entry{appended}}, nil
}

// Committed reports a posting once its transaction has committed: movements go to the
// observer and every negative balance is logged. Negative balances whose Writer could not
// audit in-transaction are audited here.
func (p *Poster) Committed(ctx context.Context, posting Posting) {
	if p.observer != nil {
		for _, e := range posting.Entries {
			p.observer.ObserveMovement(string(e.Type), e.Qty)
		}
	}
	for _, neg := range posting.Negatives {
		p.logger.Warn("negative stock balance",
			slog.Int64("product_id", neg.ProductID),
			slog.String("location", neg.Location.String()),
			slog.Int64("qty", neg.Qty))
	}
	if p.audit == nil {
		return
	}
	for _, log := range posting.pendingAudits {
		if err := p.audit.Record(ctx, log); err != nil {
			p.logger.Error("audit negative balance", slog.Any("error", err))
		}
	}
}
