package stockcount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/docnumber"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/masterdata"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const auditEntity = "stock_count"

func errUnknownScope(s Scope) error {
	return shared.Validation("scope", fmt.Sprintf("unknown scope %q", s))
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Session, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	inventory.Writer
	Insert(ctx context.Context, s Session) (Session, error)
	LockForUpdate(ctx context.Context, id int64) (Session, error)
	UpsertLines(ctx context.Context, id int64, lines []Line) ([]Line, error)
	Close(ctx context.Context, id int64, at time.Time) error
}

// BalanceReader reads the current on-hand quantity.
type BalanceReader interface {
	Balance(ctx context.Context, productID int64, loc inventory.Location) (int64, error)
}

// Service orchestrates stock count sessions.
type Service struct {
	repo     RepositoryPort
	catalog  masterdata.Catalog
	balances BalanceReader
	numbers  docnumber.Allocator
	poster   *inventory.Poster
	audit    shared.AuditRecorder
	now      func() time.Time
}

// NewService constructs stock count service.
func NewService(repo RepositoryPort, catalog masterdata.Catalog, balances BalanceReader, numbers docnumber.Allocator, poster *inventory.Poster, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, catalog: catalog, balances: balances, numbers: numbers, poster: poster, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// Create opens a session bound to one location.
func (s *Service) Create(ctx context.Context, input CreateInput) (Session, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Session{}, err
	}
	loc, err := s.location(ctx, input.Scope, input.LocationID)
	if err != nil {
		return Session{}, err
	}
	code, err := s.numbers.Next(ctx, docnumber.PrefixStockCount)
	if err != nil {
		return Session{}, err
	}
	now := s.now()
	session := Session{Code: code, Scope: input.Scope, Location: loc, Status: StatusOpen, Note: input.Note, CreatedAt: now, UpdatedAt: now}
	var created Session
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, session)
		return err
	})
	if err != nil {
		return Session{}, err
	}
	s.recordAudit(ctx, shared.TransitionLog(ctx, auditEntity, created.ID, "", string(StatusOpen), map[string]any{"code": created.Code, "location": loc.String()}))
	return created, nil
}

func (s *Service) location(ctx context.Context, scope Scope, id int64) (inventory.Location, error) {
	loc, err := scope.Location(id)
	if err != nil {
		return inventory.Location{}, err
	}
	var ok bool
	if loc.IsBranch() {
		ok, err = s.catalog.BranchExists(ctx, id)
	} else {
		ok, err = s.catalog.PartnerExists(ctx, id)
	}
	if err != nil {
		return inventory.Location{}, err
	}
	if !ok {
		return inventory.Location{}, shared.Validation("location_id", fmt.Sprintf("unknown %s", loc))
	}
	return loc, nil
}

// UpsertLines writes lines by product while the session is OPEN.
func (s *Service) UpsertLines(ctx context.Context, id int64, input UpsertLinesInput) (Session, error) {
	if id <= 0 {
		return Session{}, shared.Validation("id", "must be greater than 0")
	}
	if err := shared.ValidateStruct(input); err != nil {
		return Session{}, err
	}
	lines := make([]Line, 0, len(input.Lines))
	seen := make(map[int64]bool, len(input.Lines))
	for i, in := range input.Lines {
		if seen[in.ProductID] {
			return Session{}, shared.Validation(fmt.Sprintf("lines[%d].product_id", i), "duplicate product")
		}
		seen[in.ProductID] = true
		if _, err := s.catalog.Product(ctx, in.ProductID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return Session{}, shared.Validation(fmt.Sprintf("lines[%d].product_id", i), "unknown product")
			}
			return Session{}, err
		}
		lines = append(lines, Line{ProductID: in.ProductID, SystemQty: in.SystemQty, CountedQty: in.CountedQty})
	}
	var result Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if session.Status != StatusOpen {
			return &shared.InvalidTransitionError{Kind: auditEntity, ID: id, From: string(session.Status), Action: "edit lines"}
		}
		session.Lines, err = tx.UpsertLines(ctx, id, lines)
		if err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return result, nil
}

// SystemQty returns the current balance for the scoped location.
func (s *Service) SystemQty(ctx context.Context, scope Scope, locationID, productID int64) (int64, error) {
	loc, err := scope.Location(locationID)
	if err != nil {
		return 0, err
	}
	if productID <= 0 {
		return 0, shared.Validation("product_id", "must be greater than 0")
	}
	return s.balances.Balance(ctx, productID, loc)
}

// Finalize adjusts every line whose counted quantity differs from the snapshot: the balance
// is overwritten with the counted quantity and the ledger entry carries the difference from
// the balance it replaced. The session is then closed. Finalizing a CLOSED session returns
// it unchanged with no adjustments.
func (s *Service) Finalize(ctx context.Context, id int64) (FinalizeResult, error) {
	if id <= 0 {
		return FinalizeResult{}, shared.Validation("id", "must be greater than 0")
	}
	var (
		result  FinalizeResult
		posting inventory.Posting
		closed  bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posting, closed = inventory.Posting{}, false
		session, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		result = FinalizeResult{Session: session, Adjustments: []Adjustment{}}
		if session.Status == StatusClosed {
			return nil
		}
		for _, line := range session.Lines {
			delta := line.Delta()
			if delta == 0 {
				continue
			}
			product, err := s.catalog.Product(ctx, line.ProductID)
			if err != nil {
				return err
			}
			p, err := s.poster.Reset(ctx, tx, inventory.Entry{
				ProductID: line.ProductID,
				Location:  session.Location,
				RefKind:   inventory.DocumentStockCount,
				RefID:     session.ID,
				UnitCost:  product.UnitCost,
			}, line.CountedQty)
			if err != nil {
				return err
			}
			posting.Merge(p)
			adj := Adjustment{
				ProductID:    line.ProductID,
				Location:     session.Location,
				SystemQty:    line.SystemQty,
				CountedQty:   line.CountedQty,
				Delta:        delta,
				MovementType: inventory.MovementCountAdjustIn,
				UnitCost:     product.UnitCost,
				Value:        product.UnitCost.Mul(decimal.NewFromInt(delta)),
			}
			if delta < 0 {
				adj.MovementType = inventory.MovementCountAdjustOut
			}
			if len(p.Entries) > 0 {
				entry := p.Entries[0]
				adj.PostedQty, adj.MovementType, adj.EntryID = entry.Qty, entry.Type, entry.ID
			}
			result.Adjustments = append(result.Adjustments, adj)
		}
		now := s.now()
		if err := tx.Close(ctx, id, now); err != nil {
			return err
		}
		session.Status, session.FinalizedAt, session.UpdatedAt = StatusClosed, &now, now
		result.Session = session
		closed = true
		return nil
	})
	if err != nil {
		return FinalizeResult{}, err
	}
	if closed {
		s.poster.Committed(ctx, posting)
		s.recordAudit(ctx, shared.TransitionLog(ctx, auditEntity, id, string(StatusOpen), string(StatusClosed), map[string]any{
			"code": result.Session.Code, "adjustments": len(result.Adjustments),
		}))
	}
	return result, nil
}

// Get returns the session with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Session, error) {
	if id <= 0 {
		return Session{}, shared.Validation("id", "must be greater than 0")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, log)
}
