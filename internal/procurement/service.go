package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/docnumber"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/masterdata"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	auditEntity   = "purchase"
	receiveModule = "procurement.receive"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Purchase, error)
}

// TxRepository exposes transactional operations. Stock writes go through the embedded
// inventory.Writer bound to the same transaction.
type TxRepository interface {
	inventory.Writer
	Insert(ctx context.Context, p Purchase) (Purchase, error)
	// LockForUpdate loads the purchase and its lines, locking them until commit.
	LockForUpdate(ctx context.Context, id int64) (Purchase, error)
	AddReceived(ctx context.Context, lineID, qty int64) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	// ClaimRequest records a request key, reporting false when it was already used.
	ClaimRequest(ctx context.Context, key string) (bool, error)
}

// Service orchestrates purchase receiving.
type Service struct {
	repo    RepositoryPort
	catalog masterdata.Catalog
	numbers docnumber.Allocator
	poster  *inventory.Poster
	audit   shared.AuditRecorder
	now     func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, catalog masterdata.Catalog, numbers docnumber.Allocator, poster *inventory.Poster, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, catalog: catalog, numbers: numbers, poster: poster, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// Create validates references, prices every line and stores the purchase at PENDING.
func (s *Service) Create(ctx context.Context, input CreateInput) (Purchase, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Purchase{}, err
	}
	if err := s.requireRefs(ctx, input); err != nil {
		return Purchase{}, err
	}
	lines := make([]Line, 0, len(input.Items))
	seen := make(map[int64]bool, len(input.Items))
	total := decimal.Zero
	for i, item := range input.Items {
		if seen[item.ProductID] {
			return Purchase{}, shared.Validation(fmt.Sprintf("items[%d].product_id", i), "duplicate product")
		}
		seen[item.ProductID] = true
		if item.UnitCost.IsNegative() {
			return Purchase{}, shared.Validation(fmt.Sprintf("items[%d].unit_cost", i), "must be at least 0")
		}
		product, err := s.catalog.Product(ctx, item.ProductID)
		if err != nil {
			return Purchase{}, err
		}
		cost := item.UnitCost
		if cost.IsZero() {
			cost = product.UnitCost
		}
		lines = append(lines, Line{ProductID: item.ProductID, Ordered: item.Qty, UnitCost: cost})
		total = total.Add(cost.Mul(decimal.NewFromInt(item.Qty)))
	}
	code, err := s.numbers.Next(ctx, docnumber.PrefixPurchase)
	if err != nil {
		return Purchase{}, err
	}
	now := s.now()
	p := Purchase{
		Code:       code,
		SupplierID: input.SupplierID,
		BranchID:   input.BranchID,
		Status:     StatusPending,
		TotalCost:  total,
		Note:       input.Note,
		CreatedAt:  now,
		UpdatedAt:  now,
		Lines:      lines,
	}
	var created Purchase
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, p)
		return err
	})
	if err != nil {
		return Purchase{}, err
	}
	s.recordAudit(ctx, shared.TransitionLog(ctx, auditEntity, created.ID, "", string(StatusPending), map[string]any{"code": created.Code, "total_cost": created.TotalCost.String()}))
	return created, nil
}

func (s *Service) requireRefs(ctx context.Context, input CreateInput) error {
	ok, err := s.catalog.SupplierExists(ctx, input.SupplierID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Validation("supplier_id", "unknown supplier")
	}
	ok, err = s.catalog.BranchExists(ctx, input.BranchID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Validation("branch_id", "unknown branch")
	}
	return nil
}

// Receive books received increments against purchase lines. Every increment is checked
// against the open quantity before anything is written, so an over-receipt leaves the
// document untouched. A RECEIVED purchase, or a RequestKey seen before, returns the current
// document without posting.
func (s *Service) Receive(ctx context.Context, id int64, input ReceiveInput) (Purchase, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Purchase{}, err
	}
	seen := make(map[int64]bool, len(input.Lines))
	for i, l := range input.Lines {
		if seen[l.LineID] {
			return Purchase{}, shared.Validation(fmt.Sprintf("lines[%d].line_id", i), "duplicate line")
		}
		seen[l.LineID] = true
	}

	var (
		result  Purchase
		from    Status
		posting inventory.Posting
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		result, from = p, p.Status
		if input.RequestKey != "" {
			claimed, err := tx.ClaimRequest(ctx, shared.RequestKey(receiveModule, id, input.RequestKey))
			if err != nil {
				return err
			}
			if !claimed {
				return nil
			}
		}
		if !p.Status.CanReceive() {
			return nil
		}

		index := make(map[int64]int, len(p.Lines))
		for i, l := range p.Lines {
			index[l.ID] = i
		}
		for i, in := range input.Lines {
			pos, ok := index[in.LineID]
			if !ok {
				return shared.Validation(fmt.Sprintf("lines[%d].line_id", i), fmt.Sprintf("line %d not on purchase %d", in.LineID, id))
			}
			if line := p.Lines[pos]; in.Received > line.Remaining() {
				return &shared.OverReceiptError{PurchaseID: id, LineID: line.ID, Requested: in.Received, Remaining: line.Remaining()}
			}
		}

		entries := make([]inventory.Entry, 0, len(input.Lines))
		for _, in := range input.Lines {
			if in.Received == 0 {
				continue
			}
			line := &p.Lines[index[in.LineID]]
			if err := tx.AddReceived(ctx, line.ID, in.Received); err != nil {
				return err
			}
			line.Received += in.Received
			entries = append(entries, inventory.Entry{
				ProductID: line.ProductID,
				Location:  inventory.Branch(p.BranchID),
				Qty:       in.Received,
				Type:      inventory.MovementPurchaseReceive,
				RefKind:   inventory.DocumentPurchase,
				RefID:     p.ID,
				UnitCost:  line.UnitCost,
			})
		}
		posting, err = s.poster.Post(ctx, tx, entries)
		if err != nil {
			return err
		}
		if next := StatusFromLines(p.Lines); next != p.Status {
			if err := tx.UpdateStatus(ctx, p.ID, next); err != nil {
				return err
			}
			p.Status = next
		}
		p.UpdatedAt = s.now()
		result = p
		return nil
	})
	if err != nil {
		return Purchase{}, err
	}
	s.poster.Committed(ctx, posting)
	if result.Status != from {
		s.recordAudit(ctx, shared.TransitionLog(ctx, auditEntity, result.ID, string(from), string(result.Status), map[string]any{"code": result.Code}))
	}
	return result, nil
}

// Get returns the purchase with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, error) {
	if id <= 0 {
		return Purchase{}, shared.Validation("id", "must be greater than 0")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, log)
}
