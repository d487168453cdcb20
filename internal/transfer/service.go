package transfer

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

const auditEntity = "transfer"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Transfer, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	inventory.Writer
	Insert(ctx context.Context, t Transfer) (Transfer, error)
	LockForUpdate(ctx context.Context, id int64) (Transfer, error)
	ReplaceLines(ctx context.Context, id int64, lines []Line) ([]Line, error)
	UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error
}

// Service orchestrates two-phase transfers: Send debits the source, Receive credits the
// destination. Between the two the stock is in transit and absent from both balances.
type Service struct {
	repo    RepositoryPort
	catalog masterdata.Catalog
	numbers docnumber.Allocator
	poster  *inventory.Poster
	audit   shared.AuditRecorder
	now     func() time.Time
}

// NewService constructs transfer service.
func NewService(repo RepositoryPort, catalog masterdata.Catalog, numbers docnumber.Allocator, poster *inventory.Poster, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, catalog: catalog, numbers: numbers, poster: poster, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a DRAFT transfer.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transfer, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Transfer{}, err
	}
	dest, err := inventory.ExactlyOne(input.ToBranchID, input.ToPartnerID)
	if err != nil {
		return Transfer{}, err
	}
	if dest.IsBranch() && dest.ID() == input.FromBranchID {
		return Transfer{}, shared.Validation("to_branch_id", "must differ from from_branch_id")
	}
	if err := s.requireRefs(ctx, input.FromBranchID, dest); err != nil {
		return Transfer{}, err
	}
	lines, err := s.buildLines(ctx, input.Lines)
	if err != nil {
		return Transfer{}, err
	}
	code, err := s.numbers.Next(ctx, docnumber.PrefixTransfer)
	if err != nil {
		return Transfer{}, err
	}
	now := s.now()
	t := Transfer{
		Code:         code,
		FromBranchID: input.FromBranchID,
		Destination:  dest,
		Status:       StatusDraft,
		Note:         input.Note,
		CreatedAt:    now,
		UpdatedAt:    now,
		Lines:        lines,
	}
	var created Transfer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, t)
		return err
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, shared.TransitionLog(ctx, auditEntity, created.ID, "", string(StatusDraft), map[string]any{"code": created.Code, "destination": dest.String()}))
	return created, nil
}

// ReplaceLines swaps the line set of a DRAFT transfer.
func (s *Service) ReplaceLines(ctx context.Context, id int64, input ReplaceLinesInput) (Transfer, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Transfer{}, err
	}
	lines, err := s.buildLines(ctx, input.Lines)
	if err != nil {
		return Transfer{}, err
	}
	var result Transfer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !t.Status.CanEdit() {
			return &shared.InvalidTransitionError{Kind: auditEntity, ID: id, From: string(t.Status), Action: "edit lines"}
		}
		t.Lines, err = tx.ReplaceLines(ctx, id, lines)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return result, nil
}

// Send debits the source branch for every line and moves the transfer to SENT.
func (s *Service) Send(ctx context.Context, id int64) (Transfer, error) {
	return s.transition(ctx, id, "send", StatusSent, func(t Transfer) (bool, error) {
		if !t.Status.CanSend() {
			return false, nil
		}
		if len(t.Lines) == 0 {
			return false, shared.Validation("lines", "transfer has no lines")
		}
		return true, nil
	}, func(t Transfer, line Line, cost decimal.Decimal) inventory.Entry {
		return inventory.Entry{
			ProductID: line.ProductID,
			Location:  inventory.Branch(t.FromBranchID),
			Qty:       -line.Qty,
			Type:      inventory.MovementTransferOut,
			RefKind:   inventory.DocumentTransfer,
			RefID:     t.ID,
			UnitCost:  cost,
		}
	})
}

// Receive credits the destination for every line and moves the transfer to RECEIVED.
func (s *Service) Receive(ctx context.Context, id int64) (Transfer, error) {
	return s.transition(ctx, id, "receive", StatusReceived, func(t Transfer) (bool, error) {
		return t.Status.CanReceive(), nil
	}, func(t Transfer, line Line, cost decimal.Decimal) inventory.Entry {
		return inventory.Entry{
			ProductID: line.ProductID,
			Location:  t.Destination,
			Qty:       line.Qty,
			Type:      inventory.MovementTransferIn,
			RefKind:   inventory.DocumentTransfer,
			RefID:     t.ID,
			UnitCost:  cost,
		}
	})
}

func (s *Service) transition(
	ctx context.Context,
	id int64,
	action string,
	to Status,
	allowed func(Transfer) (bool, error),
	entryFor func(Transfer, Line, decimal.Decimal) inventory.Entry,
) (Transfer, error) {
	if id <= 0 {
		return Transfer{}, shared.Validation("id", "must be greater than 0")
	}
	var (
		result  Transfer
		from    Status
		posting inventory.Posting
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		ok, err := allowed(t)
		if err != nil {
			return err
		}
		if !ok {
			return &shared.InvalidTransitionError{Kind: auditEntity, ID: id, From: string(t.Status), Action: action}
		}
		costs := make(map[int64]decimal.Decimal, len(t.Lines))
		entries := make([]inventory.Entry, 0, len(t.Lines))
		for _, line := range t.Lines {
			cost, ok := costs[line.ProductID]
			if !ok {
				product, err := s.catalog.Product(ctx, line.ProductID)
				if err != nil {
					return err
				}
				cost = product.UnitCost
				costs[line.ProductID] = cost
			}
			entries = append(entries, entryFor(t, line, cost))
		}
		posting, err = s.poster.Post(ctx, tx, entries)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.UpdateStatus(ctx, id, to, now); err != nil {
			return err
		}
		from = t.Status
		t.Status, t.UpdatedAt = to, now
		switch to {
		case StatusSent:
			t.SentAt = &now
		case StatusReceived:
			t.ReceivedAt = &now
		}
		result = t
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.poster.Committed(ctx, posting)
	s.recordAudit(ctx, shared.TransitionLog(ctx, auditEntity, id, string(from), string(to), map[string]any{"code": result.Code, "lines": len(result.Lines)}))
	return result, nil
}

// Get returns the transfer with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	if id <= 0 {
		return Transfer{}, shared.Validation("id", "must be greater than 0")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) requireRefs(ctx context.Context, from int64, dest inventory.Location) error {
	ok, err := s.catalog.BranchExists(ctx, from)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Validation("from_branch_id", "unknown branch")
	}
	if dest.IsBranch() {
		ok, err = s.catalog.BranchExists(ctx, dest.ID())
		if err != nil {
			return err
		}
		if !ok {
			return shared.Validation("to_branch_id", "unknown branch")
		}
		return nil
	}
	ok, err = s.catalog.PartnerExists(ctx, dest.ID())
	if err != nil {
		return err
	}
	if !ok {
		return shared.Validation("to_partner_id", "unknown consignment partner")
	}
	return nil
}

func (s *Service) buildLines(ctx context.Context, in []LineInput) ([]Line, error) {
	lines := make([]Line, 0, len(in))
	seen := make(map[int64]bool, len(in))
	for i, l := range in {
		if seen[l.ProductID] {
			return nil, shared.Validation(fmt.Sprintf("lines[%d].product_id", i), "duplicate product")
		}
		seen[l.ProductID] = true
		if _, err := s.catalog.Product(ctx, l.ProductID); err != nil {
			return nil, err
		}
		lines = append(lines, Line{ProductID: l.ProductID, Qty: l.Qty})
	}
	return lines, nil
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, log)
}
