package consignment

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

const auditEntity = "consignment_delivery"

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Delivery, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	inventory.Writer
	Insert(ctx context.Context, d Delivery) (Delivery, error)
	LockForUpdate(ctx context.Context, id int64) (Delivery, error)
	// MarkReceived stores per-line received quantities and moves the delivery to RECEIVED.
	MarkReceived(ctx context.Context, id int64, received map[int64]int64, at time.Time) error
}

// Service orchestrates consignment deliveries.
type Service struct {
	repo    RepositoryPort
	catalog masterdata.Catalog
	numbers docnumber.Allocator
	poster  *inventory.Poster
	audit   shared.AuditRecorder
	now     func() time.Time
}

// NewService constructs consignment service.
func NewService(repo RepositoryPort, catalog masterdata.Catalog, numbers docnumber.Allocator, poster *inventory.Poster, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, catalog: catalog, numbers: numbers, poster: poster, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a delivery, priced per line, at SENT unless DRAFT is requested.
func (s *Service) Create(ctx context.Context, input CreateInput) (Delivery, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Delivery{}, err
	}
	origin, dest, err := s.route(ctx, input)
	if err != nil {
		return Delivery{}, err
	}
	status := input.Status
	if status == "" {
		status = StatusSent
	}
	lines := make([]Line, 0, len(input.Lines))
	seen := make(map[int64]bool, len(input.Lines))
	total := decimal.Zero
	for i, in := range input.Lines {
		if seen[in.ProductID] {
			return Delivery{}, shared.Validation(fmt.Sprintf("lines[%d].product_id", i), "duplicate product")
		}
		seen[in.ProductID] = true
		if in.UnitPrice.IsNegative() {
			return Delivery{}, shared.Validation(fmt.Sprintf("lines[%d].unit_price", i), "must be at least 0")
		}
		product, err := s.catalog.Product(ctx, in.ProductID)
		if err != nil {
			return Delivery{}, err
		}
		price := in.UnitPrice
		if price.IsZero() {
			price = product.SalePrice
		}
		amount := price.Mul(decimal.NewFromInt(in.Qty))
		total = total.Add(amount)
		lines = append(lines, Line{ProductID: in.ProductID, Qty: in.Qty, UnitPrice: price, Amount: amount})
	}
	code, err := s.numbers.Next(ctx, docnumber.PrefixConsignment)
	if err != nil {
		return Delivery{}, err
	}
	now := s.now()
	d := Delivery{
		Code:        code,
		Mode:        input.Mode,
		Origin:      origin,
		Destination: dest,
		Status:      status,
		TotalAmount: total,
		Note:        input.Note,
		CreatedAt:   now,
		UpdatedAt:   now,
		Lines:       lines,
	}
	var created Delivery
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, d)
		return err
	})
	if err != nil {
		return Delivery{}, err
	}
	s.recordAudit(ctx, shared.TransitionLog(ctx, auditEntity, created.ID, "", string(created.Status), map[string]any{
		"code": created.Code, "mode": string(created.Mode), "total_amount": created.TotalAmount.String(),
	}))
	return created, nil
}

func (s *Service) route(ctx context.Context, input CreateInput) (origin, dest inventory.Location, err error) {
	switch input.Mode {
	case ModeSend:
		if input.FromPartnerID > 0 {
			return origin, dest, shared.Validation("from_partner_id", "not allowed for SEND")
		}
		if input.ToBranchID > 0 {
			return origin, dest, shared.Validation("to_branch_id", "not allowed for SEND")
		}
		if input.FromBranchID == 0 {
			return origin, dest, shared.Validation("from_branch_id", "is required")
		}
		if input.ToPartnerID == 0 {
			return origin, dest, shared.Validation("to_partner_id", "is required")
		}
		origin, dest = inventory.Branch(input.FromBranchID), inventory.Partner(input.ToPartnerID)
	case ModeReturn:
		if input.ToPartnerID > 0 {
			return origin, dest, shared.Validation("to_partner_id", "not allowed for RETURN")
		}
		if input.ToBranchID == 0 {
			return origin, dest, shared.Validation("to_branch_id", "is required")
		}
		if origin, err = inventory.ExactlyOne(input.FromBranchID, input.FromPartnerID); err != nil {
			return origin, dest, err
		}
		dest = inventory.Branch(input.ToBranchID)
		if origin == dest {
			return origin, dest, shared.Validation("to_branch_id", "must differ from origin")
		}
	default:
		return origin, dest, shared.Validation("mode", "must be SEND or RETURN")
	}
	for _, loc := range []inventory.Location{origin, dest} {
		if err := s.requireLocation(ctx, loc); err != nil {
			return origin, dest, err
		}
	}
	return origin, dest, nil
}

func (s *Service) requireLocation(ctx context.Context, loc inventory.Location) error {
	var (
		ok  bool
		err error
	)
	if loc.IsBranch() {
		ok, err = s.catalog.BranchExists(ctx, loc.ID())
	} else {
		ok, err = s.catalog.PartnerExists(ctx, loc.ID())
	}
	if err != nil {
		return err
	}
	if !ok {
		return shared.Validation("location", fmt.Sprintf("unknown %s", loc))
	}
	return nil
}

// ConfirmReceive settles the received quantity of every line, posts the matching debit at the
// origin and credit at the destination, and moves the delivery to RECEIVED.
func (s *Service) ConfirmReceive(ctx context.Context, id int64, input ConfirmInput) (Delivery, error) {
	if id <= 0 {
		return Delivery{}, shared.Validation("id", "must be greater than 0")
	}
	if err := shared.ValidateStruct(input); err != nil {
		return Delivery{}, err
	}
	for i, item := range input.Items {
		if item.LineID == 0 && item.ProductID == 0 {
			return Delivery{}, shared.Validation(fmt.Sprintf("items[%d]", i), "line_id or product_id is required")
		}
	}
	var (
		result  Delivery
		from    Status
		posting inventory.Posting
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.LockForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !d.Status.CanConfirm() {
			return &shared.InvalidTransitionError{Kind: auditEntity, ID: id, From: string(d.Status), Action: "confirm receive"}
		}
		received, err := resolveReceived(d.Lines, input.Items)
		if err != nil {
			return err
		}
		outType, inType := d.Mode.movements()
		entries := make([]inventory.Entry, 0, 2*len(d.Lines))
		for _, line := range d.Lines {
			qty := received[line.ID]
			if qty == 0 {
				continue
			}
			product, err := s.catalog.Product(ctx, line.ProductID)
			if err != nil {
				return err
			}
			base := inventory.Entry{
				ProductID: line.ProductID,
				RefKind:   inventory.DocumentConsignmentDelivery,
				RefID:     d.ID,
				UnitCost:  product.UnitCost,
			}
			out, in := base, base
			out.Location, out.Qty, out.Type = d.Origin, -qty, outType
			in.Location, in.Qty, in.Type = d.Destination, qty, inType
			entries = append(entries, out, in)
		}
		posting, err = s.poster.Post(ctx, tx, entries)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.MarkReceived(ctx, id, received, now); err != nil {
			return err
		}
		from = d.Status
		d.Status, d.ReceivedAt, d.UpdatedAt = StatusReceived, &now, now
		for i := range d.Lines {
			qty := received[d.Lines[i].ID]
			d.Lines[i].QtyReceived = &qty
		}
		result = d
		return nil
	})
	if err != nil {
		return Delivery{}, err
	}
	s.poster.Committed(ctx, posting)
	s.recordAudit(ctx, shared.TransitionLog(ctx, auditEntity, id, string(from), string(StatusReceived), map[string]any{"code": result.Code, "overrides": len(input.Items)}))
	return result, nil
}

// resolveReceived maps every line id to its confirmed quantity. An override matches by line id
// first, then by product id; lines without an override are received in full.
func resolveReceived(lines []Line, items []ConfirmItem) (map[int64]int64, error) {
	byLine := make(map[int64]int, len(lines))
	byProduct := make(map[int64]int, len(lines))
	for i, l := range lines {
		byLine[l.ID] = i
		byProduct[l.ProductID] = i
	}
	received := make(map[int64]int64, len(lines))
	for _, l := range lines {
		received[l.ID] = l.Qty
	}
	overridden := make(map[int]bool, len(items))
	for i, item := range items {
		pos, ok := byLine[item.LineID]
		if item.LineID == 0 || !ok {
			pos, ok = byProduct[item.ProductID]
		}
		if !ok {
			return nil, shared.Validation(fmt.Sprintf("items[%d]", i), "does not match any delivery line")
		}
		if overridden[pos] {
			return nil, shared.Validation(fmt.Sprintf("items[%d]", i), "line overridden twice")
		}
		overridden[pos] = true
		line := lines[pos]
		if item.QtyReceived > line.Qty {
			return nil, shared.Validation(fmt.Sprintf("items[%d].qty_received", i), fmt.Sprintf("must be at most %d", line.Qty))
		}
		received[line.ID] = item.QtyReceived
	}
	return received, nil
}

// Get returns the delivery with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Delivery, error) {
	if id <= 0 {
		return Delivery{}, shared.Validation("id", "must be greater than 0")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) recordAudit(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, log)
}
