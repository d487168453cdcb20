package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// MovementType enumerates supported stock movements. Outbound types carry a negative
// signed quantity, inbound types a positive one.
type MovementType string

const (
	MovementPurchaseReceive      MovementType = "PURCHASE_RECEIVE"
	MovementTransferOut          MovementType = "TRANSFER_OUT"
	MovementTransferIn           MovementType = "TRANSFER_IN"
	MovementCountAdjustIn        MovementType = "COUNT_ADJUST_IN"
	MovementCountAdjustOut       MovementType = "COUNT_ADJUST_OUT"
	MovementConsignmentSendOut   MovementType = "CONSIGNMENT_SEND_OUT"
	MovementConsignmentSendIn    MovementType = "CONSIGNMENT_SEND_IN"
	MovementConsignmentReturnOut MovementType = "CONSIGNMENT_RETURN_OUT"
	MovementConsignmentReturnIn  MovementType = "CONSIGNMENT_RETURN_IN"
)

// Inbound reports whether the movement adds stock. The second result is false for unknown types.
func (m MovementType) Inbound() (bool, bool) {
	switch m {
	case MovementPurchaseReceive, MovementTransferIn, MovementCountAdjustIn,
		MovementConsignmentSendIn, MovementConsignmentReturnIn:
		return true, true
	case MovementTransferOut, MovementCountAdjustOut,
		MovementConsignmentSendOut, MovementConsignmentReturnOut:
		return false, true
	default:
		return false, false
	}
}

// DocumentKind identifies the document family a ledger entry originates from.
type DocumentKind string

const (
	DocumentPurchase            DocumentKind = "PURCHASE"
	DocumentTransfer            DocumentKind = "TRANSFER"
	DocumentConsignmentDelivery DocumentKind = "CONSIGNMENT_DELIVERY"
	DocumentStockCount          DocumentKind = "STOCK_COUNT"
)

// Valid reports whether k is a known document family.
func (k DocumentKind) Valid() bool {
	switch k {
	case DocumentPurchase, DocumentTransfer, DocumentConsignmentDelivery, DocumentStockCount:
		return true
	default:
		return false
	}
}

// Entry is one immutable ledger row.
type Entry struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Location  Location        `json:"location"`
	Qty       int64           `json:"signed_qty"`
	Type      MovementType    `json:"movement_type"`
	RefKind   DocumentKind    `json:"ref_document_kind"`
	RefID     int64           `json:"ref_document_id"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	PostedAt  time.Time       `json:"posted_at"`
}

// Validate checks the entry shape and sign convention.
func (e Entry) Validate() error {
	if e.ProductID <= 0 {
		return fmt.Errorf("%w: product required", ErrInvalidEntry)
	}
	if !e.Location.Valid() {
		return fmt.Errorf("%w: location %s", ErrInvalidEntry, e.Location)
	}
	if e.Qty == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, ErrInvalidQuantity)
	}
	inbound, known := e.Type.Inbound()
	if !known {
		return fmt.Errorf("%w: unknown movement type %q", ErrInvalidEntry, e.Type)
	}
	if inbound != (e.Qty > 0) {
		return fmt.Errorf("%w: %s with signed qty %d", ErrInvalidEntry, e.Type, e.Qty)
	}
	if !e.RefKind.Valid() || e.RefID <= 0 {
		return fmt.Errorf("%w: document reference required", ErrInvalidEntry)
	}
	if e.UnitCost.IsNegative() {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, ErrInvalidUnitCost)
	}
	return nil
}

// Balance is the current on-hand quantity of a product at a location.
type Balance struct {
	ProductID int64     `json:"product_id"`
	Location  Location  `json:"location"`
	Qty       int64     `json:"qty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Drift is a (product, location) pair whose balance row disagrees with its ledger sum.
type Drift struct {
	ProductID  int64    `json:"product_id"`
	Location   Location `json:"location"`
	BalanceQty int64    `json:"balance_qty"`
	LedgerQty  int64    `json:"ledger_qty"`
}

// StockCardFilter filters ledger entries of one (product, location).
type StockCardFilter struct {
	ProductID int64
	Location  Location
	From      time.Time
	To        time.Time
	Limit     int
}

// BalanceStore holds current quantity per (product, location). Every call runs inside the
// caller's atomic unit.
type BalanceStore interface {
	// Get returns the quantity, 0 when the row does not exist.
	Get(ctx context.Context, productID int64, loc Location) (int64, error)
	// ApplyDelta creates the row at delta or adds delta to it, returning the new quantity.
	ApplyDelta(ctx context.Context, productID int64, loc Location, delta int64) (int64, error)
	// SetAbsolute overwrites the quantity.
	SetAbsolute(ctx context.Context, productID int64, loc Location, qty int64) error
}

// Ledger is the append-only movement log.
type Ledger interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	AppendBatch(ctx context.Context, entries []Entry) error
}

// Writer combines both stores bound to one transaction.
type Writer interface {
	BalanceStore
	Ledger
}

// InsufficientStockError is returned when a debit would leave a negative balance.
type InsufficientStockError struct {
	ProductID int64
	Location  Location
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: product %d at %s has %d, requested %d", e.ProductID, e.Location, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrNegativeStock }

var (
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = shared.ErrInsufficientStock
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: quantity must be non zero")
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrInvalidEntry wraps every ledger entry shape violation.
	ErrInvalidEntry = errors.New("inventory: invalid ledger entry")
)
