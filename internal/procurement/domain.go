package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status of a purchase document.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusReceived Status = "RECEIVED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReceived:
		return true
	default:
		return false
	}
}

// CanReceive reports whether stock may still be received against the document.
func (s Status) CanReceive() bool { return s == StatusPending }

// Purchase is a purchase document header with its lines.
type Purchase struct {
	ID         int64           `json:"id"`
	Code       string          `json:"code"`
	SupplierID int64           `json:"supplier_id"`
	BranchID   int64           `json:"branch_id"`
	Status     Status          `json:"status"`
	TotalCost  decimal.Decimal `json:"total_cost"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Lines      []Line          `json:"lines"`
}

// Line is one ordered product. Received is cumulative and only grows.
type Line struct {
	ID         int64           `json:"id"`
	PurchaseID int64           `json:"purchase_id"`
	ProductID  int64           `json:"product_id"`
	Ordered    int64           `json:"qty_ordered"`
	Received   int64           `json:"qty_received"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// Remaining returns the quantity still open for receiving.
func (l Line) Remaining() int64 { return l.Ordered - l.Received }

// Complete reports whether the line is fully received.
func (l Line) Complete() bool { return l.Received >= l.Ordered }

// StatusFromLines derives the document status: RECEIVED only when every line is complete.
func StatusFromLines(lines []Line) Status {
	if len(lines) == 0 {
		return StatusPending
	}
	for _, l := range lines {
		if !l.Complete() {
			return StatusPending
		}
	}
	return StatusReceived
}

// CreateInput describes a new purchase.
type CreateInput struct {
	SupplierID int64        `json:"supplier_id" validate:"required,gt=0"`
	BranchID   int64        `json:"branch_id" validate:"required,gt=0"`
	Note       string       `json:"note" validate:"max=500"`
	Items      []CreateItem `json:"items" validate:"required,min=1,dive"`
}

// CreateItem is one ordered product. A zero UnitCost takes the product's catalog cost.
type CreateItem struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Qty       int64           `json:"qty" validate:"gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// ReceiveInput carries per-line received increments. RequestKey makes client retries safe.
type ReceiveInput struct {
	Lines      []ReceiveLine `json:"lines" validate:"required,min=1,dive"`
	RequestKey string        `json:"request_key" validate:"max=128"`
}

// ReceiveLine is the quantity received now for one line, not the cumulative total.
type ReceiveLine struct {
	LineID   int64 `json:"line_id" validate:"required,gt=0"`
	Received int64 `json:"received" validate:"gte=0"`
}
