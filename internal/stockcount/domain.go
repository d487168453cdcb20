package stockcount

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

// Scope names the kind of location a session counts.
type Scope string

const (
	ScopeBranch      Scope = "BRANCH"
	ScopeConsignment Scope = "CONSIGNMENT"
)

// Location binds the scope to a concrete location id.
func (s Scope) Location(id int64) (inventory.Location, error) {
	switch s {
	case ScopeBranch:
		return inventory.NewLocation(inventory.LocationBranch, id)
	case ScopeConsignment:
		return inventory.NewLocation(inventory.LocationPartner, id)
	default:
		return inventory.Location{}, errUnknownScope(s)
	}
}

// Status of a count session.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Session is a physical count of one location.
type Session struct {
	ID          int64              `json:"id"`
	Code        string             `json:"code"`
	Scope       Scope              `json:"scope"`
	Location    inventory.Location `json:"location"`
	Status      Status             `json:"status"`
	Note        string             `json:"note,omitempty"`
	FinalizedAt *time.Time         `json:"finalized_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Lines       []Line             `json:"lines"`
}

// Line holds the system snapshot and the counted quantity of one product.
type Line struct {
	ID         int64 `json:"id"`
	SessionID  int64 `json:"session_id"`
	ProductID  int64 `json:"product_id"`
	SystemQty  int64 `json:"system_qty"`
	CountedQty int64 `json:"counted_qty"`
}

// Delta is counted minus system quantity.
func (l Line) Delta() int64 { return l.CountedQty - l.SystemQty }

// Adjustment is the correction posted for one line on finalize. Delta is counted minus the
// snapshot; PostedQty is what the ledger entry carried against the balance at finalize time,
// zero with no EntryID when the balance already held the counted quantity.
type Adjustment struct {
	ProductID    int64                  `json:"product_id"`
	Location     inventory.Location     `json:"location"`
	SystemQty    int64                  `json:"system_qty"`
	CountedQty   int64                  `json:"counted_qty"`
	Delta        int64                  `json:"delta"`
	PostedQty    int64                  `json:"posted_qty"`
	MovementType inventory.MovementType `json:"movement_type"`
	UnitCost     decimal.Decimal        `json:"unit_cost"`
	Value        decimal.Decimal        `json:"value"`
	EntryID      int64                  `json:"entry_id,omitempty"`
}

// FinalizeResult is the closed session and the adjustments posted by this call.
type FinalizeResult struct {
	Session     Session      `json:"session"`
	Adjustments []Adjustment `json:"adjustments"`
}

// CreateInput opens a session.
type CreateInput struct {
	Scope      Scope  `json:"scope" validate:"required,oneof=BRANCH CONSIGNMENT"`
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
	Note       string `json:"note" validate:"max=500"`
}

// UpsertLinesInput sets lines by product; existing lines for the same product are overwritten.
type UpsertLinesInput struct {
	Lines []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// LineInput is one scanned product.
type LineInput struct {
	ProductID  int64 `json:"product_id" validate:"required,gt=0"`
	SystemQty  int64 `json:"system_qty"`
	CountedQty int64 `json:"counted_qty" validate:"gte=0"`
}
