package consignment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

// Mode selects the direction of a delivery.
type Mode string

const (
	// ModeSend moves stock from a branch to a consignment partner.
	ModeSend Mode = "SEND"
	// ModeReturn brings stock back into a branch.
	ModeReturn Mode = "RETURN"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeSend || m == ModeReturn }

func (m Mode) movements() (out, in inventory.MovementType) {
	if m == ModeReturn {
		return inventory.MovementConsignmentReturnOut, inventory.MovementConsignmentReturnIn
	}
	return inventory.MovementConsignmentSendOut, inventory.MovementConsignmentSendIn
}

// Status of a delivery document.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusSent     Status = "SENT"
	StatusReceived Status = "RECEIVED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusReceived:
		return true
	default:
		return false
	}
}

// CanConfirm reports whether receipt may be confirmed.
func (s Status) CanConfirm() bool { return s == StatusDraft || s == StatusSent }

// Delivery is a consignment send or return document.
type Delivery struct {
	ID          int64              `json:"id"`
	Code        string             `json:"code"`
	Mode        Mode               `json:"mode"`
	Origin      inventory.Location `json:"origin"`
	Destination inventory.Location `json:"destination"`
	Status      Status             `json:"status"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Note        string             `json:"note,omitempty"`
	ReceivedAt  *time.Time         `json:"received_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Lines       []Line             `json:"lines"`
}

// Line is one delivered product. QtyReceived is nil until the delivery is confirmed.
type Line struct {
	ID          int64           `json:"id"`
	DeliveryID  int64           `json:"delivery_id"`
	ProductID   int64           `json:"product_id"`
	Qty         int64           `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
	QtyReceived *int64          `json:"qty_received,omitempty"`
}

// CreateInput describes a new delivery. SEND takes FromBranchID and ToPartnerID; RETURN takes
// ToBranchID and exactly one of FromBranchID and FromPartnerID. Status defaults to SENT.
type CreateInput struct {
	Mode          Mode        `json:"mode" validate:"required,oneof=SEND RETURN"`
	FromBranchID  int64       `json:"from_branch_id" validate:"gte=0"`
	FromPartnerID int64       `json:"from_partner_id" validate:"gte=0"`
	ToBranchID    int64       `json:"to_branch_id" validate:"gte=0"`
	ToPartnerID   int64       `json:"to_partner_id" validate:"gte=0"`
	Status        Status      `json:"status" validate:"omitempty,oneof=DRAFT SENT"`
	Note          string      `json:"note" validate:"max=500"`
	Lines         []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// LineInput is one requested product. A zero UnitPrice takes the product's sale price.
type LineInput struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Qty       int64           `json:"qty" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ConfirmInput lists optional per-line overrides; lines without one are received in full.
type ConfirmInput struct {
	Items []ConfirmItem `json:"items" validate:"dive"`
}

// ConfirmItem overrides the received quantity of the line matched by LineID, or when LineID is
// zero, of the line carrying ProductID.
type ConfirmItem struct {
	LineID      int64 `json:"line_id" validate:"gte=0"`
	ProductID   int64 `json:"product_id" validate:"gte=0"`
	QtyReceived int64 `json:"qty_received" validate:"gte=0"`
}
