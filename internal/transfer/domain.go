package transfer

import (
	"time"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

// Status of a transfer document. Transitions only move forward: DRAFT, SENT, RECEIVED.
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

// CanEdit reports whether lines may be replaced.
func (s Status) CanEdit() bool { return s == StatusDraft }

// CanSend reports whether the source may be debited.
func (s Status) CanSend() bool { return s == StatusDraft }

// CanReceive reports whether the destination may be credited.
func (s Status) CanReceive() bool { return s == StatusSent }

// Transfer moves stock out of a branch into another branch or a consignment partner.
type Transfer struct {
	ID           int64              `json:"id"`
	Code         string             `json:"code"`
	FromBranchID int64              `json:"from_branch_id"`
	Destination  inventory.Location `json:"destination"`
	Status       Status             `json:"status"`
	Note         string             `json:"note,omitempty"`
	SentAt       *time.Time         `json:"sent_at,omitempty"`
	ReceivedAt   *time.Time         `json:"received_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Lines        []Line             `json:"lines"`
}

// Line is one product moved by the transfer.
type Line struct {
	ID         int64 `json:"id"`
	TransferID int64 `json:"transfer_id"`
	ProductID  int64 `json:"product_id"`
	Qty        int64 `json:"qty"`
}

// CreateInput describes a new DRAFT transfer. Exactly one of ToBranchID and ToPartnerID is set.
type CreateInput struct {
	FromBranchID int64       `json:"from_branch_id" validate:"required,gt=0"`
	ToBranchID   int64       `json:"to_branch_id" validate:"gte=0"`
	ToPartnerID  int64       `json:"to_partner_id" validate:"gte=0"`
	Note         string      `json:"note" validate:"max=500"`
	Lines        []LineInput `json:"lines" validate:"dive"`
}

// LineInput is a requested product quantity.
type LineInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int64 `json:"qty" validate:"gt=0"`
}

// ReplaceLinesInput replaces every line of a DRAFT transfer.
type ReplaceLinesInput struct {
	Lines []LineInput `json:"lines" validate:"dive"`
}
