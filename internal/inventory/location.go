package inventory

import (
	"encoding/json"
	"fmt"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// LocationKind tags a Location.
type LocationKind string

const (
	// LocationBranch is an owned branch.
	LocationBranch LocationKind = "BRANCH"
	// LocationPartner is a consignment partner holding owned stock.
	LocationPartner LocationKind = "PARTNER"
)

// Valid reports whether k is a known kind.
func (k LocationKind) Valid() bool {
	switch k {
	case LocationBranch, LocationPartner:
		return true
	default:
		return false
	}
}

// Location is either a branch or a consignment partner, never both. The zero value is no
// location and is rejected wherever stock is tracked.
type Location struct {
	kind LocationKind
	id   int64
}

// Branch returns the branch location id.
func Branch(id int64) Location { return Location{kind: LocationBranch, id: id} }

// Partner returns the consignment partner location id.
func Partner(id int64) Location { return Location{kind: LocationPartner, id: id} }

// NewLocation validates kind and id.
func NewLocation(kind LocationKind, id int64) (Location, error) {
	if !kind.Valid() {
		return Location{}, shared.Validation("location.kind", fmt.Sprintf("unknown kind %q", kind))
	}
	if id <= 0 {
		return Location{}, shared.Validation("location.id", "must be greater than 0")
	}
	return Location{kind: kind, id: id}, nil
}

// ExactlyOne builds a Location from a pair of optional ids where exactly one must be set.
func ExactlyOne(branchID, partnerID int64) (Location, error) {
	switch {
	case branchID > 0 && partnerID > 0:
		return Location{}, shared.Validation("destination", "branch and partner are mutually exclusive")
	case branchID > 0:
		return Branch(branchID), nil
	case partnerID > 0:
		return Partner(partnerID), nil
	default:
		return Location{}, shared.Validation("destination", "one of branch or partner is required")
	}
}

func (l Location) Kind() LocationKind { return l.kind }
func (l Location) ID() int64          { return l.id }
func (l Location) IsZero() bool       { return l.kind == "" && l.id == 0 }
func (l Location) IsBranch() bool     { return l.kind == LocationBranch }
func (l Location) IsPartner() bool    { return l.kind == LocationPartner }

// Valid reports whether l names a concrete location.
func (l Location) Valid() bool { return l.kind.Valid() && l.id > 0 }

// BranchID returns the id when l is a branch, else 0.
func (l Location) BranchID() int64 {
	if l.kind == LocationBranch {
		return l.id
	}
	return 0
}

// PartnerID returns the id when l is a partner, else 0.
func (l Location) PartnerID() int64 {
	if l.kind == LocationPartner {
		return l.id
	}
	return 0
}

func (l Location) String() string {
	if l.IsZero() {
		return "NONE"
	}
	return fmt.Sprintf("%s#%d", l.kind, l.id)
}

type locationJSON struct {
	Kind LocationKind `json:"kind"`
	ID   int64        `json:"id"`
}

func (l Location) MarshalJSON() ([]byte, error) {
	if l.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(locationJSON{Kind: l.kind, ID: l.id})
}

func (l *Location) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Location{}
		return nil
	}
	var raw locationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	loc, err := NewLocation(raw.Kind, raw.ID)
	if err != nil {
		return err
	}
	*l = loc
	return nil
}
