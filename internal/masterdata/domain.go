// Package masterdata exposes the read-only reference data the ledger engine consumes:
// product valuation and branch, partner and supplier existence.
package masterdata

import (
	"context"

	"github.com/shopspring/decimal"
)

// Product is the slice of product master data needed for valuation.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

// Catalog answers reference lookups. Product returns a shared.NotFoundError for unknown ids;
// the existence checks report false instead of failing.
type Catalog interface {
	Product(ctx context.Context, id int64) (Product, error)
	BranchExists(ctx context.Context, id int64) (bool, error)
	PartnerExists(ctx context.Context, id int64) (bool, error)
	SupplierExists(ctx context.Context, id int64) (bool, error)
}
