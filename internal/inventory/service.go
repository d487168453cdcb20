package inventory

import (
	"context"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Reader abstracts read-side repository usage for service.
type Reader interface {
	Balance(ctx context.Context, productID int64, loc Location) (int64, error)
	ListBalances(ctx context.Context, loc Location) ([]Balance, error)
	StockCard(ctx context.Context, filter StockCardFilter) ([]Entry, error)
	Drift(ctx context.Context, kind LocationKind) ([]Drift, error)
}

// Service exposes balances and ledger history to callers outside the workflows.
type Service struct {
	repo Reader
}

// NewService builds Service.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// Balance returns the current quantity, 0 when no movement ever touched the pair.
func (s *Service) Balance(ctx context.Context, productID int64, loc Location) (int64, error) {
	if productID <= 0 {
		return 0, shared.Validation("product_id", "is required")
	}
	if !loc.Valid() {
		return 0, shared.Validation("location", "is required")
	}
	return s.repo.Balance(ctx, productID, loc)
}

// Balances lists every balance row of a location.
func (s *Service) Balances(ctx context.Context, loc Location) ([]Balance, error) {
	if !loc.Valid() {
		return nil, shared.Validation("location", "is required")
	}
	return s.repo.ListBalances(ctx, loc)
}

// StockCard lists ledger entries of one (product, location) in posting order.
func (s *Service) StockCard(ctx context.Context, filter StockCardFilter) ([]Entry, error) {
	if filter.ProductID <= 0 {
		return nil, shared.Validation("product_id", "is required")
	}
	if !filter.Location.Valid() {
		return nil, shared.Validation("location", "is required")
	}
	return s.repo.StockCard(ctx, filter)
}

// Drift lists every pair whose balance disagrees with its ledger sum.
func (s *Service) Drift(ctx context.Context, kind LocationKind) ([]Drift, error) {
	if !kind.Valid() {
		return nil, shared.Validation("kind", "must be BRANCH or PARTNER")
	}
	return s.repo.Drift(ctx, kind)
}
