// Package masterdatatest provides an in-memory Catalog for workflow tests.
package masterdatatest

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/masterdata"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Static is a Catalog backed by maps. ProductCalls counts Product lookups.
type Static struct {
	mu        sync.Mutex
	products  map[int64]masterdata.Product
	branches  map[int64]bool
	partners  map[int64]bool
	suppliers map[int64]bool

	ProductCalls int
}

// New returns an empty catalog.
func New() *Static {
	return &Static{
		products:  map[int64]masterdata.Product{},
		branches:  map[int64]bool{},
		partners:  map[int64]bool{},
		suppliers: map[int64]bool{},
	}
}

// WithProduct registers a product valued at cost and sold at price.
func (s *Static) WithProduct(id int64, cost, price int64) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = masterdata.Product{ID: id, Name: "product", UnitCost: decimal.NewFromInt(cost), SalePrice: decimal.NewFromInt(price)}
	return s
}

// WithBranches registers branch ids.
func (s *Static) WithBranches(ids ...int64) *Static {
	return s.add(s.branches, ids)
}

// WithPartners registers consignment partner ids.
func (s *Static) WithPartners(ids ...int64) *Static {
	return s.add(s.partners, ids)
}

// WithSuppliers registers supplier ids.
func (s *Static) WithSuppliers(ids ...int64) *Static {
	return s.add(s.suppliers, ids)
}

func (s *Static) add(m map[int64]bool, ids []int64) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		m[id] = true
	}
	return s
}

func (s *Static) Product(_ context.Context, id int64) (masterdata.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ProductCalls++
	p, ok := s.products[id]
	if !ok {
		return masterdata.Product{}, shared.NotFound("product", id)
	}
	return p, nil
}

func (s *Static) BranchExists(_ context.Context, id int64) (bool, error) {
	return s.has(s.branches, id), nil
}

func (s *Static) PartnerExists(_ context.Context, id int64) (bool, error) {
	return s.has(s.partners, id), nil
}

func (s *Static) SupplierExists(_ context.Context, id int64) (bool, error) {
	return s.has(s.suppliers, id), nil
}

func (s *Static) has(m map[int64]bool, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m[id]
}
