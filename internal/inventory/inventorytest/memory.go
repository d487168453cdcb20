// Package inventorytest provides an in-memory balance store and ledger for workflow tests.
package inventorytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

type key struct {
	productID int64
	loc       inventory.Location
}

// Memory implements inventory.Writer and inventory.Reader. Clone and Replace give callers a
// copy-on-write transaction: mutate a clone, then Replace the original on commit.
type Memory struct {
	mu       sync.Mutex
	balances map[key]int64
	entries  []inventory.Entry
	audits   []shared.AuditLog
	nextID   int64

	// ApplyDeltaCalls and SetAbsoluteCalls count store calls since creation.
	ApplyDeltaCalls  int
	SetAbsoluteCalls int
}

// New returns an empty store.
func New() *Memory {
	return &Memory{balances: make(map[key]int64)}
}

// Clone deep-copies the store.
func (m *Memory) Clone() *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &Memory{
		balances:         make(map[key]int64, len(m.balances)),
		entries:          append([]inventory.Entry(nil), m.entries...),
		audits:           append([]shared.AuditLog(nil), m.audits...),
		nextID:           m.nextID,
		ApplyDeltaCalls:  m.ApplyDeltaCalls,
		SetAbsoluteCalls: m.SetAbsoluteCalls,
	}
	for k, v := range m.balances {
		c.balances[k] = v
	}
	return c
}

// Replace swaps m's contents for other's.
func (m *Memory) Replace(other *Memory) {
	c := other.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = c.balances
	m.entries = c.entries
	m.audits = c.audits
	m.nextID = c.nextID
	m.ApplyDeltaCalls = c.ApplyDeltaCalls
	m.SetAbsoluteCalls = c.SetAbsoluteCalls
}

// Seed records an opening balance through the ledger so the store stays consistent.
func (m *Memory) Seed(productID int64, loc inventory.Location, qty int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[key{productID, loc}] += qty
	m.nextID++
	m.entries = append(m.entries, inventory.Entry{
		ID:        m.nextID,
		ProductID: productID,
		Location:  loc,
		Qty:       qty,
		Type:      inventory.MovementPurchaseReceive,
		RefKind:   inventory.DocumentPurchase,
		RefID:     -1,
		UnitCost:  decimal.Zero,
		PostedAt:  time.Unix(0, 0).UTC(),
	})
}

// Qty returns the balance without a context, for assertions.
func (m *Memory) Qty(productID int64, loc inventory.Location) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[key{productID, loc}]
}

// Entries returns a copy of the ledger.
func (m *Memory) Entries() []inventory.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]inventory.Entry(nil), m.entries...)
}

// EntriesFor returns ledger entries referencing one document.
func (m *Memory) EntriesFor(kind inventory.DocumentKind, refID int64) []inventory.Entry {
	var out []inventory.Entry
	for _, e := range m.Entries() {
		if e.RefKind == kind && e.RefID == refID {
			out = append(out, e)
		}
	}
	return out
}

// RecordAudit keeps log with the store, so it commits or rolls back with the transaction.
func (m *Memory) RecordAudit(_ context.Context, log shared.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, log)
	return nil
}

// Audits returns a copy of the audit rows written through RecordAudit.
func (m *Memory) Audits() []shared.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]shared.AuditLog(nil), m.audits...)
}

// Consistent verifies that every balance equals the sum of its ledger entries.
func (m *Memory) Consistent() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := make(map[key]int64)
	for _, e := range m.entries {
		sums[key{e.ProductID, e.Location}] += e.Qty
	}
	for k, qty := range m.balances {
		if sums[k] != qty {
			return fmt.Errorf("product %d at %s: balance %d, ledger %d", k.productID, k.loc, qty, sums[k])
		}
	}
	for k, sum := range sums {
		if _, ok := m.balances[k]; !ok && sum != 0 {
			return fmt.Errorf("product %d at %s: no balance row, ledger %d", k.productID, k.loc, sum)
		}
	}
	return nil
}

func (m *Memory) Get(_ context.Context, productID int64, loc inventory.Location) (int64, error) {
	return m.Qty(productID, loc), nil
}

func (m *Memory) ApplyDelta(_ context.Context, productID int64, loc inventory.Location, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyDeltaCalls++
	k := key{productID, loc}
	m.balances[k] += delta
	return m.balances[k], nil
}

func (m *Memory) SetAbsolute(_ context.Context, productID int64, loc inventory.Location, qty int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetAbsoluteCalls++
	m.balances[key{productID, loc}] = qty
	return nil
}

func (m *Memory) Append(_ context.Context, e inventory.Entry) (inventory.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *Memory) AppendBatch(ctx context.Context, entries []inventory.Entry) error {
	for _, e := range entries {
		if _, err := m.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Balance(ctx context.Context, productID int64, loc inventory.Location) (int64, error) {
	return m.Get(ctx, productID, loc)
}

func (m *Memory) ListBalances(_ context.Context, loc inventory.Location) ([]inventory.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []inventory.Balance{}
	for k, qty := range m.balances {
		if k.loc == loc {
			out = append(out, inventory.Balance{ProductID: k.productID, Location: loc, Qty: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (m *Memory) StockCard(_ context.Context, filter inventory.StockCardFilter) ([]inventory.Entry, error) {
	out := []inventory.Entry{}
	for _, e := range m.Entries() {
		if e.ProductID == filter.ProductID && e.Location == filter.Location {
			out = append(out, e)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) Drift(_ context.Context, kind inventory.LocationKind) ([]inventory.Drift, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sums := make(map[key]int64)
	for _, e := range m.entries {
		sums[key{e.ProductID, e.Location}] += e.Qty
	}
	seen := make(map[key]bool)
	out := []inventory.Drift{}
	check := func(k key) {
		if seen[k] || k.loc.Kind() != kind {
			return
		}
		seen[k] = true
		if m.balances[k] != sums[k] {
			out = append(out, inventory.Drift{ProductID: k.productID, Location: k.loc, BalanceQty: m.balances[k], LedgerQty: sums[k]})
		}
	}
	for k := range m.balances {
		check(k)
	}
	for k := range sums {
		check(k)
	}
	return out, nil
}
