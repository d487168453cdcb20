package inventory_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/inventory/inventorytest"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type countingObserver struct {
	byType map[string]int64
}

func (o *countingObserver) ObserveMovement(movementType string, qty int64) {
	if o.byType == nil {
		o.byType = map[string]int64{}
	}
	o.byType[movementType] += qty
}

func receiveEntry(productID int64, loc inventory.Location, qty int64) inventory.Entry {
	return inventory.Entry{
		ProductID: productID,
		Location:  loc,
		Qty:       qty,
		Type:      inventory.MovementPurchaseReceive,
		RefKind:   inventory.DocumentPurchase,
		RefID:     1,
		UnitCost:  decimal.NewFromInt(1500),
	}
}

func TestPostKeepsLedgerAndBalanceInStep(t *testing.T) {
	ctx := context.Background()
	mem := inventorytest.New()
	poster := inventory.NewPoster(inventory.PosterConfig{}, nil, nil, nil)
	branch := inventory.Branch(1)

	posting, err := poster.Post(ctx, mem, []inventory.Entry{receiveEntry(7, branch, 10), receiveEntry(8, branch, 4)})
	require.NoError(t, err)
	require.Len(t, posting.Entries, 2)
	require.False(t, posting.Entries[0].PostedAt.IsZero())

	_, err = poster.Post(ctx, mem, []inventory.Entry{{
		ProductID: 7, Location: branch, Qty: -3,
		Type: inventory.MovementTransferOut, RefKind: inventory.DocumentTransfer, RefID: 9,
	}})
	require.NoError(t, err)

	require.Equal(t, int64(7), mem.Qty(7, branch))
	require.Equal(t, int64(4), mem.Qty(8, branch))
	require.NoError(t, mem.Consistent())
}

func TestPostRejectsWrongSign(t *testing.T) {
	mem := inventorytest.New()
	poster := inventory.NewPoster(inventory.PosterConfig{}, nil, nil, nil)

	_, err := poster.Post(context.Background(), mem, []inventory.Entry{receiveEntry(7, inventory.Branch(1), -2)})
	require.ErrorIs(t, err, inventory.ErrInvalidEntry)
	require.Empty(t, mem.Entries())
}

func TestPostRejectsZeroLocation(t *testing.T) {
	mem := inventorytest.New()
	poster := inventory.NewPoster(inventory.PosterConfig{}, nil, nil, nil)

	_, err := poster.Post(context.Background(), mem, []inventory.Entry{receiveEntry(7, inventory.Location{}, 2)})
	require.ErrorIs(t, err, inventory.ErrInvalidEntry)
}

func TestNegativeStockGuard(t *testing.T) {
	mem := inventorytest.New()
	poster := inventory.NewPoster(inventory.PosterConfig{}, nil, nil, nil)
	branch := inventory.Branch(2)
	mem.Seed(5, branch, 1)

	_, err := poster.Post(context.Background(), mem, []inventory.Entry{{
		ProductID: 5, Location: branch, Qty: -3,
		Type: inventory.MovementTransferOut, RefKind: inventory.DocumentTransfer, RefID: 1,
	}})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	var insufficient *inventory.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	require.Equal(t, int64(1), insufficient.Available)
	require.Equal(t, int64(3), insufficient.Requested)
}

func TestNegativeStockAllowedIsAuditedInTransaction(t *testing.T) {
	ctx := shared.ContextWithActor(context.Background(), 8)
	mem := inventorytest.New()
	audit := &recordingAudit{}
	observer := &countingObserver{}
	poster := inventory.NewPoster(inventory.PosterConfig{AllowNegativeStock: true}, audit, observer, nil)
	branch := inventory.Branch(2)

	posting, err := poster.Post(ctx, mem, []inventory.Entry{{
		ProductID: 5, Location: branch, Qty: -2,
		Type: inventory.MovementTransferOut, RefKind: inventory.DocumentTransfer, RefID: 1,
	}})
	require.NoError(t, err)
	require.Len(t, posting.Negatives, 1)
	audits := mem.Audits()
	require.Len(t, audits, 1)
	require.Equal(t, "inventory:negative_balance", audits[0].Action)
	require.Equal(t, int64(8), audits[0].ActorID)
	require.Equal(t, int64(-2), audits[0].Meta["qty"])

	poster.Committed(ctx, posting)
	require.Empty(t, audit.logs)
	require.Equal(t, int64(-2), observer.byType[string(inventory.MovementTransferOut)])
	require.NoError(t, mem.Consistent())
}

func TestNegativeStockAuditedAfterCommitWithoutAuditWriter(t *testing.T) {
	ctx := context.Background()
	mem := inventorytest.New()
	audit := &recordingAudit{}
	poster := inventory.NewPoster(inventory.PosterConfig{AllowNegativeStock: true}, audit, nil, nil)
	w := struct{ inventory.Writer }{mem}

	posting, err := poster.Post(ctx, w, []inventory.Entry{{
		ProductID: 5, Location: inventory.Branch(2), Qty: -2,
		Type: inventory.MovementTransferOut, RefKind: inventory.DocumentTransfer, RefID: 1,
	}})
	require.NoError(t, err)
	require.Empty(t, mem.Audits())
	require.Empty(t, audit.logs)

	poster.Committed(ctx, posting)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "inventory:negative_balance", audit.logs[0].Action)
}

func TestResetUsesSetAbsolute(t *testing.T) {
	ctx := context.Background()
	mem := inventorytest.New()
	poster := inventory.NewPoster(inventory.PosterConfig{}, nil, nil, nil)
	branch := inventory.Branch(1)
	mem.Seed(3, branch, 10)

	posting, err := poster.Reset(ctx, mem, inventory.Entry{
		ProductID: 3, Location: branch, RefKind: inventory.DocumentStockCount, RefID: 4,
	}, 7)
	require.NoError(t, err)
	require.Len(t, posting.Entries, 1)
	require.NotZero(t, posting.Entries[0].ID)
	require.Equal(t, int64(-3), posting.Entries[0].Qty)
	require.Equal(t, inventory.MovementCountAdjustOut, posting.Entries[0].Type)
	require.Equal(t, int64(7), mem.Qty(3, branch))
	require.Equal(t, 1, mem.SetAbsoluteCalls)
	require.Equal(t, 0, mem.ApplyDeltaCalls)
	require.NoError(t, mem.Consistent())
}

func TestResetDiffsAgainstCurrentBalance(t *testing.T) {
	ctx := context.Background()
	mem := inventorytest.New()
	poster := inventory.NewPoster(inventory.PosterConfig{}, nil, nil, nil)
	branch := inventory.Branch(1)
	mem.Seed(3, branch, 4)

	posting, err := poster.Reset(ctx, mem, inventory.Entry{
		ProductID: 3, Location: branch, RefKind: inventory.DocumentStockCount, RefID: 4,
	}, 9)
	require.NoError(t, err)
	require.Equal(t, int64(5), posting.Entries[0].Qty)
	require.Equal(t, inventory.MovementCountAdjustIn, posting.Entries[0].Type)
	require.NoError(t, mem.Consistent())

	posting, err = poster.Reset(ctx, mem, inventory.Entry{
		ProductID: 3, Location: branch, RefKind: inventory.DocumentStockCount, RefID: 4,
	}, 9)
	require.NoError(t, err)
	require.Empty(t, posting.Entries)
	require.Equal(t, 1, mem.SetAbsoluteCalls)

	_, err = poster.Reset(ctx, mem, inventory.Entry{
		ProductID: 3, Location: branch, RefKind: inventory.DocumentStockCount, RefID: 4,
	}, -1)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestExactlyOneLocation(t *testing.T) {
	_, err := inventory.ExactlyOne(1, 2)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = inventory.ExactlyOne(0, 0)
	require.ErrorIs(t, err, shared.ErrValidation)

	loc, err := inventory.ExactlyOne(0, 9)
	require.NoError(t, err)
	require.True(t, loc.IsPartner())
	require.Equal(t, int64(9), loc.PartnerID())
	require.Zero(t, loc.BranchID())
}

func TestLocationJSON(t *testing.T) {
	raw, err := json.Marshal(inventory.Branch(4))
	require.NoError(t, err)
	require.JSONEq(t, `{"kind":"BRANCH","id":4}`, string(raw))

	var loc inventory.Location
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"PARTNER","id":2}`), &loc))
	require.Equal(t, inventory.Partner(2), loc)
	require.Error(t, json.Unmarshal([]byte(`{"kind":"WAREHOUSE","id":2}`), &loc))
}

func TestServiceDriftAndBalances(t *testing.T) {
	ctx := context.Background()
	mem := inventorytest.New()
	svc := inventory.NewService(mem)
	branch := inventory.Branch(1)
	mem.Seed(1, branch, 5)
	require.NoError(t, mem.SetAbsolute(ctx, 2, branch, 3))

	drift, err := svc.Drift(ctx, inventory.LocationBranch)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	require.Equal(t, int64(2), drift[0].ProductID)
	require.Equal(t, int64(3), drift[0].BalanceQty)
	require.Zero(t, drift[0].LedgerQty)

	balances, err := svc.Balances(ctx, branch)
	require.NoError(t, err)
	require.Len(t, balances, 2)

	_, err = svc.Balance(ctx, 0, branch)
	require.ErrorIs(t, err, shared.ErrValidation)
}
