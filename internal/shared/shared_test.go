package shared

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type captureExec struct {
	sql  string
	args []any
}

func (c *captureExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.sql, c.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestTransitionLogCarriesActor(t *testing.T) {
	ctx := ContextWithActor(context.Background(), 42)
	log := TransitionLog(ctx, "transfer", 7, "DRAFT", "SENT", map[string]any{"code": "TRF-202401-000001"})
	require.Equal(t, int64(42), log.ActorID)
	require.Equal(t, "transfer:SENT", log.Action)
	require.Equal(t, "7", log.EntityID)
	require.Equal(t, "DRAFT", log.Meta["from"])
	require.Equal(t, "TRF-202401-000001", log.Meta["code"])
}

func TestActorDefaultsToSystem(t *testing.T) {
	require.Zero(t, ActorFromContext(context.Background()))
}

func TestRequestKeyIsStable(t *testing.T) {
	a := RequestKey("procurement.receive", 1, "abc")
	require.Equal(t, a, RequestKey("procurement.receive", 1, "abc"))
	require.NotEqual(t, a, RequestKey("procurement.receive", 2, "abc"))
	require.NotEqual(t, a, RequestKey("procurement.receive", 1, "abd"))
}

func TestValidateStruct(t *testing.T) {
	type line struct {
		ProductID int64 `validate:"required,gt=0"`
		Qty       int64 `validate:"gt=0"`
	}
	type doc struct {
		BranchID int64  `validate:"required"`
		Lines    []line `validate:"required,min=1,dive"`
	}

	require.NoError(t, ValidateStruct(doc{BranchID: 1, Lines: []line{{ProductID: 1, Qty: 2}}}))

	err := ValidateStruct(doc{BranchID: 1, Lines: []line{{ProductID: 1, Qty: 0}}})
	require.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Lines[0].Qty", verr.Field)

	err = ValidateStruct(doc{BranchID: 1})
	require.ErrorIs(t, err, ErrValidation)
}

func TestInsertAuditUsesGivenExecer(t *testing.T) {
	ctx := context.Background()
	q := &captureExec{}
	err := InsertAudit(ctx, q, AuditLog{ActorID: 3, Action: "inventory:negative_balance", Entity: "stock_balances", EntityID: "5:BRANCH#2", Meta: map[string]any{"qty": -2}})
	require.NoError(t, err)
	require.Contains(t, q.sql, "INSERT INTO audit_logs")
	require.Equal(t, int64(3), q.args[0])
	require.Equal(t, "inventory:negative_balance", q.args[1])
	require.JSONEq(t, `{"qty":-2}`, string(q.args[4].([]byte)))

	require.Error(t, InsertAudit(ctx, &captureExec{}, AuditLog{Action: "x"}))
}
