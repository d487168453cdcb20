package inventory_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/inventory/inventorytest"
)

func newTestRouter(mem *inventorytest.Memory) http.Handler {
	h := inventory.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), inventory.NewService(mem))
	r := chi.NewRouter()
	r.Route("/stock", h.MountRoutes)
	return r
}

func TestHandlerBalances(t *testing.T) {
	mem := inventorytest.New()
	mem.Seed(1, inventory.Partner(3), 6)
	router := newTestRouter(mem)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock/balances?kind=PARTNER&location_id=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Balances []inventory.Balance `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Balances, 1)
	require.Equal(t, int64(6), body.Balances[0].Qty)
	require.Equal(t, inventory.Partner(3), body.Balances[0].Location)
}

func TestHandlerRejectsUnknownKind(t *testing.T) {
	router := newTestRouter(inventorytest.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock/balances?kind=SHELF&location_id=3", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerStockCard(t *testing.T) {
	mem := inventorytest.New()
	mem.Seed(2, inventory.Branch(1), 4)
	router := newTestRouter(mem)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock/card?kind=BRANCH&location_id=1&product_id=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Balance int64             `json:"balance"`
		Entries []inventory.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(4), body.Balance)
	require.Len(t, body.Entries, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock/card?kind=BRANCH&location_id=1&product_id=2&from=yesterday", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
