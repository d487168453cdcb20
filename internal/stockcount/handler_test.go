package stockcount

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

func TestHandlerCountAndFinalize(t *testing.T) {
	f := newFixture(t)
	f.repo.stock.Seed(2, inventory.Branch(1), 10)
	r := chi.NewRouter()
	r.Route("/stock-counts", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stock-counts/system-qty?scope=BRANCH&location_id=1&product_id=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"scope":"BRANCH","location_id":1,"product_id":2,"system_qty":10}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-counts/", strings.NewReader(`{"scope":"BRANCH","location_id":1}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, StatusOpen, created.Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, fmt.Sprintf("/stock-counts/%d/lines", created.ID),
		strings.NewReader(`{"lines":[{"product_id":999,"system_qty":0,"counted_qty":1}]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, fmt.Sprintf("/stock-counts/%d/lines", created.ID),
		strings.NewReader(`{"lines":[{"product_id":2,"system_qty":10,"counted_qty":7}]}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/stock-counts/%d/finalize", created.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var res FinalizeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, StatusClosed, res.Session.Status)
	require.Len(t, res.Adjustments, 1)
	require.Equal(t, int64(-3), res.Adjustments[0].Delta)
	require.Equal(t, inventory.MovementCountAdjustOut, res.Adjustments[0].MovementType)
	require.Equal(t, int64(7), f.repo.stock.Qty(2, inventory.Branch(1)))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/stock-counts/%d/finalize", created.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Empty(t, res.Adjustments)
	require.Len(t, f.repo.stock.EntriesFor(inventory.DocumentStockCount, created.ID), 1)
}
