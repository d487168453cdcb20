package consignment

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

func TestHandlerCreateAndConfirm(t *testing.T) {
	f := newFixture(t)
	f.repo.stock.Seed(5, inventory.Branch(1), 10)
	r := chi.NewRouter()
	r.Route("/consignment-deliveries", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/consignment-deliveries/",
		strings.NewReader(`{"mode":"SEND","from_branch_id":1,"to_partner_id":9,"lines":[{"product_id":5,"qty":3}]}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Delivery
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, StatusSent, created.Status)
	require.Equal(t, "3000", created.TotalAmount.String())

	body := fmt.Sprintf(`{"items":[{"line_id":%d,"qty_received":4}]}`, created.Lines[0].ID)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/consignment-deliveries/%d/confirm", created.ID), strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/consignment-deliveries/%d/confirm", created.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var confirmed Delivery
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	require.Equal(t, StatusReceived, confirmed.Status)
	require.NotNil(t, confirmed.Lines[0].QtyReceived)
	require.Equal(t, int64(3), *confirmed.Lines[0].QtyReceived)
	require.Equal(t, int64(7), f.repo.stock.Qty(5, inventory.Branch(1)))
	require.Equal(t, int64(3), f.repo.stock.Qty(5, inventory.Partner(9)))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/consignment-deliveries/%d/confirm", created.ID), nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, f.repo.stock.Consistent())
}
