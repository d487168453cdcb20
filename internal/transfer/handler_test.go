package transfer

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

func TestHandlerSendAndReceive(t *testing.T) {
	f := newFixture(t, inventory.PosterConfig{})
	f.repo.stock.Seed(5, inventory.Branch(1), 10)
	r := chi.NewRouter()
	r.Route("/transfers", NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transfers/",
		strings.NewReader(`{"from_branch_id":1,"to_branch_id":2,"lines":[{"product_id":5,"qty":4}]}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Transfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, StatusDraft, created.Status)
	require.Equal(t, inventory.Branch(2), created.Destination)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/transfers/%d/receive", created.ID), nil))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/transfers/%d/send", created.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sent Transfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sent))
	require.Equal(t, StatusSent, sent.Status)
	require.Equal(t, int64(6), f.repo.stock.Qty(5, inventory.Branch(1)))
	require.Zero(t, f.repo.stock.Qty(5, inventory.Branch(2)))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/transfers/%d/receive", created.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var received Transfer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &received))
	require.Equal(t, StatusReceived, received.Status)
	require.Equal(t, int64(4), f.repo.stock.Qty(5, inventory.Branch(2)))
	require.NoError(t, f.repo.stock.Consistent())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/transfers/999/send", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
