package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/purchases/{id}")

	req := httptest.NewRequest(http.MethodGet, "/purchases/7", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	require.Contains(t, body, `stockledger_http_requests_total{code="418",route="/purchases/{id}"} 1`)
	require.Contains(t, body, `stockledger_http_request_duration_seconds_bucket{route="/purchases/{id}"`)
}

func TestObserveMovementSplitsDirection(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveMovement("TRANSFER_OUT", -4)
	metrics.ObserveMovement("TRANSFER_IN", 4)
	metrics.ObserveMovement("TRANSFER_IN", 6)

	body := scrape(t, metrics)
	require.Contains(t, body, `stockledger_movements_total{movement_type="TRANSFER_IN"} 2`)
	require.Contains(t, body, `stockledger_movements_total{movement_type="TRANSFER_OUT"} 1`)
	require.Contains(t, body, `stockledger_movement_units_total{direction="in",movement_type="TRANSFER_IN"} 10`)
	require.Contains(t, body, `stockledger_movement_units_total{direction="out",movement_type="TRANSFER_OUT"} 4`)
}

func TestSetDriftOverwritesGauge(t *testing.T) {
	metrics := NewMetrics()
	metrics.SetDrift("BRANCH", 3)
	metrics.SetDrift("BRANCH", 0)
	metrics.SetDrift("PARTNER", 2)

	body := scrape(t, metrics)
	require.Contains(t, body, `stockledger_balance_drift_pairs{location_kind="BRANCH"} 0`)
	require.Contains(t, body, `stockledger_balance_drift_pairs{location_kind="PARTNER"} 2`)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveMovement("PURCHASE_RECEIVE", 1)
	metrics.SetDrift("BRANCH", 1)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	require.NotNil(t, metrics.Middleware(next))
}
