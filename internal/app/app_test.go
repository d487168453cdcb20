package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/inventory/inventorytest"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DOCNUMBER_BACKEND", "postgres")
	require.NoError(t, os.Unsetenv("DOCNUMBER_BACKEND"))
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, DocNumberPostgres, cfg.DocNumberBackend)
	require.False(t, cfg.AllowNegativeStock)
	require.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	require.Equal(t, 3, cfg.TxMaxRetries)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
	require.Equal(t, 168*time.Hour, cfg.IdempotencyRetention)
	require.Equal(t, "@every 1h", cfg.ReconcileCron)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DOCNUMBER_BACKEND", "redis")
	t.Setenv("ALLOW_NEGATIVE_STOCK", "true")
	t.Setenv("TX_MAX_RETRIES", "5")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, DocNumberRedis, cfg.DocNumberBackend)
	require.True(t, cfg.AllowNegativeStock)
	require.Equal(t, 5, cfg.TxMaxRetries)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("DOCNUMBER_BACKEND", "sequence")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "DOCNUMBER_BACKEND")
}

func newTestRouter(checks map[string]HealthCheck) (http.Handler, *inventorytest.Memory) {
	store := inventorytest.New()
	return NewRouter(RouterParams{
		Config:           &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		Metrics:          observability.NewMetrics(),
		Checks:           checks,
		InventoryHandler: inventory.NewHandler(nil, inventory.NewService(store)),
	}), store
}

func TestRouterHealthz(t *testing.T) {
	router, _ := newTestRouter(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok","postgres":"up"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestRouterHealthzDegraded(t *testing.T) {
	router, _ := newTestRouter(map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"status":"degraded","redis":"down"}`, rr.Body.String())
}

func TestRouterMountsStockAndMetrics(t *testing.T) {
	router, store := newTestRouter(nil)
	store.Seed(3, inventory.Branch(1), 8)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stock/balances?kind=BRANCH&location_id=1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"product_id":3`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `route="/stock/balances"`)
}

func TestActorMiddleware(t *testing.T) {
	var seen int64
	handler := ActorMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/transfers/1/send", nil)
	req.Header.Set(ActorHeader, "42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int64(42), seen)

	req = httptest.NewRequest(http.MethodPost, "/transfers/1/send", nil)
	req.Header.Set(ActorHeader, "abc")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
