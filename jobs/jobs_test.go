package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/inventory/inventorytest"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

type recordingGauge struct {
	mu     sync.Mutex
	values map[string]int
}

func (g *recordingGauge) SetDrift(kind string, pairs int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.values == nil {
		g.values = make(map[string]int)
	}
	g.values[kind] = pairs
}

func newLocker(t *testing.T) *redislock.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redislock.New(client)
}

func driftingStore(t *testing.T) *inventorytest.Memory {
	t.Helper()
	store := inventorytest.New()
	store.Seed(1, inventory.Branch(1), 10)
	store.Seed(2, inventory.Partner(5), 4)
	// balance moved without a ledger row
	_, err := store.ApplyDelta(context.Background(), 1, inventory.Branch(1), -3)
	require.NoError(t, err)
	return store
}

func TestReconcileReportsDriftPerKind(t *testing.T) {
	gauge := &recordingGauge{}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewReconcileJob(driftingStore(t), newLocker(t), gauge, nil, metrics)

	results, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, inventory.LocationBranch, results[0].Kind)
	require.Len(t, results[0].Drifts, 1)
	d := results[0].Drifts[0]
	require.Equal(t, int64(1), d.ProductID)
	require.Equal(t, int64(7), d.BalanceQty)
	require.Equal(t, int64(10), d.LedgerQty)

	require.Equal(t, inventory.LocationPartner, results[1].Kind)
	require.Empty(t, results[1].Drifts)

	require.Equal(t, map[string]int{"BRANCH": 1, "PARTNER": 0}, gauge.values)
}

func TestReconcileSkipsKindLockedElsewhere(t *testing.T) {
	locker := newLocker(t)
	ctx := context.Background()
	held, err := locker.Obtain(ctx, shared.ReconcileLockKey("BRANCH"), time.Minute, nil)
	require.NoError(t, err)
	defer func() { _ = held.Release(ctx) }()

	gauge := &recordingGauge{}
	job := NewReconcileJob(driftingStore(t), locker, gauge, nil, nil)

	results, err := job.Run(ctx, inventory.LocationBranch, inventory.LocationPartner)
	require.NoError(t, err)
	require.True(t, results[0].Skipped)
	require.False(t, results[1].Skipped)
	_, touched := gauge.values["BRANCH"]
	require.False(t, touched)

	// lock released after the run, so the partner key is free again
	lock, err := locker.Obtain(ctx, shared.ReconcileLockKey("PARTNER"), time.Minute, nil)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
}

type failingDrift struct{}

func (failingDrift) Drift(context.Context, inventory.LocationKind) ([]inventory.Drift, error) {
	return nil, errors.New("db down")
}

func TestReconcilePropagatesReaderError(t *testing.T) {
	job := NewReconcileJob(failingDrift{}, nil, nil, nil, nil)
	_, err := job.Run(context.Background(), inventory.LocationBranch)
	require.ErrorContains(t, err, "db down")
}

func TestReconcileHandleRejectsUnknownKind(t *testing.T) {
	job := NewReconcileJob(inventorytest.New(), nil, nil, nil, nil)
	body, err := json.Marshal(ReconcilePayload{Kinds: []string{"WAREHOUSE"}})
	require.NoError(t, err)

	err = job.Handle(context.Background(), asynq.NewTask(TaskLedgerReconcile, body))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReconcileHandleDefaultsToAllKinds(t *testing.T) {
	gauge := &recordingGauge{}
	job := NewReconcileJob(inventorytest.New(), nil, gauge, nil, nil)
	task, err := NewReconcileTask()
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, gauge.values, 2)
}

type fakePruner struct {
	retention time.Duration
	pruned    int64
	err       error
}

func (f *fakePruner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return f.pruned, f.err
}

func TestCleanupUsesConfiguredRetention(t *testing.T) {
	store := &fakePruner{pruned: 12}
	job := NewCleanupJob(store, 168*time.Hour, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 168*time.Hour, store.retention)
}

func TestCleanupPayloadOverridesRetention(t *testing.T) {
	store := &fakePruner{}
	job := NewCleanupJob(store, 168*time.Hour, nil, nil)
	task, err := NewCleanupTask(24 * time.Hour)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, store.retention)
}

func TestCleanupReturnsStoreError(t *testing.T) {
	store := &fakePruner{err: errors.New("timeout")}
	job := NewCleanupJob(store, time.Hour, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil))
	require.ErrorContains(t, err, "timeout")
}
