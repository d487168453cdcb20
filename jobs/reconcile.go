package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// DriftReader lists pairs whose balance row disagrees with the ledger.
type DriftReader interface {
	Drift(ctx context.Context, kind inventory.LocationKind) ([]inventory.Drift, error)
}

// DriftGauge publishes the drift count of the last run.
type DriftGauge interface {
	SetDrift(kind string, pairs int)
}

// Locker obtains a distributed lock, normally a *redislock.Client.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// ReconcileResult summarises one kind of a reconciliation run.
type ReconcileResult struct {
	Kind    inventory.LocationKind
	Drifts  []inventory.Drift
	Skipped bool
}

// ReconcileJob checks every location kind for balance/ledger drift.
type ReconcileJob struct {
	Drifts  DriftReader
	Locker  Locker
	Gauge   DriftGauge
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
}

// NewReconcileJob initialises the reconcile handler. locker and gauge may be nil.
func NewReconcileJob(drifts DriftReader, locker Locker, gauge DriftGauge, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{
		Drifts:  drifts,
		Locker:  locker,
		Gauge:   gauge,
		Logger:  logger,
		Metrics: metrics,
		LockTTL: 5 * time.Minute,
	}
}

// Handle executes the reconcile task.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	kinds := make([]inventory.LocationKind, 0, len(payload.Kinds))
	for _, k := range payload.Kinds {
		kind := inventory.LocationKind(k)
		if !kind.Valid() {
			return fmt.Errorf("reconcile: unknown location kind %q: %w", k, asynq.SkipRetry)
		}
		kinds = append(kinds, kind)
	}
	_, err := j.Run(ctx, kinds...)
	return err
}

// Run reconciles the given kinds concurrently, all kinds when none are given.
func (j *ReconcileJob) Run(ctx context.Context, kinds ...inventory.LocationKind) (results []ReconcileResult, err error) {
	if j.Drifts == nil {
		return nil, errors.New("reconcile: drift reader not configured")
	}
	if len(kinds) == 0 {
		kinds = []inventory.LocationKind{inventory.LocationBranch, inventory.LocationPartner}
	}
	tracker := j.Metrics.Track(TaskLedgerReconcile)
	defer func() {
		err = tracker.End(err)
	}()

	start := time.Now()
	results = make([]ReconcileResult, len(kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			res, err := j.reconcileKind(gctx, kind)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", kind, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		j.logger().Error("reconcile failed", slog.Any("error", err))
		return nil, err
	}

	total := 0
	for _, res := range results {
		total += len(res.Drifts)
	}
	j.logger().Info("reconcile completed",
		slog.Int("kinds", len(kinds)),
		slog.Int("drifts", total),
		slog.Duration("duration", time.Since(start)),
	)
	return results, nil
}

func (j *ReconcileJob) reconcileKind(ctx context.Context, kind inventory.LocationKind) (ReconcileResult, error) {
	res := ReconcileResult{Kind: kind}
	logger := j.logger().With(slog.String("location_kind", string(kind)))
	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, shared.ReconcileLockKey(string(kind)), j.lockTTL(), nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			logger.Info("reconcile already running elsewhere, skipping")
			j.Metrics.Skip(TaskLedgerReconcile)
			res.Skipped = true
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("obtain lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logger.Warn("release reconcile lock", slog.Any("error", err))
			}
		}()
	}

	drifts, err := j.Drifts.Drift(ctx, kind)
	if err != nil {
		return res, err
	}
	for _, d := range drifts {
		logger.Warn("balance drift detected",
			slog.Int64("product_id", d.ProductID),
			slog.Int64("location_id", d.Location.ID()),
			slog.Int64("balance_qty", d.BalanceQty),
			slog.Int64("ledger_qty", d.LedgerQty),
		)
	}
	if j.Gauge != nil {
		j.Gauge.SetDrift(string(kind), len(drifts))
	}
	res.Drifts = drifts
	return res, nil
}

func (j *ReconcileJob) lockTTL() time.Duration {
	if j.LockTTL <= 0 {
		return 5 * time.Minute
	}
	return j.LockTTL
}

func (j *ReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerReconcile))
	}
	return slog.Default().With(slog.String("job", TaskLedgerReconcile))
}
