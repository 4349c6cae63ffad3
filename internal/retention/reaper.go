// Package retention enforces the bounded storage horizon: readings older
// than the configured age are deleted by a periodic background sweep.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/lorawan-telemetry-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

// Pruner deletes readings created before the cutoff, returning how many went.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Reaper runs the retention sweep on a fixed interval. Each sweep is
// idempotent and has no ordering dependency on ingestion; a failed sweep is
// retried at the next tick.
type Reaper struct {
	store    Pruner
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
}

// New creates a Reaper with the real clock.
func New(store Pruner, maxAge, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Reaper {
	return NewWithClock(store, maxAge, interval, logger, metrics, clockwork.NewRealClock())
}

// NewWithClock creates a Reaper with an injected clock so tests can step time.
func NewWithClock(store Pruner, maxAge, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Reaper {
	return &Reaper{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
	}
}

// Run sweeps once immediately, then on every interval tick until the context
// is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("retention reaper started", "max_age", r.maxAge, "interval", r.interval)
	r.metrics.ReaperRunning.Set(1)
	defer r.metrics.ReaperRunning.Set(0)

	r.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("retention reaper stopping", "reason", ctx.Err())
			return
		case <-r.clock.After(r.interval):
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	cutoff := r.clock.Now().Add(-r.maxAge)

	deleted, err := r.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("retention sweep failed", "cutoff", cutoff, "error", err)
		return
	}

	r.metrics.ReadingsReaped.Add(float64(deleted))
	if deleted > 0 {
		r.logger.Info("retention sweep removed readings", "deleted", deleted, "cutoff", cutoff)
	}
}
