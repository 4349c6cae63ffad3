// Package ingest orchestrates the write path: normalize, validate,
// fingerprint, store, and optionally mirror each webhook delivery.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/lorawan-telemetry-service/internal/domain"
	"github.com/couchcryptid/lorawan-telemetry-service/internal/observability"
)

// Store is the persistence surface the ingestor needs. Insert must treat a
// dedup-key collision as a benign no-op (created=false, nil error): the
// store's uniqueness constraint, not the advisory Exists check, is the final
// arbiter when two deliveries of the same frame race.
type Store interface {
	Insert(ctx context.Context, reading domain.SensorReading) (created bool, err error)
	Exists(ctx context.Context, uniqueID string) (bool, error)
	Ping(ctx context.Context) error
}

// Mirror publishes accepted readings to a downstream stream. Publishing is
// best-effort; failures never fail the webhook.
type Mirror interface {
	Publish(ctx context.Context, reading domain.SensorReading) error
}

// Result reports what happened to one delivery.
type Result struct {
	UniqueID string
	Created  bool // false means duplicate-suppressed
}

// Ingestor runs the normalize-validate-fingerprint-store sequence for each
// uplink. It holds no per-request state and is safe for concurrent use.
type Ingestor struct {
	store   Store
	mirror  Mirror // nil when mirroring is disabled
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Ingestor. Pass a nil mirror to disable mirroring.
func New(store Store, mirror Mirror, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	return &Ingestor{
		store:   store,
		mirror:  mirror,
		logger:  logger,
		metrics: metrics,
	}
}

// Ingest processes one parsed uplink event. Validation findings are logged
// and counted but never reject the delivery: the stored payload is the
// system of record, and an event with drifted schema or an implausible
// measurement is still evidence. Only a storage failure returns an error.
func (i *Ingestor) Ingest(ctx context.Context, event domain.UplinkEvent) (Result, error) {
	start := time.Now()
	i.metrics.UplinksReceived.Inc()

	for _, issue := range domain.CheckStructure(event) {
		i.metrics.ValidationWarnings.WithLabelValues(issue.Check).Inc()
		i.logger.Warn("structural validation failed, continuing with defaults",
			"field", issue.Field, "detail", issue.Detail)
	}

	reading := domain.NormalizeUplink(event)
	reading.UniqueID = domain.Fingerprint(event)

	for _, issue := range domain.CheckRanges(reading) {
		i.metrics.ValidationWarnings.WithLabelValues(issue.Check).Inc()
		i.logger.Warn("implausible measurement, persisting anyway",
			"device_id", reading.DeviceID, "field", issue.Field, "detail", issue.Detail)
	}

	// Advisory fast path. A concurrent duplicate can still slip past this
	// check; Insert absorbs that race via the uniqueness constraint.
	if exists, err := i.store.Exists(ctx, reading.UniqueID); err == nil && exists {
		i.metrics.DuplicatesSuppressed.Inc()
		i.logger.Info("duplicate uplink suppressed",
			"device_id", reading.DeviceID, "unique_id", reading.UniqueID, "f_cnt", reading.FCnt)
		return Result{UniqueID: reading.UniqueID}, nil
	}

	created, err := i.store.Insert(ctx, reading)
	if err != nil {
		i.metrics.StoreErrors.Inc()
		return Result{}, fmt.Errorf("store reading: %w", err)
	}

	if !created {
		i.metrics.DuplicatesSuppressed.Inc()
		i.logger.Info("duplicate uplink suppressed by uniqueness constraint",
			"device_id", reading.DeviceID, "unique_id", reading.UniqueID)
		return Result{UniqueID: reading.UniqueID}, nil
	}

	i.metrics.ReadingsStored.Inc()
	i.metrics.IngestDuration.Observe(time.Since(start).Seconds())
	i.logger.Debug("reading stored",
		"device_id", reading.DeviceID, "unique_id", reading.UniqueID, "f_cnt", reading.FCnt)

	i.publishMirror(ctx, reading)

	return Result{UniqueID: reading.UniqueID, Created: true}, nil
}

// CheckReadiness reports whether the store is reachable.
func (i *Ingestor) CheckReadiness(ctx context.Context) error {
	return i.store.Ping(ctx)
}

func (i *Ingestor) publishMirror(ctx context.Context, reading domain.SensorReading) {
	if i.mirror == nil {
		return
	}
	if err := i.mirror.Publish(ctx, reading); err != nil {
		i.metrics.MirrorErrors.Inc()
		i.logger.Warn("mirror publish failed",
			"device_id", reading.DeviceID, "unique_id", reading.UniqueID, "error", err)
		return
	}
	i.metrics.MirrorPublished.Inc()
}
