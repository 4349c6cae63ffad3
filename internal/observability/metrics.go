package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingest and retention paths.
type Metrics struct {
	UplinksReceived      prometheus.Counter
	ReadingsStored       prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
	StoreErrors          prometheus.Counter
	IngestDuration       prometheus.Histogram

	// ValidationWarnings is labelled by check: structure or range.
	ValidationWarnings *prometheus.CounterVec

	// Retention sweep metrics.
	ReadingsReaped prometheus.Counter
	ReaperRunning  prometheus.Gauge

	// Mirror publishing metrics (zero when the mirror is disabled).
	MirrorPublished prometheus.Counter
	MirrorErrors    prometheus.Counter
	MirrorEnabled   prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		UplinksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lorawan_ingest",
			Name:      "uplinks_received_total",
			Help:      "Total webhook deliveries received.",
		}),
		ReadingsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lorawan_ingest",
			Name:      "readings_stored_total",
			Help:      "Total sensor readings persisted.",
		}),
		DuplicatesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lorawan_ingest",
			Name:      "duplicates_suppressed_total",
			Help:      "Total deliveries recognized as retransmissions and skipped.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lorawan_ingest",
			Name:      "store_errors_total",
			Help:      "Total persistence failures surfaced to webhook callers.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lorawan_ingest",
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a complete normalize-validate-store cycle.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ValidationWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lorawan_ingest",
			Name:      "validation_warnings_total",
			Help:      "Non-fatal validation findings by check.",
		}, []string{"check"}),
		ReadingsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lorawan_ingest",
			Name:      "readings_reaped_total",
			Help:      "Total readings deleted by the retention sweep.",
		}),
		ReaperRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lorawan_ingest",
			Name:      "reaper_running",
			Help:      "1 while the retention reaper loop is active.",
		}),
		MirrorPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lorawan_ingest",
			Name:      "mirror_published_total",
			Help:      "Readings mirrored to the Kafka topic.",
		}),
		MirrorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lorawan_ingest",
			Name:      "mirror_errors_total",
			Help:      "Mirror publish failures (best-effort, never fail ingest).",
		}),
		MirrorEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lorawan_ingest",
			Name:      "mirror_enabled",
			Help:      "1 when Kafka mirroring is configured, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.UplinksReceived,
		m.ReadingsStored,
		m.DuplicatesSuppressed,
		m.StoreErrors,
		m.IngestDuration,
		m.ValidationWarnings,
		m.ReadingsReaped,
		m.ReaperRunning,
		m.MirrorPublished,
		m.MirrorErrors,
		m.MirrorEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		UplinksReceived:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "lorawan_ingest", Name: "uplinks_received_total"}),
		ReadingsStored:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "lorawan_ingest", Name: "readings_stored_total"}),
		DuplicatesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "lorawan_ingest", Name: "duplicates_suppressed_total"}),
		StoreErrors:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "lorawan_ingest", Name: "store_errors_total"}),
		IngestDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "lorawan_ingest", Name: "ingest_duration_seconds"}),
		ValidationWarnings:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "lorawan_ingest", Name: "validation_warnings_total"}, []string{"check"}),
		ReadingsReaped:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "lorawan_ingest", Name: "readings_reaped_total"}),
		ReaperRunning:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "lorawan_ingest", Name: "reaper_running"}),
		MirrorPublished:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "lorawan_ingest", Name: "mirror_published_total"}),
		MirrorErrors:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "lorawan_ingest", Name: "mirror_errors_total"}),
		MirrorEnabled:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "lorawan_ingest", Name: "mirror_enabled"}),
	}
}
