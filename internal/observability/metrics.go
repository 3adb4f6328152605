// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Journal decoding metrics
	EventsDecoded  *prometheus.CounterVec
	DecodeFailures prometheus.Counter
	LinesDropped   prometheus.Counter

	// Ingestion metrics
	BatchesApplied     prometheus.Counter
	SitesUpserted      prometheus.Counter
	ContributionsMade  prometheus.Counter
	IngestionErrors    *prometheus.CounterVec
	SystemsTouched     prometheus.Gauge
	LastIngestedAt     prometheus.Gauge

	// Storage metrics
	StoreQueryDuration *prometheus.HistogramVec
	StoreQueryErrors   *prometheus.CounterVec
	SchemaResets       prometheus.Counter

	// Reconciliation metrics
	ReconcileFetches       prometheus.Counter
	ReconcileFetchFailures prometheus.Counter
	ExternalSitesMerged    prometheus.Counter

	// Carrier metrics
	CarrierStatesBuilt prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "colonytrack"
	}

	return &Metrics{
		// Journal decoding metrics
		EventsDecoded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "events_decoded_total",
			Help:      "Total number of journal events decoded by kind",
		}, []string{"kind"}),
		DecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "decode_failures_total",
			Help:      "Total number of journal lines that failed to decode",
		}),
		LinesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "lines_dropped_total",
			Help:      "Total number of journal lines dropped as uninteresting",
		}),

		// Ingestion metrics
		BatchesApplied: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "batches_applied_total",
			Help:      "Total number of event batches applied",
		}),
		SitesUpserted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "sites_upserted_total",
			Help:      "Total number of construction site upserts",
		}),
		ContributionsMade: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "contributions_total",
			Help:      "Total number of commodity contributions applied",
		}),
		IngestionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "errors_total",
			Help:      "Total number of ingestion errors by event kind",
		}, []string{"kind"}),
		SystemsTouched: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "systems_touched",
			Help:      "Number of star systems touched by the last batch",
		}),
		LastIngestedAt: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "last_ingested_timestamp",
			Help:      "Unix timestamp of the last successfully applied batch",
		}),

		// Storage metrics
		StoreQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Site store query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		StoreQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_errors_total",
			Help:      "Total number of site store query errors",
		}, []string{"backend", "operation"}),
		SchemaResets: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "schema_resets_total",
			Help:      "Total number of schema-version mismatch resets",
		}),

		// Reconciliation metrics
		ReconcileFetches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "fetches_total",
			Help:      "Total number of external site fetches attempted",
		}),
		ReconcileFetchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "fetch_failures_total",
			Help:      "Total number of external site fetches that failed",
		}),
		ExternalSitesMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "external_sites_merged_total",
			Help:      "Total number of external-only sites merged into local state",
		}),

		// Carrier metrics
		CarrierStatesBuilt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "carrier",
			Name:      "states_built_total",
			Help:      "Total number of carrier state reconstructions",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventDecoded increments the decode counter for one event kind.
func RecordEventDecoded(kind string) {
	DefaultMetrics.EventsDecoded.WithLabelValues(kind).Inc()
}

// RecordDecodeFailure increments the decode failure counter.
func RecordDecodeFailure() {
	DefaultMetrics.DecodeFailures.Inc()
}

// RecordLineDropped increments the dropped-line counter.
func RecordLineDropped() {
	DefaultMetrics.LinesDropped.Inc()
}

// RecordBatchApplied records a successfully applied batch.
func RecordBatchApplied(systems int, unixTime float64) {
	DefaultMetrics.BatchesApplied.Inc()
	DefaultMetrics.SystemsTouched.Set(float64(systems))
	DefaultMetrics.LastIngestedAt.Set(unixTime)
}

// RecordIngestionError records an ingestion error for one event kind.
func RecordIngestionError(kind string) {
	DefaultMetrics.IngestionErrors.WithLabelValues(kind).Inc()
}

// RecordStoreQuery records site store query metrics.
func RecordStoreQuery(backend, operation string, seconds float64, err error) {
	DefaultMetrics.StoreQueryDuration.WithLabelValues(backend, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.StoreQueryErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordReconcileFetch records an external fetch attempt.
func RecordReconcileFetch(err error) {
	DefaultMetrics.ReconcileFetches.Inc()
	if err != nil {
		DefaultMetrics.ReconcileFetchFailures.Inc()
	}
}

// RecordCarrierStateBuilt increments the carrier reconstruction counter.
func RecordCarrierStateBuilt() {
	DefaultMetrics.CarrierStatesBuilt.Inc()
}
