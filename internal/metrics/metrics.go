// Package metrics collects the dataset workspace's Prometheus metrics: a
// package-level prometheus.MustRegister set plus a Handler()/Timer helper
// pair, covering chain/transform/sync concerns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DatasetsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "odf_datasets_total",
			Help: "Total number of datasets in the workspace catalog, by kind",
		},
		[]string{"kind"},
	)

	BlocksAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odf_blocks_appended_total",
			Help: "Total number of metadata blocks appended, by event kind",
		},
		[]string{"event"},
	)

	AppendFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odf_append_failures_total",
			Help: "Total number of rejected chain appends, by reason",
		},
		[]string{"reason"},
	)

	ChainAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "odf_chain_append_duration_seconds",
			Help:    "Time taken to validate and append one metadata block",
			Buckets: prometheus.DefBuckets,
		},
	)

	TransformDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "odf_transform_duration_seconds",
			Help:    "Time taken to plan, execute, and commit one transform round",
			Buckets: prometheus.DefBuckets,
		},
	)

	VerificationOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odf_verification_outcomes_total",
			Help: "Total number of verify_transform outcomes, by result",
		},
		[]string{"result"}, // "valid" | "not_reproducible"
	)

	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "odf_sync_duration_seconds",
			Help:    "Time taken for a sync operation, by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"}, // "up_to_date" | "ahead" | "diverged" | "error"
	)

	BytesTransferredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odf_bytes_transferred_total",
			Help: "Total bytes transferred during sync, by direction",
		},
		[]string{"direction"}, // "read" | "written"
	)

	EngineRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "odf_engine_request_duration_seconds",
			Help:    "Time taken for one ExecuteQuery round trip to the engine",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(DatasetsTotal)
	prometheus.MustRegister(BlocksAppendedTotal)
	prometheus.MustRegister(AppendFailuresTotal)
	prometheus.MustRegister(ChainAppendDuration)
	prometheus.MustRegister(TransformDuration)
	prometheus.MustRegister(VerificationOutcomesTotal)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(BytesTransferredTotal)
	prometheus.MustRegister(EngineRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration { return time.Since(t.start) }
