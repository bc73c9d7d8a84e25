// Package observability exposes Prometheus metrics for the storage and
// retrieval engine.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type engineMetrics struct {
	sweepDuration     prometheus.Histogram
	reconcileDuration prometheus.Histogram
	searchDuration    *prometheus.HistogramVec
	indexedDocuments  prometheus.Gauge
	embedFailures     prometheus.Counter
	prunedTotal       prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *engineMetrics
)

func getMetrics() *engineMetrics {
	metricsOnce.Do(func() {
		m := &engineMetrics{
			sweepDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "sweep_duration_seconds",
					Help:    "Full reconciliation sweep duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			reconcileDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "reconcile_duration_seconds",
					Help:    "Single-path reconciliation duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			searchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "search_duration_seconds",
					Help:    "Search duration in seconds by mode.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"mode"},
			),
			indexedDocuments: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "indexed_documents",
					Help: "Documents currently present in the relational index.",
				},
			),
			embedFailures: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "embedding_failures_total",
					Help: "Embedding or vector store failures deferred to a later sweep.",
				},
			),
			prunedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "pruned_documents_total",
					Help: "Index rows pruned because their file disappeared.",
				},
			),
		}

		prometheus.MustRegister(
			m.sweepDuration,
			m.reconcileDuration,
			m.searchDuration,
			m.indexedDocuments,
			m.embedFailures,
			m.prunedTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is
// called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns an HTTP handler serving the metrics endpoint.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordSweep(duration time.Duration) {
	getMetrics().sweepDuration.Observe(duration.Seconds())
}

func RecordReconcile(duration time.Duration) {
	getMetrics().reconcileDuration.Observe(duration.Seconds())
}

func RecordSearch(mode string, duration time.Duration) {
	getMetrics().searchDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func SetIndexedDocuments(count int) {
	getMetrics().indexedDocuments.Set(float64(count))
}

func RecordEmbedFailure() {
	getMetrics().embedFailures.Inc()
}

func RecordPruned(count int) {
	getMetrics().prunedTotal.Add(float64(count))
}
