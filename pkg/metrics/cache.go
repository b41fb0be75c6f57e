package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/modaq/uploader/pkg/cache"
)

// cacheMetrics is the Prometheus implementation of cache.Metrics.
type cacheMetrics struct {
	lookups           *prometheus.CounterVec
	reconcileRuns     *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	reconcileObjects  prometheus.Gauge
	reconcileRemoved  prometheus.Counter
}

// NewCacheMetrics creates a Prometheus-backed cache.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics() cache.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &cacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modaq_cache_lookups_total",
				Help: "Total dedup cache lookups by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		reconcileRuns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "modaq_cache_reconcile_runs_total",
				Help: "Total cache reconciliation runs by status",
			},
			[]string{"status"},
		),
		reconcileDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "modaq_cache_reconcile_duration_seconds",
				Help: "Duration of cache reconciliation runs",
				Buckets: []float64{
					0.1,
					0.5,
					1,
					5,
					30,  // large listings
					120, // full-bucket reconciles
				},
			},
		),
		reconcileObjects: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "modaq_cache_reconcile_objects",
				Help: "Objects seen in the store during the last reconciliation",
			},
		),
		reconcileRemoved: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "modaq_cache_reconcile_removed_total",
				Help: "Total cache entries tombstoned by reconciliation",
			},
		),
	}
}

func (m *cacheMetrics) RecordLookup(kind, outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(kind, outcome).Inc()
}

func (m *cacheMetrics) ObserveReconcile(duration time.Duration, filesInS3, filesRemoved int64, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.reconcileRuns.WithLabelValues(status).Inc()
	m.reconcileDuration.Observe(duration.Seconds())
	if err == nil {
		m.reconcileObjects.Set(float64(filesInS3))
		m.reconcileRemoved.Add(float64(filesRemoved))
	}
}
