// Package metrics provides Prometheus metrics for the query cache and sync runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheMetrics mirrors the cache's performance counters into Prometheus.
type CacheMetrics struct {
	HitsTotal          *prometheus.CounterVec   // Cache hits by result kind (list, detail, stat)
	MissesTotal        *prometheus.CounterVec   // Cache misses by result kind
	BackendErrorsTotal *prometheus.CounterVec   // Backend failures by operation (get, set, invalidate)
	InvalidationsTotal *prometheus.CounterVec   // Scope invalidations by scope
	LookupDuration     *prometheus.HistogramVec // Get latency by result kind
}

// NewCacheMetrics registers cache metrics with reg.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	f := promauto.With(reg)
	return &CacheMetrics{
		HitsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "danovyhlidac_cache_hits_total",
			Help: "Total number of query cache hits by result kind",
		}, []string{"kind"}),
		MissesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "danovyhlidac_cache_misses_total",
			Help: "Total number of query cache misses by result kind",
		}, []string{"kind"}),
		BackendErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "danovyhlidac_cache_backend_errors_total",
			Help: "Total number of cache backend failures swallowed by fail-open handling",
		}, []string{"op"}),
		InvalidationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "danovyhlidac_cache_invalidations_total",
			Help: "Total number of scope invalidations",
		}, []string{"scope"}),
		LookupDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "danovyhlidac_cache_lookup_duration_seconds",
			Help:    "Duration of cache lookups by result kind",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.25},
		}, []string{"kind"}),
	}
}

// RecordHit records a cache hit. All Record methods are no-ops on a nil receiver.
func (m *CacheMetrics) RecordHit(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.HitsTotal.WithLabelValues(kind).Inc()
	m.LookupDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordMiss records a cache miss.
func (m *CacheMetrics) RecordMiss(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.MissesTotal.WithLabelValues(kind).Inc()
	m.LookupDuration.WithLabelValues(kind).Observe(seconds)
}

// RecordBackendError records a swallowed backend failure.
func (m *CacheMetrics) RecordBackendError(op string) {
	if m == nil {
		return
	}
	m.BackendErrorsTotal.WithLabelValues(op).Inc()
}

// RecordInvalidation records a scope invalidation.
func (m *CacheMetrics) RecordInvalidation(scope string) {
	if m == nil {
		return
	}
	m.InvalidationsTotal.WithLabelValues(scope).Inc()
}

// SyncMetrics tracks sync runs.
type SyncMetrics struct {
	RunsTotal       *prometheus.CounterVec // Finished runs by final state (done, failed)
	RecordsTotal    *prometheus.CounterVec // Records by outcome (inserted, updated, duplicate, failed)
	RunDuration     prometheus.Histogram
	RunsRejected    prometheus.Counter // Triggers rejected because a run was in progress
	LastSuccessTime prometheus.Gauge
}

// NewSyncMetrics registers sync metrics with reg.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	f := promauto.With(reg)
	return &SyncMetrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "danovyhlidac_sync_runs_total",
			Help: "Total number of finished sync runs by final state",
		}, []string{"state"}),
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "danovyhlidac_sync_records_total",
			Help: "Total number of reconciled records by outcome",
		}, []string{"outcome"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "danovyhlidac_sync_run_duration_seconds",
			Help:    "Duration of sync runs",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		}),
		RunsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "danovyhlidac_sync_runs_rejected_total",
			Help: "Total number of sync triggers rejected while a run was in progress",
		}),
		LastSuccessTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "danovyhlidac_sync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync run",
		}),
	}
}

// HitRatio is hits / (hits + misses), or 0 when there were no lookups.
func HitRatio(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
