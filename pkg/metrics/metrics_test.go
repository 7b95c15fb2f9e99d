package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHitRatio(t *testing.T) {
	assert.Equal(t, 0.0, HitRatio(0, 0))
	assert.Equal(t, 0.75, HitRatio(3, 1))
	assert.Equal(t, 1.0, HitRatio(5, 0))
}

func TestCacheMetrics_Record(t *testing.T) {
	m := NewCacheMetrics(prometheus.NewRegistry())

	m.RecordHit("list", 0.001)
	m.RecordHit("list", 0.001)
	m.RecordMiss("detail", 0.002)
	m.RecordBackendError("get")
	m.RecordInvalidation("contracts")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HitsTotal.WithLabelValues("list")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MissesTotal.WithLabelValues("detail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendErrorsTotal.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvalidationsTotal.WithLabelValues("contracts")))
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Each registry accepts its own set; the default registerer is only used by main.
	assert.NotPanics(t, func() {
		NewCacheMetrics(prometheus.NewRegistry())
		NewCacheMetrics(prometheus.NewRegistry())
		NewSyncMetrics(prometheus.NewRegistry())
		NewSyncMetrics(prometheus.NewRegistry())
	})
}

func TestCacheMetrics_NilReceiver(t *testing.T) {
	var m *CacheMetrics
	assert.NotPanics(t, func() {
		m.RecordHit("list", 0)
		m.RecordMiss("list", 0)
		m.RecordBackendError("set")
		m.RecordInvalidation("contracts")
	})
}
