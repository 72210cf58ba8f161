package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics tracks document repository operations per collection.
type StoreMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docstore_operations_total",
			Help: "Document repository operations by collection, operation and outcome",
		}, []string{"collection", "operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docstore_operation_duration_seconds",
			Help:    "Document repository operation duration in seconds",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"collection", "operation"}),
	}
}

func (m *StoreMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.total, m.duration}
}

// Observe records one finished operation. A nil receiver is a no-op so
// repositories can run without a registry.
func (m *StoreMetrics) Observe(collection, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.total.WithLabelValues(collection, operation, outcome).Inc()
	m.duration.WithLabelValues(collection, operation).Observe(d.Seconds())
}
