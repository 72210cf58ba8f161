package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks request duration, count and concurrency.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	inFlight prometheus.Gauge
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		}),
	}
}

func (m *HTTPMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.duration, m.total, m.inFlight}
}

// Observe records one finished request. path should be the route pattern.
func (m *HTTPMetrics) Observe(method, path string, status int, d time.Duration) {
	s := strconv.Itoa(status)
	m.duration.WithLabelValues(method, path, s).Observe(d.Seconds())
	m.total.WithLabelValues(method, path, s).Inc()
}

func (m *HTTPMetrics) IncInFlight() { m.inFlight.Inc() }
func (m *HTTPMetrics) DecInFlight() { m.inFlight.Dec() }
