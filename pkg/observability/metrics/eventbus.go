package metrics

import "github.com/prometheus/client_golang/prometheus"

// EventBusMetrics counts published notifications per routing key.
type EventBusMetrics struct {
	published *prometheus.CounterVec
}

func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventbus_messages_published_total",
			Help: "Messages handed to the broker by routing key and outcome",
		}, []string{"routing_key", "outcome"}),
	}
}

func (m *EventBusMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.published}
}

// ObservePublish is nil-safe.
func (m *EventBusMetrics) ObservePublish(routingKey string, n int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.published.WithLabelValues(routingKey, outcome).Add(float64(n))
}
