// Package metrics exposes Prometheus metrics for the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the service-wide Prometheus registry. It carries the HTTP,
// document store and event bus collectors plus Go runtime and process
// collectors.
type Registry struct {
	registry *prometheus.Registry
	HTTP     *HTTPMetrics
	Store    *StoreMetrics
	EventBus *EventBusMetrics
}

// NewRegistry builds a registry with all default collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	httpMetrics := NewHTTPMetrics()
	storeMetrics := NewStoreMetrics()
	busMetrics := NewEventBusMetrics()

	reg.MustRegister(httpMetrics.collectors()...)
	reg.MustRegister(storeMetrics.collectors()...)
	reg.MustRegister(busMetrics.collectors()...)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Registry{registry: reg, HTTP: httpMetrics, Store: storeMetrics, EventBus: busMetrics}
}

func (r *Registry) Register(collector prometheus.Collector) error {
	return r.registry.Register(collector)
}

func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	r.registry.MustRegister(cs...)
}

// Handler serves the registry in Prometheus text or OpenMetrics format.
// Mount it on the management server.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
