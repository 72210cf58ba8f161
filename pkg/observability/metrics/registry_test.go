package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_HandlerExposesDefaults(t *testing.T) {
	registry := NewRegistry()
	registry.HTTP.Observe(http.MethodGet, "/api/v1/events", http.StatusOK, 20*time.Millisecond)
	registry.Store.Observe("events", "get_many", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"http_requests_total",
		"http_request_duration_seconds",
		"docstore_operations_total",
		"go_goroutines",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}

func TestRegistry_RegisterCustomCollector(t *testing.T) {
	registry := NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "custom_total", Help: "custom"})
	if err := registry.Register(c); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := registry.Register(c); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestStoreMetrics_Outcomes(t *testing.T) {
	m := NewStoreMetrics()
	m.Observe("users", "create", time.Millisecond, nil)
	m.Observe("users", "create", time.Millisecond, errors.New("dup"))
	m.Observe("users", "create", time.Millisecond, errors.New("dup"))

	if got := testutil.ToFloat64(m.total.WithLabelValues("users", "create", "ok")); got != 1 {
		t.Fatalf("ok = %v", got)
	}
	if got := testutil.ToFloat64(m.total.WithLabelValues("users", "create", "error")); got != 2 {
		t.Fatalf("error = %v", got)
	}

	var nilMetrics *StoreMetrics
	nilMetrics.Observe("users", "create", time.Millisecond, nil)
}

func TestHTTPMetrics_InFlight(t *testing.T) {
	m := NewHTTPMetrics()
	m.IncInFlight()
	m.IncInFlight()
	m.DecInFlight()
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("in flight = %v", got)
	}
}

func TestEventBusMetrics_Publish(t *testing.T) {
	m := NewEventBusMetrics()
	m.ObservePublish("events.created", 1, nil)
	m.ObservePublish("events.created", 3, nil)
	m.ObservePublish("events.deleted", 1, errors.New("closed"))

	if got := testutil.ToFloat64(m.published.WithLabelValues("events.created", "ok")); got != 4 {
		t.Fatalf("created ok = %v", got)
	}
	if got := testutil.ToFloat64(m.published.WithLabelValues("events.deleted", "error")); got != 1 {
		t.Fatalf("deleted error = %v", got)
	}

	var nilMetrics *EventBusMetrics
	nilMetrics.ObservePublish("events.created", 1, nil)
}
