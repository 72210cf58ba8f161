package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nimburion/eventsvc/pkg/controller"
	"github.com/nimburion/eventsvc/pkg/i18n"
	i18nmw "github.com/nimburion/eventsvc/pkg/middleware/i18n"
	"github.com/nimburion/eventsvc/pkg/middleware/logging"
	metricsmw "github.com/nimburion/eventsvc/pkg/middleware/metrics"
	"github.com/nimburion/eventsvc/pkg/middleware/recovery"
	"github.com/nimburion/eventsvc/pkg/middleware/requestid"
	"github.com/nimburion/eventsvc/pkg/observability/metrics"
	"github.com/nimburion/eventsvc/pkg/server/router"
	ginadapter "github.com/nimburion/eventsvc/pkg/server/router/gin"
	testlog "github.com/nimburion/eventsvc/pkg/testutil"
)

// stack mirrors the order the public server installs.
func stack(log *testlog.RecordingLogger, reg *metrics.Registry) router.Router {
	catalog := i18n.NewCatalogFromMessages("en", map[string]map[string]string{
		"en": {"event_not_found": "Event not found", "service_error": "Service error"},
		"it": {"event_not_found": "Evento non trovato", "service_error": "Errore del servizio"},
	})
	r := ginadapter.NewRouter()
	r.Use(
		requestid.RequestID(),
		i18nmw.Middleware(catalog, i18nmw.DefaultConfig()),
		logging.Logging(log),
		recovery.Recovery(log),
		metricsmw.Metrics(reg.HTTP),
	)
	return r
}

func TestStack_RequestIDReachesLogsAndErrors(t *testing.T) {
	log := testlog.NewRecordingLogger()
	r := stack(log, metrics.NewRegistry())
	r.GET("/events/:id", func(c router.Context) error {
		return controller.Error(c, controller.NewNotFoundError(controller.ReasonEventNotFound, "Event not found"))
	})

	req := httptest.NewRequest(http.MethodGet, "/events/64b7f0c2a1b2c3d4e5f60718", nil)
	req.Header.Set(requestid.RequestIDHeader, "req-123")
	req.AddCookie(&http.Cookie{Name: "lang", Value: "it"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body controller.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RequestID != "req-123" || body.Message != "Evento non trovato" {
		t.Fatalf("body = %+v", body)
	}

	entry, ok := log.Find("request completed")
	if !ok {
		t.Fatal("request was not logged")
	}
	if entry.Level != "warn" || entry.Fields["request_id"] != "req-123" {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestStack_PanicBecomesTranslated500(t *testing.T) {
	log := testlog.NewRecordingLogger()
	reg := metrics.NewRegistry()
	r := stack(log, reg)
	r.GET("/boom", func(router.Context) error { panic("kaboom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("Accept-Language", "it-IT")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get(requestid.RequestIDHeader) == "" {
		t.Fatal("request id header missing on panic")
	}
	if _, ok := log.Find("panic recovered"); !ok {
		t.Fatal("panic was not logged")
	}
	if entry, ok := log.Find("request completed"); !ok || entry.Level != "error" {
		t.Fatalf("recovered request must be logged as error, got %+v", entry)
	}

	var body controller.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != controller.ReasonServiceError || body.Message != "Errore del servizio" {
		t.Fatalf("body = %+v", body)
	}

	// The panic unwinds through the metrics middleware before recovery.
	expected := `
# HELP http_requests_in_flight Current number of HTTP requests being processed
# TYPE http_requests_in_flight gauge
http_requests_in_flight 0
`
	if err := testutil.GatherAndCompare(reg.Gatherer(), strings.NewReader(expected), "http_requests_in_flight"); err != nil {
		t.Fatal(err)
	}
}

func TestStack_MetricsUseRoutePattern(t *testing.T) {
	reg := metrics.NewRegistry()
	r := stack(testlog.NewRecordingLogger(), reg)
	r.GET("/events/:id", func(c router.Context) error { return c.String(http.StatusOK, "ok") })

	for _, id := range []string{"64b7f0c2a1b2c3d4e5f60718", "64b7f0c2a1b2c3d4e5f60719"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/"+id, nil))
	}

	expected := `
# HELP http_requests_total Total number of HTTP requests
# TYPE http_requests_total counter
http_requests_total{method="GET",path="/events/:id",status="200"} 2
`
	if err := testutil.GatherAndCompare(reg.Gatherer(), strings.NewReader(expected), "http_requests_total"); err != nil {
		t.Fatal(err)
	}
}
