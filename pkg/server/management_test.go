package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimburion/eventsvc/pkg/config"
	"github.com/nimburion/eventsvc/pkg/health"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/observability/metrics"
	ginrouter "github.com/nimburion/eventsvc/pkg/server/router/gin"
	"github.com/nimburion/eventsvc/pkg/version"
)

type stubCheckable struct{ err error }

func (s stubCheckable) HealthCheck(context.Context) error { return s.err }

func newManagement(reg *health.Registry) *ManagementServer {
	return NewManagementServer(
		config.DefaultConfig().Management,
		ginrouter.NewRouter(),
		logger.NewNop(),
		reg,
		metrics.NewRegistry(),
		version.Info{Service: "eventsvc", Version: "1.2.3", Commit: "abc", BuildTime: version.Unknown},
	)
}

func get(s *ManagementServer, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestManagementServer_Health(t *testing.T) {
	reg := health.NewRegistry()
	reg.Register(health.NewDatabaseChecker("mongodb", stubCheckable{err: errors.New("down")}))
	rec := get(newManagement(reg), "/health")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Fatalf("liveness must not depend on checks: %d %s", rec.Code, rec.Body.String())
	}
}

func TestManagementServer_Ready(t *testing.T) {
	reg := health.NewRegistry()
	reg.Register(health.NewDatabaseChecker("mongodb", stubCheckable{}))
	reg.Register(health.NewCacheChecker("redis", stubCheckable{}))
	s := newManagement(reg)

	if rec := get(s, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("ready: %d %s", rec.Code, rec.Body.String())
	}

	reg.Register(health.NewMessageBrokerChecker("rabbitmq", stubCheckable{err: errors.New("connection closed")}))
	if rec := get(s, "/ready"); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"degraded"`) {
		t.Fatalf("degraded broker must keep the service ready: %d %s", rec.Code, rec.Body.String())
	}

	reg.Register(health.NewDatabaseChecker("mongodb", stubCheckable{err: errors.New("no reachable servers")}))
	rec := get(s, "/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with failing broker: %d", rec.Code)
	}
	var result health.AggregatedResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Status != health.StatusUnhealthy || len(result.Checks) != 3 {
		t.Fatalf("result = %+v", result)
	}
}

func TestManagementServer_MetricsAndVersion(t *testing.T) {
	s := newManagement(health.NewRegistry())

	rec := get(s, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("metrics: %d", rec.Code)
	}

	rec = get(s, "/version")
	var info version.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Service != "eventsvc" || info.Version != "1.2.3" {
		t.Fatalf("info = %+v", info)
	}
}
