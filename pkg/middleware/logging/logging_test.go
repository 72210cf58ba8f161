package logging

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nimburion/eventsvc/pkg/middleware/requestid"
	"github.com/nimburion/eventsvc/pkg/server/router"
	ginadapter "github.com/nimburion/eventsvc/pkg/server/router/gin"
	"github.com/nimburion/eventsvc/pkg/testutil"
)

func serve(t *testing.T, cfg Config, path string, h router.HandlerFunc) *testutil.RecordingLogger {
	t.Helper()
	log := testutil.NewRecordingLogger()
	r := ginadapter.NewRouter()
	r.Use(requestid.RequestID(), WithConfig(log, cfg))
	r.GET(path, h)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path+"?q=1", nil))
	return log
}

func TestLogging_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		name      string
		handler   router.HandlerFunc
		wantLevel string
		wantCode  int
	}{
		{"ok", func(c router.Context) error { return c.String(http.StatusOK, "ok") }, "info", http.StatusOK},
		{"client error", func(c router.Context) error { return c.String(http.StatusNotFound, "nf") }, "warn", http.StatusNotFound},
		{"server error", func(c router.Context) error { return c.String(http.StatusBadGateway, "bg") }, "error", http.StatusBadGateway},
		{"unwritten handler error", func(c router.Context) error { return errors.New("boom") }, "error", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := serve(t, DefaultConfig(), "/x", tt.handler)
			entry, ok := log.Find("request completed")
			if !ok {
				t.Fatalf("no entry: %+v", log.Entries())
			}
			if entry.Level != tt.wantLevel || entry.Fields[FieldStatus] != tt.wantCode {
				t.Fatalf("entry = %+v", entry)
			}
			if entry.Fields[FieldMethod] != http.MethodGet || entry.Fields[FieldPath] != "/x" {
				t.Fatalf("fields = %v", entry.Fields)
			}
			if id, _ := entry.Fields["request_id"].(string); id == "" {
				t.Fatal("request id missing")
			}
		})
	}
}

func TestLogging_ErrorFieldOnlyOnFailure(t *testing.T) {
	log := serve(t, DefaultConfig(), "/ok", func(c router.Context) error { return c.String(http.StatusOK, "ok") })
	entry, _ := log.Find("request completed")
	if _, ok := entry.Fields[FieldError]; ok {
		t.Fatalf("unexpected error field: %v", entry.Fields)
	}
	log = serve(t, DefaultConfig(), "/bad", func(c router.Context) error { return errors.New("boom") })
	entry, _ = log.Find("request completed")
	if entry.Fields[FieldError] != "boom" {
		t.Fatalf("fields = %v", entry.Fields)
	}
}

func TestLogging_ExclusionsAndDisabled(t *testing.T) {
	h := func(c router.Context) error { return c.String(http.StatusOK, "ok") }
	cfg := DefaultConfig()
	cfg.ExcludedPathPrefixes = []string{"/health"}
	if log := serve(t, cfg, "/health/live", h); len(log.Entries()) != 0 {
		t.Fatalf("excluded path logged: %+v", log.Entries())
	}
	if log := serve(t, Config{}, "/x", h); len(log.Entries()) != 0 {
		t.Fatalf("disabled middleware logged: %+v", log.Entries())
	}
}

func TestLogging_CustomFields(t *testing.T) {
	cfg := Config{Enabled: true, Fields: []string{"QUERY", "status", "bogus", "status"}}
	log := serve(t, cfg, "/x", func(c router.Context) error { return c.String(http.StatusOK, "ok") })
	entry, _ := log.Find("request completed")
	if entry.Fields[FieldQuery] != "q=1" || entry.Fields[FieldStatus] != http.StatusOK {
		t.Fatalf("fields = %v", entry.Fields)
	}
	if _, ok := entry.Fields[FieldMethod]; ok {
		t.Fatalf("unselected field present: %v", entry.Fields)
	}
}
