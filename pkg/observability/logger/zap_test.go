package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level LogLevel) (*ZapLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := NewZapLogger(Config{Level: level, Format: JSONFormat, Output: &buf})
	if err != nil {
		t.Fatalf("NewZapLogger() error = %v", err)
	}
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid json log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name    string
		level   LogLevel
		logFunc func(Logger)
		want    bool
	}{
		{"debug level logs debug", DebugLevel, func(l Logger) { l.Debug("m") }, true},
		{"info level drops debug", InfoLevel, func(l Logger) { l.Debug("m") }, false},
		{"warn level drops info", WarnLevel, func(l Logger) { l.Info("m") }, false},
		{"warn level logs warn", WarnLevel, func(l Logger) { l.Warn("m") }, true},
		{"error level drops warn", ErrorLevel, func(l Logger) { l.Warn("m") }, false},
		{"error level logs error", ErrorLevel, func(l Logger) { l.Error("m") }, true},
		{"unknown level behaves as info", "bogus", func(l Logger) { l.Info("m") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := newBufferLogger(t, tt.level)
			tt.logFunc(l)
			_ = l.Sync()
			if got := buf.Len() > 0; got != tt.want {
				t.Fatalf("written = %v, want %v (%q)", got, tt.want, buf.String())
			}
		})
	}
}

func TestZapLogger_StructuredFields(t *testing.T) {
	l, buf := newBufferLogger(t, InfoLevel)
	l.With("component", "repository").Info("document created", "collection", "events", "count", 2)
	_ = l.Sync()

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["message"] != "document created" {
		t.Fatalf("message = %v", e["message"])
	}
	if e["component"] != "repository" || e["collection"] != "events" || e["count"] != float64(2) {
		t.Fatalf("unexpected fields: %v", e)
	}
	for _, key := range []string{"timestamp", "level", "caller"} {
		if _, ok := e[key]; !ok {
			t.Fatalf("missing %q in %v", key, e)
		}
	}
}

func TestZapLogger_WithContext(t *testing.T) {
	l, buf := newBufferLogger(t, InfoLevel)

	ctx := ContextWithRequestID(context.Background(), "req-123")
	l.WithContext(ctx).Info("with id")
	l.WithContext(context.Background()).Info("without id")
	_ = l.Sync()

	entries := decodeLines(t, buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0]["request_id"] != "req-123" {
		t.Fatalf("request_id = %v", entries[0]["request_id"])
	}
	if _, ok := entries[1]["request_id"]; ok {
		t.Fatal("unexpected request_id without context value")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"invalid", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    LogFormat
		wantErr bool
	}{
		{"json", JSONFormat, false},
		{"text", TextFormat, false},
		{"console", TextFormat, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLogFormat(tt.input)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLogFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseLogFormat(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNop(t *testing.T) {
	l := NewNop()
	l.With("a", 1).WithContext(context.Background()).Info("ignored")
}
