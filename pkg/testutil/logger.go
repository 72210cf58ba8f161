package testutil

import (
	"context"
	"sync"

	"github.com/nimburion/eventsvc/pkg/observability/logger"
)

// RecordingLogger captures log entries for assertions. It is safe for
// concurrent use; children created by With share the parent's entries.
type RecordingLogger struct {
	mu      *sync.Mutex
	entries *[]LogEntry
	fields  []any
}

// LogEntry is one captured call.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{mu: &sync.Mutex{}, entries: &[]LogEntry{}}
}

func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }

func (l *RecordingLogger) With(args ...any) logger.Logger {
	return &RecordingLogger{
		mu:      l.mu,
		entries: l.entries,
		fields:  append(append([]any{}, l.fields...), args...),
	}
}

func (l *RecordingLogger) WithContext(ctx context.Context) logger.Logger {
	if id := logger.RequestIDFromContext(ctx); id != "" {
		return l.With("request_id", id)
	}
	return l
}

// Entries returns a copy of everything logged so far.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), (*l.entries)...)
}

// Find returns the first entry with msg.
func (l *RecordingLogger) Find(msg string) (LogEntry, bool) {
	for _, e := range l.Entries() {
		if e.Msg == msg {
			return e, true
		}
	}
	return LogEntry{}, false
}

func (l *RecordingLogger) record(level, msg string, args []any) {
	all := append(append([]any{}, l.fields...), args...)
	fields := make(map[string]interface{}, len(all)/2)
	for i := 0; i+1 < len(all); i += 2 {
		if key, ok := all[i].(string); ok {
			fields[key] = all[i+1]
		}
	}
	l.mu.Lock()
	*l.entries = append(*l.entries, LogEntry{Level: level, Msg: msg, Fields: fields})
	l.mu.Unlock()
}
