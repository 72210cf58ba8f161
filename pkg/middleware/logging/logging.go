// Package logging writes one structured log entry per HTTP request.
package logging

import (
	"net/http"
	"strings"
	"time"

	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// Log field names.
const (
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldError      = "error"
	FieldRemoteAddr = "remote_addr"
	FieldQuery      = "query"
	FieldUserAgent  = "user_agent"
	FieldBytesIn    = "request_length"
)

var defaultFields = []string{FieldMethod, FieldPath, FieldStatus, FieldDurationMS, FieldRemoteAddr, FieldError}

var validFields = map[string]struct{}{
	FieldMethod: {}, FieldPath: {}, FieldStatus: {}, FieldDurationMS: {}, FieldError: {},
	FieldRemoteAddr: {}, FieldQuery: {}, FieldUserAgent: {}, FieldBytesIn: {},
}

// Config configures request logging middleware behavior.
type Config struct {
	Enabled bool
	// ExcludedPathPrefixes are never logged, e.g. health checks.
	ExcludedPathPrefixes []string
	// Fields selects the attributes of each entry. Unknown names are
	// dropped; an empty list means the defaults.
	Fields []string
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Fields:  append([]string{}, defaultFields...),
	}
}

// Logging creates middleware with default configuration.
func Logging(log logger.Logger) router.MiddlewareFunc {
	return WithConfig(log, DefaultConfig())
}

// WithConfig logs "request completed" at info for 1xx-3xx, warn for 4xx
// and error for 5xx or a handler error. The request id is attached from the
// request context.
func WithConfig(log logger.Logger, cfg Config) router.MiddlewareFunc {
	fields := normalizeFields(cfg.Fields)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if !cfg.Enabled || excluded(c.Request().URL.Path, cfg.ExcludedPathPrefixes) {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			req := c.Request()
			status := c.Response().Status()
			if err != nil && !c.Response().Written() {
				status = http.StatusInternalServerError
			}
			args := buildFields(fields, req, status, duration, err)
			entry := log.WithContext(req.Context())
			switch {
			case err != nil || status >= 500:
				entry.Error("request completed", args...)
			case status >= 400:
				entry.Warn("request completed", args...)
			default:
				entry.Info("request completed", args...)
			}
			return err
		}
	}
}

func excluded(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func normalizeFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		name := strings.ToLower(strings.TrimSpace(field))
		if _, ok := validFields[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) == 0 {
		return append([]string{}, defaultFields...)
	}
	return out
}

func buildFields(fields []string, req *http.Request, status int, duration time.Duration, err error) []any {
	args := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		var value any
		switch field {
		case FieldMethod:
			value = req.Method
		case FieldPath:
			value = req.URL.Path
		case FieldStatus:
			value = status
		case FieldDurationMS:
			value = duration.Milliseconds()
		case FieldError:
			if err == nil {
				continue
			}
			value = err.Error()
		case FieldRemoteAddr:
			value = req.RemoteAddr
		case FieldQuery:
			value = req.URL.RawQuery
		case FieldUserAgent:
			value = req.UserAgent()
		case FieldBytesIn:
			value = max(req.ContentLength, 0)
		}
		args = append(args, field, value)
	}
	return args
}
