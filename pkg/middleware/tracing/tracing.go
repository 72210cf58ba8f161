// Package tracing opens an OpenTelemetry server span per HTTP request.
package tracing

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/eventsvc/pkg/middleware/metrics"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// Config holds configuration for the tracing middleware.
type Config struct {
	// TracerName defaults to "http-server".
	TracerName string
	// ExcludedPathPrefixes disables tracing for matching path prefixes.
	ExcludedPathPrefixes []string
}

// Tracing extracts the incoming trace context, starts a server span named
// "HTTP <method> <templated path>" and marks it failed on handler errors or
// 5xx responses. The span context replaces the request context so store and
// broker spans become its children.
func Tracing(cfg Config) router.MiddlewareFunc {
	if cfg.TracerName == "" {
		cfg.TracerName = "http-server"
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			for _, prefix := range cfg.ExcludedPathPrefixes {
				if prefix != "" && strings.HasPrefix(req.URL.Path, prefix) {
					return next(c)
				}
			}

			// Resolved per request so a provider installed after routing is honored.
			tracer := otel.Tracer(cfg.TracerName)
			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			route := metrics.PathLabel(req.URL.Path)
			ctx, span := tracer.Start(ctx, fmt.Sprintf("HTTP %s %s", req.Method, route), trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", req.URL.Path),
				attribute.String("http.user_agent", req.UserAgent()),
			)
			if requestID := logger.RequestIDFromContext(req.Context()); requestID != "" {
				span.SetAttributes(attribute.String("request.id", requestID))
			}

			c.SetRequest(req.WithContext(ctx))
			err := next(c)

			status := c.Response().Status()
			span.SetAttributes(attribute.Int("http.status_code", status))
			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			case status >= 500:
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			default:
				span.SetStatus(codes.Ok, "")
			}
			return err
		}
	}
}
