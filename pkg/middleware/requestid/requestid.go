// Package requestid assigns every request an id and propagates it.
package requestid

import (
	"context"
	"regexp"

	"github.com/google/uuid"

	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// RequestIDHeader is the HTTP header name for request ID.
const RequestIDHeader = "X-Request-ID"

// ContextKey is the router.Context key holding the id.
const ContextKey = "request_id"

// Incoming ids are echoed into logs and headers, so only a conservative
// alphabet is accepted.
var validID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// RequestID reuses a well formed X-Request-ID header or generates a UUID,
// then stores it in the request context, the router context and the
// response header.
func RequestID() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			requestID := c.Request().Header.Get(RequestIDHeader)
			if !validID.MatchString(requestID) {
				requestID = uuid.NewString()
			}

			c.Set(ContextKey, requestID)
			c.Response().Header().Set(RequestIDHeader, requestID)
			ctx := logger.ContextWithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// GetRequestID extracts the request ID from a context.
func GetRequestID(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}
