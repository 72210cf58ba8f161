// Package requestsize caps request body size.
package requestsize

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nimburion/eventsvc/pkg/controller"
	"github.com/nimburion/eventsvc/pkg/i18n"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// Middleware enforces a maximum request body size in bytes. Requests that
// declare a larger Content-Length are rejected before the handler runs;
// bodies that grow past the limit while being read fail the read, and the
// handler error is rendered as 413. A non-positive maxBytes disables it.
func Middleware(maxBytes int64) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			if maxBytes <= 0 || req == nil || req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			if req.ContentLength > maxBytes {
				return controller.Error(c, TooLarge(maxBytes))
			}

			req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBytes)
			c.SetRequest(req)

			err := next(c)
			var maxBytesErr *http.MaxBytesError
			if err != nil && errors.As(err, &maxBytesErr) && !c.Response().Written() {
				return controller.Error(c, TooLarge(maxBytes))
			}
			return err
		}
	}
}

// TooLarge is the error rendered for an oversized body.
func TooLarge(maxBytes int64) *controller.AppError {
	return i18n.NewError(controller.ReasonValidationFailed, nil, nil).
		WithMessage(fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", maxBytes)).
		WithHTTPStatus(http.StatusRequestEntityTooLarge).
		WithDetails(map[string]interface{}{"max_size": maxBytes})
}
