// Package recovery turns handler panics into 500 responses.
package recovery

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/nimburion/eventsvc/pkg/controller"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// ErrPanic is the cause attached to the error rendered after a panic.
var ErrPanic = fmt.Errorf("handler panicked")

// Recovery catches panics from the rest of the chain, logs them with the
// stack trace and renders the standard service error. Nothing is written
// when the handler already started the response.
func Recovery(log logger.Logger) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				ctx := c.Request().Context()
				log.WithContext(ctx).Error("panic recovered",
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
					"method", c.Request().Method,
					"path", c.Request().URL.Path,
				)
				if c.Response().Written() {
					err = ErrPanic
					return
				}
				err = controller.Error(c, controller.NewInternalError("an unexpected error occurred", ErrPanic))
			}()
			return next(c)
		}
	}
}
