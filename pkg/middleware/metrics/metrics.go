// Package metrics records Prometheus HTTP metrics for every request.
package metrics

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/nimburion/eventsvc/pkg/observability/metrics"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// Document ids are the only variable path segments the service exposes.
var objectIDSegment = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// Metrics tracks in-flight requests and observes duration and count by
// method, templated path and status.
func Metrics(m *metrics.HTTPMetrics) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			m.IncInFlight()
			defer m.DecInFlight()

			start := time.Now()
			err := next(c)

			status := c.Response().Status()
			if err != nil && !c.Response().Written() {
				status = http.StatusInternalServerError
			}
			m.Observe(c.Request().Method, PathLabel(c.Request().URL.Path), status, time.Since(start))
			return err
		}
	}
}

// PathLabel replaces id segments with ":id" to bound label cardinality.
func PathLabel(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if objectIDSegment.MatchString(s) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}
