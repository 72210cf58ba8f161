package server

import (
	"strings"

	"github.com/nimburion/eventsvc/pkg/config"
	"github.com/nimburion/eventsvc/pkg/i18n"
	i18nmiddleware "github.com/nimburion/eventsvc/pkg/middleware/i18n"
	"github.com/nimburion/eventsvc/pkg/middleware/logging"
	metricsmiddleware "github.com/nimburion/eventsvc/pkg/middleware/metrics"
	"github.com/nimburion/eventsvc/pkg/middleware/recovery"
	"github.com/nimburion/eventsvc/pkg/middleware/requestid"
	"github.com/nimburion/eventsvc/pkg/middleware/requestsize"
	"github.com/nimburion/eventsvc/pkg/middleware/tracing"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/observability/metrics"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// PublicAPIServer serves application traffic.
type PublicAPIServer struct {
	*Server
}

// PublicDependencies are the shared components the public middleware stack needs.
type PublicDependencies struct {
	Catalog     *i18n.Catalog
	HTTPMetrics *metrics.HTTPMetrics
}

// NewPublicAPIServer installs the standard middleware stack on r, in order:
// request id, i18n, logging, recovery, metrics, tracing (when enabled) and
// request size. Routes registered afterwards inherit it.
func NewPublicAPIServer(
	cfg config.HTTPConfig,
	obsCfg config.ObservabilityConfig,
	deps PublicDependencies,
	r router.Router,
	log logger.Logger,
) *PublicAPIServer {
	type middlewareEntry struct {
		name string
		fn   router.MiddlewareFunc
	}
	named := []middlewareEntry{
		{name: "request_id", fn: requestid.RequestID()},
	}
	if deps.Catalog != nil {
		named = append(named, middlewareEntry{name: "i18n", fn: i18nmiddleware.Middleware(deps.Catalog, i18nmiddleware.DefaultConfig())})
	}
	named = append(named,
		middlewareEntry{name: "logging", fn: logging.Logging(log)},
		middlewareEntry{name: "recovery", fn: recovery.Recovery(log)},
	)
	if deps.HTTPMetrics != nil {
		named = append(named, middlewareEntry{name: "metrics", fn: metricsmiddleware.Metrics(deps.HTTPMetrics)})
	}
	if obsCfg.TracingEnabled {
		named = append(named, middlewareEntry{name: "tracing", fn: tracing.Tracing(tracing.Config{TracerName: "http-server"})})
	}
	if cfg.MaxRequestSize > 0 {
		named = append(named, middlewareEntry{name: "request_size", fn: requestsize.Middleware(cfg.MaxRequestSize)})
	}

	funcs := make([]router.MiddlewareFunc, 0, len(named))
	names := make([]string, 0, len(named))
	for _, entry := range named {
		funcs = append(funcs, entry.fn)
		names = append(names, entry.name)
	}
	log.Debug("active middleware stack", "middlewares", strings.Join(names, ", "))
	r.Use(funcs...)

	return &PublicAPIServer{
		Server: NewServer(Config{
			Name:         "public",
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		}, r, log),
	}
}
