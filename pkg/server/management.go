package server

import (
	"net/http"
	"time"

	"github.com/nimburion/eventsvc/pkg/config"
	"github.com/nimburion/eventsvc/pkg/health"
	"github.com/nimburion/eventsvc/pkg/middleware/logging"
	"github.com/nimburion/eventsvc/pkg/middleware/recovery"
	"github.com/nimburion/eventsvc/pkg/middleware/requestid"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/observability/metrics"
	"github.com/nimburion/eventsvc/pkg/server/router"
	"github.com/nimburion/eventsvc/pkg/version"
)

// ManagementServer serves health, readiness, metrics and version on a
// port separate from the public API.
type ManagementServer struct {
	*Server
	healthRegistry  *health.Registry
	metricsRegistry *metrics.Registry
	versionInfo     version.Info
}

// NewManagementServer registers:
//   - /health: liveness, always 200
//   - /ready: runs every registered check, 503 when one is unhealthy
//   - /metrics: Prometheus exposition
//   - /version: build metadata
func NewManagementServer(
	cfg config.ManagementConfig,
	r router.Router,
	log logger.Logger,
	healthRegistry *health.Registry,
	metricsRegistry *metrics.Registry,
	info version.Info,
) *ManagementServer {
	// Health checks are polled constantly; only failures are worth a log line.
	loggingCfg := logging.DefaultConfig()
	loggingCfg.ExcludedPathPrefixes = []string{"/health", "/metrics"}
	r.Use(
		requestid.RequestID(),
		logging.WithConfig(log, loggingCfg),
		recovery.Recovery(log),
	)

	s := &ManagementServer{
		Server: NewServer(Config{
			Name:         "management",
			Port:         cfg.Port,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		}, r, log),
		healthRegistry:  healthRegistry,
		metricsRegistry: metricsRegistry,
		versionInfo:     info,
	}

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", s.handleMetrics)
	r.GET("/version", s.handleVersion)
	return s
}

func (s *ManagementServer) handleHealth(c router.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": health.StatusHealthy,
	})
}

func (s *ManagementServer) handleReady(c router.Context) error {
	result := s.healthRegistry.Check(c.Request().Context())
	if !result.IsReady() {
		return c.JSON(http.StatusServiceUnavailable, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *ManagementServer) handleMetrics(c router.Context) error {
	s.metricsRegistry.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *ManagementServer) handleVersion(c router.Context) error {
	return c.JSON(http.StatusOK, s.versionInfo)
}
