package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimburion/eventsvc/pkg/config"
	"github.com/nimburion/eventsvc/pkg/health"
	"github.com/nimburion/eventsvc/pkg/i18n"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/observability/metrics"
	"github.com/nimburion/eventsvc/pkg/observability/tracing"
	"github.com/nimburion/eventsvc/pkg/server/router"
	ginrouter "github.com/nimburion/eventsvc/pkg/server/router/gin"
	"github.com/nimburion/eventsvc/pkg/version"
)

// LifecycleHook defines a named startup/shutdown action.
type LifecycleHook struct {
	Name string
	Fn   func(context.Context) error
}

// RunHTTPServersOptions defines inputs for building and running the HTTP servers.
type RunHTTPServersOptions struct {
	Config *config.Config

	// PublicRouter is optional; a gin router is created when nil. Routes
	// must be registered after BuildHTTPServers so they get the middleware.
	PublicRouter     router.Router
	ManagementRouter router.Router

	Logger logger.Logger

	Catalog         *i18n.Catalog
	HealthRegistry  *health.Registry
	MetricsRegistry *metrics.Registry

	StartupHooks        []LifecycleHook
	ShutdownHooks       []LifecycleHook
	ShutdownHookTimeout time.Duration
}

// HTTPServers groups the public and management servers.
type HTTPServers struct {
	Public     *PublicAPIServer
	Management *ManagementServer
}

// BuildHTTPServers constructs both servers from config, filling in defaults
// for every optional component.
func BuildHTTPServers(opts *RunHTTPServersOptions) (*HTTPServers, error) {
	if opts == nil {
		return nil, errors.New("options are required")
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		log, err := logger.NewZapLogger(logger.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("create logger: %w", err)
		}
		opts.Logger = log
	}
	if opts.Catalog == nil {
		opts.Catalog = i18n.NewCatalogFromMessages("en", opts.Config.Messages)
	}
	if opts.MetricsRegistry == nil {
		opts.MetricsRegistry = metrics.NewRegistry()
	}
	if opts.HealthRegistry == nil {
		opts.HealthRegistry = health.NewRegistry()
	}
	if opts.PublicRouter == nil {
		opts.PublicRouter = ginrouter.NewRouter()
	}

	servers := &HTTPServers{
		Public: NewPublicAPIServer(
			opts.Config.HTTP,
			opts.Config.Observability,
			PublicDependencies{Catalog: opts.Catalog, HTTPMetrics: opts.MetricsRegistry.HTTP},
			opts.PublicRouter,
			opts.Logger,
		),
	}
	if !opts.Config.Management.Enabled {
		return servers, nil
	}

	if opts.ManagementRouter == nil {
		opts.ManagementRouter = ginrouter.NewRouter()
	}
	servers.Management = NewManagementServer(
		opts.Config.Management,
		opts.ManagementRouter,
		opts.Logger,
		opts.HealthRegistry,
		opts.MetricsRegistry,
		version.Current(resolveServiceName(opts)),
	)
	return servers, nil
}

// RunHTTPServers runs startup hooks, starts both servers and blocks until
// ctx is cancelled or one server fails. Shutdown hooks always run.
func RunHTTPServers(ctx context.Context, servers *HTTPServers, opts *RunHTTPServersOptions) error {
	if servers == nil || servers.Public == nil {
		return errors.New("servers and public server are required")
	}
	if opts == nil || opts.Logger == nil {
		return errors.New("logger is required")
	}
	if opts.Config == nil {
		return errors.New("config is required")
	}

	info := version.Current(resolveServiceName(opts))
	opts.Logger.Info("application version metadata",
		"service", info.Service,
		"version", info.Version,
		"commit", info.Commit,
		"build_time", info.BuildTime,
	)

	tracerProvider, err := initTracerProvider(ctx, opts, info)
	if err != nil {
		return fmt.Errorf("initialize tracing provider: %w", err)
	}
	defer shutdownTracerProvider(tracerProvider, opts.Logger)

	defer func() {
		if shutdownErr := runShutdownHooks(opts); shutdownErr != nil {
			opts.Logger.Error("shutdown hooks completed with errors", "error", shutdownErr)
		}
	}()
	if err := runStartupHooks(ctx, opts); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverCount := 1
	if servers.Management != nil {
		serverCount = 2
	}
	errCh := make(chan error, serverCount)
	go func() { errCh <- servers.Public.Start(runCtx) }()
	if servers.Management != nil {
		go func() { errCh <- servers.Management.Start(runCtx) }()
	}

	var firstErr error
	for i := 0; i < serverCount; i++ {
		if current := <-errCh; current != nil && firstErr == nil {
			firstErr = current
			cancel()
		}
	}
	return firstErr
}

func initTracerProvider(ctx context.Context, opts *RunHTTPServersOptions, info version.Info) (*tracing.TracerProvider, error) {
	return tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    info.Service,
		ServiceVersion: info.Version,
		Environment:    resolveEnvironment(opts),
		Endpoint:       opts.Config.Observability.TracingEndpoint,
		SampleRate:     opts.Config.Observability.TracingSampleRate,
		Enabled:        opts.Config.Observability.TracingEnabled,
	})
}

func shutdownTracerProvider(provider *tracing.TracerProvider, log logger.Logger) {
	if provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown tracing provider", "error", err)
	}
}

func resolveServiceName(opts *RunHTTPServersOptions) string {
	if opts.Config != nil {
		if name := strings.TrimSpace(opts.Config.Service.Name); name != "" {
			return name
		}
	}
	return version.Unknown
}

func resolveEnvironment(opts *RunHTTPServersOptions) string {
	if opts.Config != nil {
		if env := strings.TrimSpace(opts.Config.Service.Environment); env != "" {
			return env
		}
	}
	return version.Unknown
}

func runStartupHooks(ctx context.Context, opts *RunHTTPServersOptions) error {
	for _, hook := range opts.StartupHooks {
		if hook.Fn == nil {
			continue
		}
		name := hookName(hook)
		opts.Logger.Info("startup hook start", "hook", name)
		if err := hook.Fn(ctx); err != nil {
			opts.Logger.Error("startup hook failed", "hook", name, "error", err)
			return fmt.Errorf("startup hook %q failed: %w", name, err)
		}
		opts.Logger.Info("startup hook complete", "hook", name)
	}
	return nil
}

// runShutdownHooks runs every hook with its own timeout and joins the errors.
func runShutdownHooks(opts *RunHTTPServersOptions) error {
	timeout := opts.ShutdownHookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var errs []error
	for _, hook := range opts.ShutdownHooks {
		if hook.Fn == nil {
			continue
		}
		name := hookName(hook)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := hook.Fn(ctx)
		cancel()
		if err != nil {
			opts.Logger.Error("shutdown hook failed", "hook", name, "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %q failed: %w", name, err))
			continue
		}
		opts.Logger.Info("shutdown hook complete", "hook", name)
	}
	return errors.Join(errs...)
}

func hookName(hook LifecycleHook) string {
	if name := strings.TrimSpace(hook.Name); name != "" {
		return name
	}
	return "unnamed"
}
