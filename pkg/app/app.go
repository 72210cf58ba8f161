// Package app assembles the service from configuration: it opens the
// document store, Redis and the broker, builds repositories and services,
// and mounts the HTTP handlers. It owns every adapter it opens.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nimburion/eventsvc/pkg/auth"
	"github.com/nimburion/eventsvc/pkg/config"
	"github.com/nimburion/eventsvc/pkg/eventbus"
	busfactory "github.com/nimburion/eventsvc/pkg/eventbus/factory"
	"github.com/nimburion/eventsvc/pkg/health"
	"github.com/nimburion/eventsvc/pkg/i18n"
	"github.com/nimburion/eventsvc/pkg/middleware/authn"
	"github.com/nimburion/eventsvc/pkg/middleware/ratelimit"
	"github.com/nimburion/eventsvc/pkg/observability/logger"
	"github.com/nimburion/eventsvc/pkg/observability/metrics"
	"github.com/nimburion/eventsvc/pkg/repository/document"
	"github.com/nimburion/eventsvc/pkg/resilience"
	"github.com/nimburion/eventsvc/pkg/server"
	"github.com/nimburion/eventsvc/pkg/server/router"
	authsvc "github.com/nimburion/eventsvc/pkg/service/auth"
	"github.com/nimburion/eventsvc/pkg/service/events"
	"github.com/nimburion/eventsvc/pkg/store"
	redisstore "github.com/nimburion/eventsvc/pkg/store/redis"
)

// App is the assembled service.
type App struct {
	Config  *config.Config
	Logger  logger.Logger
	Metrics *metrics.Registry
	Health  *health.Registry
	Catalog *i18n.Catalog

	Users  *authsvc.UserRepository
	Events *events.EventRepository

	AuthService  *authsvc.Service
	EventService *events.Service

	documents  *store.DocumentStore
	cache      *redisstore.Adapter
	bus        eventbus.EventBus
	tokens     *auth.HMACTokenManager
	loginGuard *ratelimit.Guard

	closers []namedCloser
	closed  bool
}

type namedCloser struct {
	name string
	fn   func() error
}

// Cosa fa: apre gli adapter configurati, registra i relativi health check e
// costruisce repository e servizi.
// Cosa NON fa: non crea indici e non avvia server; se una dipendenza fallisce
// chiude quelle gia' aperte prima di restituire l'errore.
// Esempio minimo: a, err := app.New(ctx, cfg, log); defer a.Close()
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	a := &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.NewRegistry(),
		Health:  health.NewRegistry(),
		Catalog: i18n.NewCatalogFromMessages("en", cfg.Messages),
	}
	defer func() {
		if err != nil {
			if closeErr := a.Close(); closeErr != nil {
				log.Warn("failed to release dependencies after startup error", "error", closeErr)
			}
		}
	}()

	if err := a.openDependencies(ctx); err != nil {
		return nil, err
	}
	if err := a.buildServices(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openDependencies(ctx context.Context) error {
	cfg := a.Config

	documents, err := store.NewDocumentStore(cfg.Database, a.Logger)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	a.documents = documents
	if documents.Adapter != nil {
		a.onClose(documents.System, documents.Adapter.Close)
		a.Health.Register(health.NewDatabaseChecker(documents.System, documents.Adapter))
	}

	cache, err := store.NewCacheAdapter(cfg.Cache, a.Logger)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	if cache != nil {
		a.cache = cache
		a.onClose("redis", cache.Close)
		a.Health.Register(health.NewCacheChecker("redis", cache))
	}

	bus, err := busfactory.NewEventBusAdapter(ctx, cfg.EventBus, a.Metrics.EventBus, a.Logger)
	if err != nil {
		return fmt.Errorf("open event bus: %w", err)
	}
	a.bus = bus
	a.onClose("eventbus", bus.Close)
	if strings.EqualFold(cfg.EventBus.Type, config.EventBusTypeRabbitMQ) {
		a.Health.Register(health.NewMessageBrokerChecker("rabbitmq", bus))
	}
	return nil
}

func (a *App) buildServices() error {
	cfg := a.Config
	repoCfg := document.Config{
		Executor: a.documents.Executor,
		Logger:   a.Logger,
		Metrics:  a.Metrics.Store,
		System:   a.documents.System,
	}

	var err error
	if a.Users, err = authsvc.NewUserRepository(repoCfg); err != nil {
		return err
	}
	if a.Events, err = events.NewEventRepository(repoCfg); err != nil {
		return err
	}

	hasher, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}
	if a.tokens, err = auth.NewHMACTokenManager(cfg.Auth.SecretKey, cfg.Auth.Issuer, cfg.Auth.TokenTTL, a.Logger); err != nil {
		return err
	}
	if a.loginGuard, err = a.newLoginGuard(); err != nil {
		return err
	}

	var subscribers events.SubscriberStore
	if a.cache != nil {
		subscribers = events.NewRedisSubscriberStore(a.cache)
	} else {
		subscribers = events.NewMemorySubscriberStore(nil)
	}
	notifyOpts := []events.NotifierOption{events.WithPublishTimeout(cfg.EventBus.OperationTimeout)}
	if cfg.EventBus.BreakerFailures > 0 {
		notifyOpts = append(notifyOpts, events.WithBreaker(
			resilience.NewCircuitBreaker(cfg.EventBus.BreakerFailures, cfg.EventBus.BreakerCooldown)))
	}
	notifier := events.NewBusNotifier(a.bus, eventbus.NewJSONSerializer(), nil, a.Logger, notifyOpts...)

	a.AuthService = authsvc.NewService(a.Users, hasher, a.tokens, a.Logger)
	a.EventService = events.NewService(a.Events, a.Users, notifier, subscribers, a.Logger)
	return nil
}

func (a *App) newLoginGuard() (*ratelimit.Guard, error) {
	rl := a.Config.RateLimit
	if !rl.Enabled {
		return nil, nil
	}
	var limiter ratelimit.Limiter
	switch strings.ToLower(rl.Type) {
	case config.RateLimitTypeLocal:
		limiter = ratelimit.NewTokenBucketLimiter(rl.Requests, rl.Window)
	case config.RateLimitTypeRedis:
		if a.cache == nil {
			return nil, errors.New("rate_limit.type redis requires a redis cache")
		}
		redisLimiter, err := ratelimit.NewRedisRateLimiter(a.cache, rl.Requests, rl.Window, a.Config.Cache.OperationTimeout)
		if err != nil {
			return nil, err
		}
		limiter = redisLimiter
	default:
		return nil, fmt.Errorf("unsupported rate_limit.type %q", rl.Type)
	}
	return ratelimit.NewGuard(limiter, rl.Prefix, rl.Window, a.Logger), nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

// RegisterRoutes mounts the auth and events APIs on r.
func (a *App) RegisterRoutes(r router.Router) {
	authenticate := authn.Authenticate(a.tokens)
	authsvc.NewHandler(a.AuthService, authenticate, a.loginGuard).Register(r)
	events.NewHandler(a.EventService, authenticate).Register(r)
}

// EnsureIndexes creates the unique indexes of every collection.
func (a *App) EnsureIndexes(ctx context.Context) error {
	if err := a.Users.EnsureIndexes(ctx); err != nil {
		return err
	}
	return a.Events.EnsureIndexes(ctx)
}

// CheckDependencies runs every registered health check and fails when any
// of them does, degraded ones included.
func (a *App) CheckDependencies(ctx context.Context) error {
	var errs []error
	for _, check := range a.Health.Check(ctx).Checks {
		if check.Status != health.StatusHealthy {
			errs = append(errs, fmt.Errorf("%s: %s", check.Name, check.Error))
		}
	}
	return errors.Join(errs...)
}

// Close releases the adapters in reverse opening order. It is safe to call
// more than once.
func (a *App) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// Run serves the API until ctx is cancelled. Indexes are ensured before the
// servers start and the adapters are closed on the way out.
func Run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close dependencies", "error", err)
		}
	}()

	opts := &server.RunHTTPServersOptions{
		Config:          cfg,
		Logger:          log,
		Catalog:         a.Catalog,
		HealthRegistry:  a.Health,
		MetricsRegistry: a.Metrics,
		StartupHooks: []server.LifecycleHook{
			{Name: "ensure-indexes", Fn: a.EnsureIndexes},
		},
	}
	servers, err := server.BuildHTTPServers(opts)
	if err != nil {
		return err
	}
	a.RegisterRoutes(servers.Public.Router())
	return server.RunHTTPServers(ctx, servers, opts)
}
