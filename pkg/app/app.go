// Package app assembles the gateway stack and the account components from
// a Config. The server and the CLI share it.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/orgadmin/pkg/api"
	"github.com/platinummonkey/orgadmin/pkg/audit"
	"github.com/platinummonkey/orgadmin/pkg/backup"
	"github.com/platinummonkey/orgadmin/pkg/catalog"
	"github.com/platinummonkey/orgadmin/pkg/config"
	"github.com/platinummonkey/orgadmin/pkg/gateway"
	"github.com/platinummonkey/orgadmin/pkg/gateway/pgstore"
	"github.com/platinummonkey/orgadmin/pkg/gateway/redisstore"
	"github.com/platinummonkey/orgadmin/pkg/gateway/sqlitestore"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
	"github.com/platinummonkey/orgadmin/pkg/importwatch"
	"github.com/platinummonkey/orgadmin/pkg/middleware"
	"github.com/platinummonkey/orgadmin/pkg/observability"
	"github.com/platinummonkey/orgadmin/pkg/session"
	"github.com/platinummonkey/orgadmin/pkg/settings"
	"github.com/platinummonkey/orgadmin/pkg/templates"
	"github.com/platinummonkey/orgadmin/pkg/transfer"
)

// Version is reported by the health endpoints
var Version = "dev"

// App holds every long-lived component
type App struct {
	Config *config.Config
	Logger *observability.Logger

	// Remote is the wrapped remote gateway. Local is nil unless a local
	// store path is configured.
	Remote gateway.Gateway
	Local  gateway.Gateway

	Store     *hierarchy.Store
	Catalog   *catalog.Catalog
	Settings  *settings.Store
	Transfer  *transfer.Service
	Templates *templates.Store
	Audit     *audit.Store

	Registry *prometheus.Registry
	Health   *observability.HealthChecker

	redis   *redisstore.Store
	closers []func() error
}

// New opens the configured backend and builds the components on top of it
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	if logger == nil {
		logger = observability.NewLogger(cfg.Observability.Level(), observability.LogFormat(cfg.Observability.LogFormat), nil)
	}
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Health:   observability.NewHealthChecker(Version),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	backend, err := a.openBackend(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Remote = a.wrap(backend)

	if cfg.Gateway.LocalPath != "" {
		local, err := sqlitestore.Open(cfg.Gateway.LocalPath, sqlitestore.WithLogger(logger.Base()))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open local store: %w", err)
		}
		a.closers = append(a.closers, local.Close)
		a.Local = local
	}

	log := logger.FieldLogger()
	a.Catalog = catalog.New(a.Remote, log)
	a.Audit = audit.NewStore(a.Remote, log)
	a.Store = hierarchy.NewStore(a.Remote,
		hierarchy.WithLogger(log),
		hierarchy.WithRecorder(audit.NewRecorder(a.Audit, a.Catalog, log)),
	)
	a.Settings = settings.NewStore(a.Remote, a.Local, log)
	a.Templates = templates.NewStore(a.Remote, a.Store, log)
	a.Transfer = transfer.NewService(transfer.Config{
		Remote:   a.Remote,
		Local:    a.Local,
		Store:    a.Store,
		Catalog:  a.Catalog,
		Settings: a.Settings,
		Logger:   log,
	})

	logger.WithField("backend", cfg.Gateway.Backend).Info("gateway ready")
	return a, nil
}

func (a *App) openBackend(ctx context.Context) (gateway.Gateway, error) {
	g := a.Config.Gateway
	switch g.Backend {
	case config.BackendMemory:
		return gateway.NewMemory(), nil

	case config.BackendPostgres:
		store, err := pgstore.Open(ctx, g.Postgres, a.Logger.Base())
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres gateway: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres gateway: %w", err)
		}
		a.Health.Register("postgres", true, store.DB().PingContext)
		return store, nil

	case config.BackendRedis:
		store, err := redisstore.New(ctx, g.Redis, a.Logger.Base())
		if err != nil {
			return nil, fmt.Errorf("failed to open redis gateway: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.redis = store
		a.Health.Register("redis", true, func(ctx context.Context) error {
			return store.Client().Ping(ctx).Err()
		})
		return store, nil

	case config.BackendSQLite:
		store, err := sqlitestore.Open(g.SQLitePath, sqlitestore.WithLogger(a.Logger.Base()))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite gateway: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.Health.Register("sqlite", true, store.DB().PingContext)
		return store, nil
	}
	return nil, fmt.Errorf("unknown gateway backend: %s", g.Backend)
}

// wrap layers retries, metrics and the optional read cache over backend.
// Each retry attempt is observed separately.
func (a *App) wrap(backend gateway.Gateway) gateway.Gateway {
	g := a.Config.Gateway
	var gw gateway.Gateway = gateway.NewInstrumented(backend, g.Backend, gateway.NewMetrics(a.Registry))
	gw = gateway.NewRetrying(gw, gateway.NewRetryPolicy(g.Retry))
	if g.CacheOn {
		gw = gateway.NewCached(gw, g.Cache)
	}
	return gw
}

// Accounts lists every account known to the remote gateway
func (a *App) Accounts(ctx context.Context) ([]string, error) {
	return gateway.ListAccounts(ctx, a.Remote)
}

// Sessions builds the configured session provider. The OIDC provider is
// also returned so its login routes can be mounted.
func (a *App) Sessions(ctx context.Context) (session.Provider, *session.OIDCProvider, error) {
	if a.Config.Session.Provider != config.SessionOIDC {
		return session.NewHeaderProvider(), nil, nil
	}
	provider, err := session.NewOIDCProvider(ctx, a.Config.Session.OIDC)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return provider, provider, nil
}

// Limiter returns the request limiter, or nil when rate limiting is off.
// The redis gateway shares its client so limits hold across replicas; the
// in-process limiter drops expired windows until ctx ends.
func (a *App) Limiter(ctx context.Context) middleware.Limiter {
	s := a.Config.Server
	if !s.RateLimitEnabled {
		return nil
	}
	if a.redis != nil {
		return middleware.NewRedisLimiter(a.redis.Client(), s.RateLimit, a.Config.Gateway.Redis.Prefix+":ratelimit")
	}
	limiter := middleware.NewMemoryLimiter(s.RateLimit)
	limiter.StartCleanup(ctx)
	return limiter
}

// Handler builds the HTTP API
func (a *App) Handler(ctx context.Context) (http.Handler, error) {
	sessions, oidc, err := a.Sessions(ctx)
	if err != nil {
		return nil, err
	}

	cfg := api.Config{
		Store:          a.Store,
		Catalog:        a.Catalog,
		Settings:       a.Settings,
		Transfer:       a.Transfer,
		Templates:      a.Templates,
		Audit:          a.Audit,
		Sessions:       sessions,
		OIDC:           oidc,
		Limiter:        a.Limiter(ctx),
		Health:         a.Health,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		MaxBodyBytes:   a.Config.Server.MaxBodyBytes,
		Logger:         a.Logger,
	}
	if a.Config.Observability.MetricsEnabled {
		cfg.Metrics = observability.NewMetrics(a.Registry)
		cfg.Gatherer = a.Registry
	}
	return api.NewServer(cfg), nil
}

// BackupRunner builds the scheduled backup runner for the configured sink
func (a *App) BackupRunner(ctx context.Context) (*backup.Runner, error) {
	b := a.Config.Backup
	var sink backup.Sink
	switch b.Sink {
	case config.SinkS3:
		s3, err := backup.NewS3Sink(ctx, b.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 sink: %w", err)
		}
		sink = s3
	default:
		fs, err := backup.NewFileSink(b.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create backup directory: %w", err)
		}
		sink = fs
	}
	return backup.NewRunner(b.Runner, a.Transfer, a.Accounts, sink, a.Audit, a.Logger.FieldLogger()), nil
}

// ImportWatcher builds the bundle drop folder watcher
func (a *App) ImportWatcher() (*importwatch.Watcher, error) {
	w := a.Config.ImportWatch
	return importwatch.New(w.Dir, w.Delay, a.Transfer, a.Logger.FieldLogger())
}

// Close stops subscriptions and closes every opened store. Stores close in
// reverse order of opening.
func (a *App) Close() error {
	if a.Store != nil {
		a.Store.Close()
	}
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
