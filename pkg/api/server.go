package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/orgadmin/pkg/audit"
	"github.com/platinummonkey/orgadmin/pkg/catalog"
	"github.com/platinummonkey/orgadmin/pkg/compare"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
	"github.com/platinummonkey/orgadmin/pkg/httputil"
	"github.com/platinummonkey/orgadmin/pkg/middleware"
	"github.com/platinummonkey/orgadmin/pkg/observability"
	"github.com/platinummonkey/orgadmin/pkg/session"
	"github.com/platinummonkey/orgadmin/pkg/settings"
	"github.com/platinummonkey/orgadmin/pkg/stats"
	"github.com/platinummonkey/orgadmin/pkg/templates"
	"github.com/platinummonkey/orgadmin/pkg/transfer"
)

// APIPrefix is the path prefix of the versioned routes
const APIPrefix = "/api/v1"

// Config holds the Server dependencies. Store, Catalog, Settings, Transfer
// and Sessions are required; the rest enable optional route groups or
// middleware.
type Config struct {
	Store     *hierarchy.Store
	Catalog   *catalog.Catalog
	Settings  *settings.Store
	Transfer  *transfer.Service
	Templates *templates.Store
	Audit     *audit.Store
	Sessions  session.Provider

	// OIDC enables /auth/login and /auth/callback
	OIDC *session.OIDCProvider
	// Limiter enables per-account rate limiting of /api/v1
	Limiter middleware.Limiter
	// Health serves /health/live and /health/ready
	Health *observability.HealthChecker
	// Metrics records per-route HTTP metrics; Gatherer serves /metrics
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer

	AllowedOrigins []string
	// MaxBodyBytes caps request bodies under /api/v1 when positive
	MaxBodyBytes   int64
	Logger         *observability.Logger
}

// Server is the HTTP API
type Server struct {
	config    Config
	router    *mux.Router
	api       *mux.Router
	logger    *observability.Logger
	bootstrap singleflight.Group
}

// RouteRegistrar is implemented by handler groups
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// NewServer creates the server and registers every route
func NewServer(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, observability.JSONFormat, nil)
	}

	s := &Server{
		config: config,
		router: mux.NewRouter(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(httputil.Chain(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
	))
	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(httputil.CORSMiddleware(s.config.AllowedOrigins))
	}
	if s.config.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.config.Metrics))
	}

	if s.config.Health != nil {
		s.router.HandleFunc("/health/live", s.config.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/health/ready", s.config.Health.Readiness).Methods(http.MethodGet)
	}
	if s.config.Gatherer != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.config.Gatherer)).Methods(http.MethodGet)
	}
	if s.config.OIDC != nil {
		NewAuthHandlers(s.config.OIDC).RegisterRoutes(s.router)
	}

	s.api = s.router.PathPrefix(APIPrefix).Subrouter()
	if s.config.MaxBodyBytes > 0 {
		s.api.Use(httputil.MaxBytesMiddleware(s.config.MaxBodyBytes))
	}
	s.api.Use(middleware.SessionMiddleware(s.config.Sessions, s.logger))
	if s.config.Limiter != nil {
		s.api.Use(middleware.NewRateLimitMiddleware(s.config.Limiter, s.logger).Handler)
	}
	s.api.Use(s.accountMiddleware)

	s.api.HandleFunc("/session", s.getSession).Methods(http.MethodGet)

	s.RegisterRoutes(NewEntityHandlers(s.config.Store))
	s.RegisterRoutes(NewPermissionHandlers(s.config.Catalog, s.config.Store))
	s.RegisterRoutes(NewAccountHandlers(s.config.Settings, s.config.Transfer))
	s.RegisterRoutes(NewCompareHandlers(compare.New(s.config.Store, s.config.Catalog)))
	s.RegisterRoutes(NewStatsHandlers(stats.NewService(s.config.Store, s.config.Catalog)))
	if s.config.Templates != nil {
		s.RegisterRoutes(NewTemplateHandlers(s.config.Templates))
	}
	if s.config.Audit != nil {
		s.RegisterRoutes(NewAuditHandlers(s.config.Audit))
	}
}

// RegisterRoutes adds a handler group to the versioned subrouter
func (s *Server) RegisterRoutes(registrar RouteRegistrar) {
	registrar.RegisterRoutes(s.api)
}

// Router returns the underlying router
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accountMiddleware bootstraps the session account on its first request:
// local data is migrated or defaults are seeded, then the entity
// subscription starts.
func (s *Server) accountMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := session.AccountID(r.Context())
		if !s.config.Store.Subscribed(accountID) {
			_, err, _ := s.bootstrap.Do(accountID, func() (interface{}, error) {
				if s.config.Store.Subscribed(accountID) {
					return nil, nil
				}
				if s.config.Transfer == nil {
					return nil, s.config.Store.Initialize(r.Context(), accountID)
				}
				return nil, s.config.Transfer.Bootstrap(r.Context(), accountID)
			})
			if err != nil {
				writeError(w, r, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	httputil.WriteSuccess(w, sess)
}

// accountID returns the session account of r
func accountID(r *http.Request) string {
	return session.AccountID(r.Context())
}
