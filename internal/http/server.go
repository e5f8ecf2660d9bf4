package http

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"elearning/internal/apperr"
	"elearning/internal/auth"
	"elearning/internal/authz"
	"elearning/internal/config"
	"elearning/internal/crypto"
	"elearning/internal/model"
	"elearning/internal/obs"
	"elearning/internal/tenant"
)

type TenantStore interface {
	tenant.Directory
	TenantByID(ctx context.Context, id string) (model.Tenant, error)
	ListTenants(ctx context.Context, filter model.TenantFilter) ([]model.Tenant, int, error)
	CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error)
	UpdateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error)
	TenantStats(ctx context.Context, tenantID string) (model.TenantStats, error)
}

// Store is the persistence surface the HTTP API needs. Both
// repository.Store and repository.Memory satisfy it.
type Store interface {
	auth.AccountStore
	authz.CourseStore
	TenantStore
}

// TenantCache is notified when a tenant changes so stale lookups are dropped.
type TenantCache interface {
	Invalidate(ctx context.Context, domain string)
}

// Deps carries the collaborators built in main. Nil fields are derived from
// the config and the store.
type Deps struct {
	Store         Store
	Directory     tenant.Directory
	Cache         TenantCache
	Authenticator *auth.Authenticator
	Accounts      *auth.Service
	Metrics       *obs.Metrics
	Logger        *zap.Logger
	Now           func() time.Time
}

type Server struct {
	cfg        config.Config
	store      Store
	cache      TenantCache
	resolver   *tenant.Resolver
	authn      *auth.Authenticator
	accounts   *auth.Service
	metrics    *obs.Metrics
	logger     *zap.Logger
	translator apperr.Translator
	limiter    *rateLimiter
	proxies    []netip.Prefix
	now        func() time.Time
}

func NewServer(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	directory := deps.Directory
	if directory == nil {
		directory = deps.Store
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = obs.NewMetrics(prometheus.NewRegistry())
	}

	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		logger.Warn("ignoring trusted proxies", zap.Error(err))
		proxies = nil
	}

	authn := deps.Authenticator
	accounts := deps.Accounts
	if authn == nil || accounts == nil {
		tokens := auth.NewTokens(auth.TokenConfig{
			AccessSecret:  cfg.JWTSecret,
			RefreshSecret: cfg.JWTRefreshSecret,
			Issuer:        cfg.JWTIssuer,
			AccessTTL:     cfg.AccessTokenTTL,
			RefreshTTL:    cfg.RefreshTokenTTL,
		})
		if authn == nil {
			authn = auth.NewAuthenticator(tokens, deps.Store, auth.AuthenticatorConfig{
				TouchTimeout:       cfg.TouchTimeout,
				SuperAdminTenantID: cfg.SuperAdminTenantID,
			}, logger)
		}
		if accounts == nil {
			accounts = auth.NewService(deps.Store, tokens, crypto.NewHasher(cfg.BcryptCost), authn, logger)
		}
	}

	return &Server{
		cfg:        cfg,
		store:      deps.Store,
		cache:      deps.Cache,
		resolver:   tenant.NewResolver(directory, cfg.ReservedSubdomains, cfg.TenantBypassPaths),
		authn:      authn,
		accounts:   accounts,
		metrics:    metrics,
		logger:     logger,
		translator: apperr.Translator{Production: cfg.IsProduction(), Now: now},
		limiter:    newRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		proxies:    proxies,
		now:        now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.recoverPanics)
	r.Use(s.logRequests)
	r.Use(s.metrics.Instrument)
	r.Use(securityHeaders)
	r.Use(cors(s.cfg.CORSAllowedOrigins))
	r.Use(maxBodyBytes(s.cfg.MaxBodyBytes))

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Use(s.resolveTenant)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.With(s.authenticate).Get("/me", s.handleMe)
			r.With(s.authenticate).Post("/logout", s.handleLogout)
		})

		r.Route("/universities", func(r chi.Router) {
			r.Get("/", s.handleListUniversities)
			r.Get("/{id}", s.handleGetUniversity)
			r.With(s.authenticate, s.authorize(authz.Roles(model.RoleSuperAdmin), nil)).
				Post("/", s.handleCreateUniversity)
			r.With(s.authenticate, s.authorize(authz.Roles(model.RoleSuperAdmin, model.RoleUniversityAdmin), nil)).
				Put("/{id}", s.handleUpdateUniversity)
			r.With(s.authenticate, s.authorize(authz.Roles(model.RoleSuperAdmin, model.RoleUniversityAdmin), nil)).
				Get("/{id}/stats", s.handleUniversityStats)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.With(s.authorize(authz.TenantScope(), nil)).Handle("/users", http.HandlerFunc(s.handlePlaceholder))
			r.With(s.authorize(authz.TenantScope(), nil)).Handle("/users/*", http.HandlerFunc(s.handlePlaceholder))
			r.With(s.authorize(authz.TenantScope(), nil)).Handle("/analytics", http.HandlerFunc(s.handlePlaceholder))
			r.With(s.authorize(authz.TenantScope(), nil)).Handle("/analytics/*", http.HandlerFunc(s.handlePlaceholder))

			r.Get("/courses", s.handlePlaceholder)
			r.With(s.authorize(authz.CourseAccess(s.store), courseID)).Get("/courses/{courseId}", s.handlePlaceholder)

			for _, prefix := range []string{"/assignments", "/exams", "/discussions", "/grades", "/notifications", "/uploads"} {
				r.Handle(prefix, http.HandlerFunc(s.handlePlaceholder))
				r.Handle(prefix+"/*", http.HandlerFunc(s.handlePlaceholder))
			}
		})
	})

	return r
}

type healthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "OK",
		Timestamp:   s.now().UTC().Format(time.RFC3339),
		Environment: s.cfg.Environment,
		Version:     s.cfg.Version,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.fail(w, r, apperr.New(apperr.KindResourceNotFound, apperr.MsgNotFound))
}

func (s *Server) handlePlaceholder(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, apperr.MsgNotImplementedYet, nil)
}

// resolveTenant attaches the university named by header or subdomain.
// Only register and login accept a body-supplied domain, and they resolve it
// themselves. Requests that name no university continue without one; a named
// but unknown or inactive university stops the request.
func (s *Server) resolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.resolver.Bypassed(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		t, err := s.resolver.Resolve(r.Context(), r, "")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if t == nil {
			s.logger.Debug("no university named in request", zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
			return
		}
		tenant.SetHeaders(w, t)
		next.ServeHTTP(w, r.WithContext(tenant.WithTenant(r.Context(), t)))
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		p, err := s.authn.Authenticate(r.Context(), token)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

// resourceFunc extracts the resource id a check applies to.
type resourceFunc func(r *http.Request) (string, error)

func courseID(r *http.Request) (string, error) {
	if id := chi.URLParam(r, "courseId"); id != "" {
		return id, nil
	}
	return peekJSONField(r, "course_id")
}

func (s *Server) authorize(check authz.Authorizer, resource resourceFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := authz.Request{
				Principal: auth.PrincipalFromContext(r.Context()),
				Tenant:    tenant.FromContext(r.Context()),
			}
			if resource != nil {
				id, err := resource(r)
				if err != nil {
					s.fail(w, r, err)
					return
				}
				req.ResourceID = id
			}
			if err := check.Authorize(r.Context(), req); err != nil {
				s.fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
