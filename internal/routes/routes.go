package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/toiletmap/toiletmap-api/internal/auth"
	"github.com/toiletmap/toiletmap-api/internal/handlers"
	"github.com/toiletmap/toiletmap-api/internal/middleware"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Loos    *handlers.LooHandler
	Areas   *handlers.AreaHandler
	Session *handlers.SessionHandler
	Auth    *handlers.AuthHandler
	Admin   *handlers.AdminHandler
	Health  *handlers.HealthHandler
}

// Config holds router-wide settings
type Config struct {
	Env            string
	AllowedOrigins []string
	IPConfig       *pkghttp.IPConfig
	GlobalPerMin   int           // flood guard; 0 disables it
	RequestTimeout time.Duration // 0 means 60s
}

// NewRouter builds the full middleware chain and registers all routes
func NewRouter(config Config, h Handlers, authMW *auth.Middleware, limiter *middleware.RateLimiter, logger *slog.Logger) http.Handler {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.SecureLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: config.Env}))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(config.AllowedOrigins)))
	if config.GlobalPerMin > 0 {
		router.Use(middleware.FloodGuard(config.GlobalPerMin, config.IPConfig))
	}
	router.Use(chimiddleware.Timeout(config.RequestTimeout))

	RegisterRoutes(router, h, authMW, limiter)

	router.Get("/health", h.Health.Health)
	router.Handle("/metrics", promhttp.Handler())

	return router
}

// RegisterRoutes registers all application routes. Credentials are resolved
// before the limiter runs so writes can be keyed by user.
func RegisterRoutes(router chi.Router, h Handlers, authMW *auth.Middleware, limiter *middleware.RateLimiter) {
	read := limiter.Limit(middleware.ClassRead)
	write := limiter.Limit(middleware.ClassWrite)
	admin := limiter.Limit(middleware.ClassAdmin)
	login := limiter.Limit(middleware.ClassAuth)

	router.Route("/api", func(r chi.Router) {
		r.Use(authMW.Resolve)

		// Public reads, optionally authenticated
		r.With(read).Get("/loos/search", h.Loos.Search)
		r.With(read).Get("/loos/metrics", h.Loos.Metrics)
		r.With(read).Get("/loos/{id}", h.Loos.Get)
		r.With(read).Get("/areas", h.Areas.List)

		// Contributors
		r.With(write, auth.RequireUser).Post("/loos", h.Loos.Create)
		r.With(write, auth.RequireUser).Put("/loos/{id}", h.Loos.Update)
		r.With(read, middleware.NoStore, auth.RequireUser).Get("/session", h.Session.Get)

		// Admin-only routes
		r.With(admin, authMW.RequireAdmin).Delete("/loos/{id}", h.Loos.Delete)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.NoStore)

		r.With(login).Get("/login", h.Auth.Login)
		r.With(login).Get("/callback", h.Auth.Callback)
		r.With(authMW.Resolve, login).Get("/logout", h.Auth.Logout)

		r.With(authMW.Resolve, admin, authMW.RequireAdminPage).Get("/", h.Admin.Page)
	})
}
