package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/toiletmap/toiletmap-api/internal/auth"
	"github.com/toiletmap/toiletmap-api/internal/background"
	"github.com/toiletmap/toiletmap-api/internal/config"
	"github.com/toiletmap/toiletmap-api/internal/database"
	"github.com/toiletmap/toiletmap-api/internal/handlers"
	"github.com/toiletmap/toiletmap-api/internal/metrics"
	"github.com/toiletmap/toiletmap-api/internal/middleware"
	"github.com/toiletmap/toiletmap-api/internal/ratelimit"
	"github.com/toiletmap/toiletmap-api/internal/repositories"
	"github.com/toiletmap/toiletmap-api/internal/routes"
	"github.com/toiletmap/toiletmap-api/internal/services"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
	pkglogger "github.com/toiletmap/toiletmap-api/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("rate_limit_backend", cfg.RateLimit.Backend),
		slog.Bool("live_admin_checks", cfg.Auth0.HasManagementCredentials()),
	)

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if err := metrics.RegisterPoolStats(prometheus.DefaultRegisterer, func() metrics.PoolStats { return db.Stats() }); err != nil {
		logger.Warn("failed to register pool metrics", slog.Any("error", err))
	}

	// Initialize repositories and services
	looService := services.NewLooService(repositories.NewLooRepository(db.Pool), logger)
	areaService := services.NewAreaService(repositories.NewAreaRepository(db.Pool), logger)

	// Rate limiting
	memoryLimiter := ratelimit.NewMemoryLimiter(ratelimit.WithSweepThreshold(cfg.RateLimit.SweepThreshold))
	var limiter ratelimit.Limiter = memoryLimiter
	if cfg.RateLimit.Backend == "redis" {
		client, err := ratelimit.NewRedisClient(cfg.RateLimit.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		defer client.Close()
		limiter = ratelimit.NewRedisLimiter(client, memoryLimiter, logger)
	}
	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	rateLimiter := middleware.NewRateLimiter(limiter, middleware.RateLimitConfig{
		Read:  middleware.Budget(cfg.RateLimit.Read),
		Write: middleware.Budget(cfg.RateLimit.Write),
		Admin: middleware.Budget(cfg.RateLimit.Admin),
		Auth:  middleware.Budget(cfg.RateLimit.Auth),
	}, ipConfig, logger)

	// Identity provider
	issuer := cfg.Auth0.Issuer()
	httpClient := &http.Client{Timeout: cfg.Auth0.HTTPTimeout}

	keys := auth.NewKeySet(issuer+".well-known/jwks.json", httpClient, cfg.Auth0.JWKSCacheTTL)
	verifier := auth.NewVerifier(issuer, keys, auth.DefaultLeeway)
	sessions := auth.NewCookieStore(auth.CookieConfig{
		Domain: cfg.Cookie.Domain,
		Secure: cfg.Cookie.Secure,
		MaxAge: cfg.Cookie.MaxAge,
	})
	userInfo := auth.NewUserInfoClient(issuer, httpClient, cfg.Auth0.UserInfoCacheSize, cfg.Auth0.UserInfoCacheTTL)

	var lookup auth.PermissionLookup
	if cfg.Auth0.HasManagementCredentials() {
		lookup = auth.NewManagementClient(issuer, cfg.Auth0.Audience, cfg.Auth0.ManagementClientID, cfg.Auth0.ManagementClientSecret, httpClient)
	}
	permissionCache := auth.NewPermissionCache(cfg.Auth0.PermissionCacheTTL, nil)
	gate := auth.NewGate(cfg.Auth0.AdminPermission, lookup, permissionCache, logger)

	auditLogger := pkglogger.NewAuditLogger(logger)
	resolver := auth.NewResolver(verifier, sessions, userInfo, cfg.Auth0.Audience, cfg.Auth0.ClientID, logger)
	authMiddleware := auth.NewMiddleware(resolver, gate, sessions, auditLogger, ipConfig, logger)

	// Initialize handlers
	handlers.ExposeErrorDetails(cfg.Server.Env == "development")
	oauthConfig := handlers.NewOAuthConfig(issuer, cfg.Auth0.ClientID, cfg.Auth0.ClientSecret, cfg.Server.BaseURL, cfg.Auth0.Scope)
	h := routes.Handlers{
		Loos:    handlers.NewLooHandler(looService, auditLogger),
		Areas:   handlers.NewAreaHandler(areaService),
		Session: handlers.NewSessionHandler(gate),
		Auth: handlers.NewAuthHandler(oauthConfig, verifier, sessions, gate, auditLogger, ipConfig, handlers.AuthHandlerConfig{
			Issuer:     issuer,
			ClientID:   cfg.Auth0.ClientID,
			Audience:   cfg.Auth0.Audience,
			BaseURL:    cfg.Server.BaseURL,
			Env:        cfg.Server.Env,
			HTTPClient: httpClient,
		}, logger),
		Admin:  handlers.NewAdminHandler(looService, logger),
		Health: handlers.NewHealthHandler(db, logger),
	}

	router := routes.NewRouter(routes.Config{
		Env:            cfg.Server.Env,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IPConfig:       ipConfig,
		GlobalPerMin:   cfg.RateLimit.GlobalPerMin,
	}, h, authMiddleware, rateLimiter, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(map[string]background.Sweeper{
		"rate_limit":  memoryLimiter,
		"permissions": permissionCache,
	}, logger, background.DefaultCleanupInterval)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
