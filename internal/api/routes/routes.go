package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/labscribe/labscribe/backend/internal/api/guard"
	"github.com/labscribe/labscribe/backend/internal/api/handlers"
	"github.com/labscribe/labscribe/backend/internal/api/middleware"
	"github.com/labscribe/labscribe/backend/internal/config"
	"github.com/labscribe/labscribe/backend/internal/logger"
	"github.com/labscribe/labscribe/backend/internal/metrics"
	"github.com/labscribe/labscribe/backend/internal/models"
	"github.com/labscribe/labscribe/backend/internal/ratelimit"
	"github.com/labscribe/labscribe/backend/internal/services"
)

// Register wires middleware, services, and guarded API routes.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.SecurityEvent{},
		&models.Document{},
		&models.Report{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	// Shared rate-limit store: Redis when configured, otherwise the
	// process-local fallback suitable for a single instance.
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		store = ratelimit.NewRedisStore(client)
		logger.Log().WithField("addr", cfg.RedisAddr).Info("using redis rate-limit store")
	}
	limiter := ratelimit.New(store, ratelimit.DefaultRules())

	events := services.NewSecurityEventService(db)
	if cfg.AlertURL != "" {
		events.WithAlerter(services.NewAlertNotifier(cfg.AlertURL))
	}

	sessions := services.NewSessionService(db)
	detector := services.NewAnomalyDetector(db, events, sessions)
	authService := services.NewAuthService(db, events, sessions, detector, cfg.JWTSecret, cfg.ConcurrentSessionLimit)

	// Edge middleware, in rejection order: headers always attach first,
	// then the cheap gates run before anything touches a handler.
	router.Use(
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{IsDevelopment: !cfg.IsProduction()}),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Recovery(!cfg.IsProduction()),
		middleware.Authenticate(authService),
		middleware.AdminGate(events),
		middleware.GlobalRateLimit(limiter, events),
		middleware.BlockSuspiciousPaths(events),
		middleware.UploadGuard("/api/v1/uploads"),
		middleware.RequireSession("/app"),
		middleware.OriginCheck(cfg.AllowedOrigins, events),
	)

	router.GET("/api/v1/health", handlers.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	g := guard.New(events, limiter, detector, cfg.IsProduction())

	authHandler := handlers.NewAuthHandler(authService, cfg.IsProduction())
	uploadHandler := handlers.NewUploadHandler(db, events, cfg.UploadDir)
	reportHandler := handlers.NewReportHandler(
		services.NewReportService(db, services.NewHTTPGenerator(cfg.GeneratorURL)),
		events,
	)
	clientErrorHandler := handlers.NewClientErrorHandler(events)
	securityEventsHandler := handlers.NewSecurityEventsHandler(events)

	authRule := &ratelimit.Rule{Requests: 10, Window: time.Minute}
	uploadRule := &ratelimit.Rule{Requests: 10, Window: time.Minute}
	apiRule := &ratelimit.Rule{Requests: 100, Window: time.Minute}

	api := router.Group("/api/v1")

	// Routes are registered with Any so the guard owns method semantics
	// and can answer 405 instead of gin's 404.
	api.Any("/auth/register", g.Protect(guard.RouteConfig{
		AllowedMethods: []string{http.MethodPost},
		RateLimit:      authRule,
	}, authHandler.Register))
	api.Any("/auth/login", g.Protect(guard.RouteConfig{
		AllowedMethods: []string{http.MethodPost},
		RateLimit:      authRule,
	}, authHandler.Login))
	api.Any("/auth/logout", g.Protect(guard.RouteConfig{
		RequireAuth:    true,
		AllowedMethods: []string{http.MethodPost},
		RateLimit:      apiRule,
	}, authHandler.Logout))
	api.Any("/auth/me", g.Protect(guard.RouteConfig{
		RequireAuth:    true,
		AllowedMethods: []string{http.MethodGet},
		RateLimit:      apiRule,
	}, authHandler.Me))

	api.Any("/uploads", g.Protect(guard.RouteConfig{
		RequireAuth:    true,
		AllowedMethods: []string{http.MethodPost},
		RateLimit:      uploadRule,
		Sensitive:      true,
		SkipBodyScan:   true, // multipart bodies are validated by upload rules
	}, uploadHandler.Upload))
	api.Any("/documents", g.Protect(guard.RouteConfig{
		RequireAuth:    true,
		AllowedMethods: []string{http.MethodGet},
		RateLimit:      apiRule,
	}, uploadHandler.List))

	api.Any("/reports/generate", g.Protect(guard.RouteConfig{
		RequireAuth:    true,
		AllowedMethods: []string{http.MethodPost},
		RateLimit:      uploadRule,
		Sensitive:      true,
	}, reportHandler.Generate))
	api.Any("/reports", g.Protect(guard.RouteConfig{
		RequireAuth:    true,
		AllowedMethods: []string{http.MethodGet},
		RateLimit:      apiRule,
	}, reportHandler.List))

	// The one deliberately unauthenticated guarded endpoint: browser crash
	// reporting has to work without a session.
	api.Any("/client-errors", g.Protect(guard.RouteConfig{
		AllowedMethods: []string{http.MethodPost},
		RateLimit:      &ratelimit.Rule{Requests: 30, Window: time.Minute},
	}, clientErrorHandler.Report))

	// Admin area: the AdminGate middleware already enforced the role.
	api.Any("/admin/security-events", g.Protect(guard.RouteConfig{
		RequireAuth:    true,
		AllowedMethods: []string{http.MethodGet},
		RateLimit:      apiRule,
	}, securityEventsHandler.List))

	return nil
}
