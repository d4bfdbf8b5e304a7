package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/usermgmt/usermgmt/internal/config"
	"github.com/usermgmt/usermgmt/internal/handler"
	"github.com/usermgmt/usermgmt/internal/metrics"
	"github.com/usermgmt/usermgmt/internal/middleware"
)

// keyService issues, validates and revokes API keys.
type keyService interface {
	handler.KeyIssuer
	middleware.KeyValidator
}

type routerDeps struct {
	Config  *config.Config
	Logger  *slog.Logger
	Users   handler.UserManager
	Keys    keyService
	Limiter middleware.RateLimiter
	Metrics metrics.Recorder
	DB      handler.HealthChecker
	Cache   handler.HealthChecker
}

// newRouter configures the chi router with all routes and middleware.
func newRouter(deps routerDeps) *chi.Mux {
	cfg := deps.Config
	logger := deps.Logger

	healthHandler := handler.NewHealthHandler(deps.DB, deps.Cache, logger)
	metricsHandler := handler.NewMetricsHandler(deps.Metrics)
	authHandler := handler.NewAuthHandler(deps.Keys, logger)
	userHandler := handler.NewUserHandler(deps.Users, logger)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:         logger,
		Limiter:        deps.Limiter,
		Metrics:        deps.Metrics,
		LoginEnabled:   cfg.RateLimitLoginEnabled,
		LoginPerMinute: cfg.RateLimitLoginPerMinute,
		LoginBurst:     cfg.RateLimitLoginBurst,
		APIEnabled:     cfg.RateLimitAPIEnabled,
		APIPerMinute:   cfg.RateLimitAPIPerMinute,
		APIBurst:       cfg.RateLimitAPIBurst,
	}

	authCfg := middleware.AuthConfig{
		Logger:    logger,
		Validator: deps.Keys,
		Metrics:   deps.Metrics,
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Operational endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	// Key lifecycle. Logout identifies the key by its own header, so it is not gated.
	r.With(middleware.RateLimitLogin(rateLimitCfg)).Post("/login", authHandler.Login)
	r.Delete("/logout", authHandler.Logout)

	r.Route("/users", func(r chi.Router) {
		r.Use(middleware.Auth(authCfg))
		r.Use(middleware.RateLimitAPI(rateLimitCfg))

		r.Get("/", userHandler.List)
		r.Post("/", userHandler.Create)
		r.Get("/byName/{username}", userHandler.GetByName)
		r.Get("/{id}", userHandler.Get)
		r.Put("/{id}", userHandler.Update)
		r.Delete("/{id}", userHandler.Delete)
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}
