// Package main is the entrypoint for the user management API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/usermgmt/usermgmt/internal/audit"
	"github.com/usermgmt/usermgmt/internal/auth"
	"github.com/usermgmt/usermgmt/internal/cache"
	"github.com/usermgmt/usermgmt/internal/config"
	"github.com/usermgmt/usermgmt/internal/metrics"
	"github.com/usermgmt/usermgmt/internal/model"
	"github.com/usermgmt/usermgmt/internal/repository"
	"github.com/usermgmt/usermgmt/internal/server"
	"github.com/usermgmt/usermgmt/internal/service"
	"github.com/usermgmt/usermgmt/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", sanitizeError(err, cfg.DatabaseURL, cfg.RedisURL))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		if err := repository.Migrate(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrations applied")
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return err
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to Redis",
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return err
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := metrics.NewPrometheus()
	hasher := auth.NewPasswordHasher(cfg.PasswordHashAlgorithm, cfg.BcryptCost)

	var auditor audit.Emitter = audit.Nop{}
	var publisher *audit.Publisher
	if cfg.AuditStreamEnabled {
		publisher = audit.NewPublisher(cacheClient.Client(), cfg.AuditStreamMaxLen, logger, recorder)
		auditor = publisher
	}

	userService := service.NewUserService(repo, hasher, recorder, logger,
		service.WithUserAuditor(auditor),
	)
	keyService := service.NewAPIKeyService(repo, repo, hasher, recorder, logger,
		service.WithSweepOnLogout(cfg.SweepOnLogout),
		service.WithAuditor(auditor),
	)

	if cfg.SeedDefaultUsers {
		seeded, err := userService.SeedDefaults(ctx, cfg.SeedPassword)
		if err != nil {
			return fmt.Errorf("seed default users: %w", err)
		}
		if seeded {
			logger.Warn("default users created; change their passwords before exposing this service")
		}
	}

	r := newRouter(routerDeps{
		Config:  cfg,
		Logger:  logger,
		Users:   userService,
		Keys:    keyService,
		Limiter: cacheClient,
		Metrics: recorder,
		DB:      repo,
		Cache:   cacheClient,
	})

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	if publisher != nil {
		srv.OnShutdown("audit", publisher.Close)
	}

	if cfg.KeySweepEnabled {
		sched := sweeper.NewScheduler(keyService, cfg.KeySweepSchedule, cfg.KeySweepTimeout, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		srv.OnShutdown("sweeper", func(context.Context) error {
			sched.Stop()
			return nil
		})
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"password_hash", hasher.Algorithm(),
		"key_ttl", model.APIKeyTTL.String(),
	)

	return srv.Run(ctx)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}
