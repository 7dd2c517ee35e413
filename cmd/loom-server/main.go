package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/loomworks/loom/pkg/api"
	"github.com/loomworks/loom/pkg/auth"
	"github.com/loomworks/loom/pkg/avatar"
	"github.com/loomworks/loom/pkg/config"
	"github.com/loomworks/loom/pkg/middleware"
	"github.com/loomworks/loom/pkg/observability"
	"github.com/loomworks/loom/pkg/product"
	"github.com/loomworks/loom/pkg/session"
	"github.com/loomworks/loom/pkg/storage"
	"github.com/loomworks/loom/pkg/user"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "loom-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", version).Info("Starting loom-server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if providers != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := observability.ShutdownOTel(shutdownCtx, providers, logger); err != nil {
				logger.WithError(err).Warn("Tracing shutdown failed")
			}
		}()
	}

	db, err := storage.NewPostgresDB(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var redisClient *redis.Client
	needRedis := cfg.Auth.SessionBackend == config.SessionBackendRedis || cfg.Storage.CacheEnabled
	if needRedis && cfg.Storage.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(cfg.Storage)
		if err != nil {
			if cfg.Auth.SessionBackend == config.SessionBackendRedis {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			logger.WithError(err).Warn("Redis unavailable, running without cache")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	s3Client, err := storage.NewS3Client(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	var sessions session.Store
	switch cfg.Auth.SessionBackend {
	case config.SessionBackendRedis:
		if redisClient == nil {
			return errors.New("redis session backend requires a redis connection")
		}
		sessions = session.NewRedisStore(redisClient, cfg.Auth.TokenTTL)
	default:
		sessions = session.NewPostgresStore(db)
	}
	logger.WithField("backend", cfg.Auth.SessionBackend).Info("Session store initialized")

	users := user.NewStore(db)
	products := product.NewStore(db)

	metrics := observability.NewMetrics(nil)

	tokens := auth.NewService(sessions, users, cfg.Auth.TokenTTL, logger)
	avatars := avatar.NewCoordinator(s3Client, users, cfg.Auth.AvatarMaxSize, cfg.Auth.AvatarTimeout, metrics, logger)

	var cache *storage.Cache
	if cfg.Storage.CacheEnabled && redisClient != nil {
		cache = storage.NewCache(redisClient, cfg.Storage.CacheTTL["dashboard"])
		logger.Info("Dashboard cache enabled")
	}

	// Redis shares login throttle counters across replicas; single
	// instances fall back to in-process counting
	var loginLimiter middleware.Limiter
	if redisClient != nil {
		loginLimiter = middleware.NewRedisLimiter(redisClient, middleware.LoginThrottleConfig(), "throttle")
	} else {
		loginLimiter = middleware.NewMemoryLimiter(middleware.LoginThrottleConfig())
	}

	server := api.NewServer(api.Deps{
		Tokens:       tokens,
		Users:        users,
		Products:     products,
		Avatars:      avatars,
		Cache:        cache,
		Metrics:      metrics,
		Logger:       logger,
		LoginLimiter: loginLimiter,
		CORSOrigins:  cfg.Server.CORSOrigins,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db, redisClient, version)
	health.AddDependency("s3", s3Client)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				stats := db.Stats()
				metrics.DBConnectionsActive.Set(float64(stats.InUse))
				metrics.DBConnectionsIdle.Set(float64(stats.Idle))
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var shutdownErr error
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("api server shutdown: %w", err)
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil && shutdownErr == nil {
			shutdownErr = fmt.Errorf("health server shutdown: %w", err)
		}
		return shutdownErr
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Server stopped")
	return nil
}
