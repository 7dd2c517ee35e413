package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loomworks/loom/pkg/config"
	"github.com/loomworks/loom/pkg/observability"
	"github.com/loomworks/loom/pkg/session"
	"github.com/loomworks/loom/pkg/storage"
)

var version = "dev"

var (
	schedule = flag.String("schedule", "*/15 * * * *", "Cron schedule for expired session purges (default: every 15 minutes)")
	runOnce  = flag.Bool("run-once", false, "Run one purge and exit")
	timeout  = flag.Duration("timeout", 5*time.Minute, "Timeout for a single purge run")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "loom-sweeper: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithField("version", version).Info("Starting loom-sweeper")

	var sessions session.Store
	switch cfg.Auth.SessionBackend {
	case config.SessionBackendRedis:
		client, err := storage.NewRedisClient(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		sessions = session.NewRedisStore(client, cfg.Auth.TokenTTL)
	default:
		db, err := storage.NewPostgresDB(cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer db.Close()
		sessions = session.NewPostgresStore(db)
	}
	logger.WithField("backend", cfg.Auth.SessionBackend).Info("Session store initialized")

	if *runOnce {
		return purge(sessions, logger)
	}

	c := cron.New()
	if _, err := c.AddFunc(*schedule, func() {
		if err := purge(sessions, logger); err != nil {
			logger.WithError(err).Error("Session purge failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule purge: %w", err)
	}

	c.Start()
	logger.WithField("schedule", *schedule).Info("Sweeper started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")
	<-c.Stop().Done()
	logger.Info("Sweeper stopped")
	return nil
}

func purge(sessions session.Store, logger *observability.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	purged, err := sessions.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"purged":   purged,
		"duration": time.Since(start).String(),
	}).Info("Expired sessions purged")
	return nil
}
