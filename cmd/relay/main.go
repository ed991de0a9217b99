// Package main provides the entry point for the outbox relay that publishes
// workflow notifications to Kafka.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixir/research-portal-service/internal/config"
	"github.com/helixir/research-portal-service/internal/database"
	"github.com/helixir/research-portal-service/internal/observability"
	"github.com/helixir/research-portal-service/internal/outbox"
	"github.com/helixir/research-portal-service/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "relay").Logger()
	logger.Info().Msg("research-portal-service relay starting")

	if cfg.Storage.Driver != config.StorageDriverPostgres {
		return fmt.Errorf("relay requires the postgres storage driver, got %q", cfg.Storage.Driver)
	}
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("relay requires kafka.enabled")
	}

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	relay := outbox.NewRelay(
		repository.NewPgOutboxRepository(db),
		outbox.NewKafkaWriter(cfg.Kafka),
		cfg.Outbox,
		metrics,
		logger,
	)
	defer func() {
		if err := relay.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close kafka writer")
		}
	}()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	logger.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Msg("research-portal-service relay is ready")

	runErr := relay.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("research-portal-service relay shutdown complete")
	return runErr
}
