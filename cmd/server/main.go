// Package main provides the entry point for the research portal HTTP API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/helixir/research-portal-service/internal/auth"
	"github.com/helixir/research-portal-service/internal/config"
	"github.com/helixir/research-portal-service/internal/database"
	"github.com/helixir/research-portal-service/internal/directory"
	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/observability"
	"github.com/helixir/research-portal-service/internal/outbox"
	"github.com/helixir/research-portal-service/internal/repository"
	httpserver "github.com/helixir/research-portal-service/internal/server/http"
	"github.com/helixir/research-portal-service/internal/service"
	"github.com/helixir/research-portal-service/internal/workflow"
)

// healthServiceName is the service name reported by the gRPC health endpoint.
const healthServiceName = "research_portal"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// storage bundles the repositories chosen by the configured driver.
type storage struct {
	db        *database.DB
	papers    repository.PaperRepository
	reference repository.ReferenceRepository
	outbox    repository.OutboxRepository
}

func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		return &storage{
			papers:    repository.NewMemoryPaperRepository(),
			reference: repository.NewMemoryReferenceRepository(domain.DefaultCategories(), nil),
		}, nil
	}

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		if err := database.AutoMigrate(db, cfg.Database.MigrationPath, logger); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return &storage{
		db:        db,
		papers:    repository.NewPgPaperRepository(db),
		reference: repository.NewPgReferenceRepository(db),
		outbox:    repository.NewPgOutboxRepository(db),
	}, nil
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
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Str("storage", cfg.Storage.Driver).Msg("research-portal-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if store.db != nil {
		defer store.db.Close()
	}

	// Notifications are logged; with Postgres they are also queued for the relay.
	var hook workflow.NotificationHook = workflow.NewLogHook(logger)
	if store.outbox != nil {
		emitter := outbox.NewEmitter(outbox.EmitterConfig{
			ServiceName: "research-portal-service",
			MaxAttempts: cfg.Outbox.MaxAttempts,
		})
		hook = workflow.MultiHook{hook, outbox.NewHook(emitter, store.outbox)}
	}

	processor := workflow.NewProcessor(workflow.NewEngine(), hook, metrics, logger)
	referenceCache := service.NewReferenceCache(store.reference, cfg.Cache.ReferenceSize, cfg.Cache.ReferenceTTL, metrics)
	researchService := service.NewResearchService(store.papers, referenceCache, processor, metrics, logger)

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.Leeway)
	if err != nil {
		return fmt.Errorf("create token verifier: %w", err)
	}

	var dbHealth httpserver.HealthChecker
	if store.db != nil {
		dbHealth = store.db
	}

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		TrackRPS:        cfg.RateLimit.TrackRPS,
		TrackBurst:      cfg.RateLimit.TrackBurst,
		MaxClients:      cfg.RateLimit.MaxClients,
		ClientTTL:       cfg.RateLimit.ClientTTL,
	}
	httpSrv := httpserver.NewServer(httpCfg, researchService, verifier, dbHealth, metrics, logger)

	// gRPC carries only the standard health service for orchestrators.
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Minute,
			Time:                  5 * time.Minute,
			Timeout:               1 * time.Minute,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Minute,
			PermitWithoutStream: true,
		}),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcAddr := cfg.Server.GRPCAddress()
	grpcListener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("listen on gRPC port: %w", err)
	}

	// Set up Prometheus metrics handler on a separate port if configured.
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
	}

	// Keep the faculty roster in sync with the campus directory.
	var listener *directory.Listener
	if cfg.Kafka.DirectoryEnabled {
		reader := directory.NewKafkaReader(directory.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.DirectoryTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		listener = directory.NewListener(reader, store.reference, referenceCache, metrics, logger)
	}

	// Channel to collect server errors.
	errCh := make(chan error, 4)

	go func() {
		logger.Info().Str("address", grpcAddr).Msg("gRPC health server starting")
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	if listener != nil {
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("directory listener error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().
		Str("grpc_address", grpcAddr).
		Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("research-portal-service is ready")

	// Wait for shutdown signal or server error.
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server error")
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down research-portal-service")
	healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	if listener != nil {
		if err := listener.Close(); err != nil {
			logger.Error().Err(err).Msg("directory listener close error")
		}
	}

	// Gracefully stop gRPC server with timeout.
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info().Msg("gRPC server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn().Msg("gRPC server forced shutdown due to timeout")
		grpcServer.Stop()
	}

	logger.Info().Msg("research-portal-service shutdown complete")
	return runErr
}
