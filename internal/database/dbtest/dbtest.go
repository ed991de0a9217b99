//go:build integration

// Package dbtest starts a disposable PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/helixir/research-portal-service/internal/config"
	"github.com/helixir/research-portal-service/internal/database"
)

const (
	dbName     = "research_portal_test"
	dbUser     = "resportal"
	dbPassword = "test-password"
)

// StartPostgres runs postgres:17-alpine and returns a config pointing at it.
// The container is terminated when the test finishes.
func StartPostgres(t *testing.T) *config.DatabaseConfig {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	return &config.DatabaseConfig{
		Host:              host,
		Port:              port.Int(),
		Name:              dbName,
		User:              dbUser,
		Password:          dbPassword,
		SSLMode:           config.SSLModeDisable,
		MaxConns:          8,
		MinConns:          1,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}
}

// MigrationsPath returns the absolute path of the repository's migrations directory.
func MigrationsPath(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to resolve dbtest source path")
	}
	// internal/database/dbtest -> project root
	path := filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", path, err)
	}
	return path
}

// NewMigratedDB starts postgres, connects, and applies every migration.
func NewMigratedDB(t *testing.T) *database.DB {
	t.Helper()

	cfg := StartPostgres(t)
	db, err := database.New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(db.Close)

	if err := database.AutoMigrate(db, MigrationsPath(t), zerolog.Nop()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	return db
}
