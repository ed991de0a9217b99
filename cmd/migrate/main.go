// Package main provides a CLI tool for applying the research portal schema.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-portal-service/internal/config"
	"github.com/helixir/research-portal-service/internal/database"
	"github.com/helixir/research-portal-service/internal/observability"
)

var errNoAction = errors.New("no action specified")

// action is a single migrator operation selected on the command line.
type action struct {
	name string
	run  func(m *database.Migrator) error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseAction() (action, string, error) {
	up := flag.Bool("up", false, "Apply all pending migrations")
	down := flag.Bool("down", false, "Roll back all migrations")
	steps := flag.Int("steps", 0, "Apply N migrations (positive=up, negative=down)")
	version := flag.Bool("version", false, "Print the current schema version")
	force := flag.Int("force", -1, "Force the schema version after a failed migration")
	path := flag.String("path", "", "Override the migrations directory")
	flag.Parse()

	var selected []action
	if *up {
		selected = append(selected, action{"up", (*database.Migrator).Up})
	}
	if *down {
		selected = append(selected, action{"down", (*database.Migrator).Down})
	}
	if *steps != 0 {
		n := *steps
		selected = append(selected, action{"steps", func(m *database.Migrator) error { return m.Steps(n) }})
	}
	if *version {
		selected = append(selected, action{"version", func(*database.Migrator) error { return nil }})
	}
	if *force >= 0 {
		v := *force
		selected = append(selected, action{"force", func(m *database.Migrator) error { return m.Force(v) }})
	}

	switch len(selected) {
	case 0:
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nPlease specify one of: -up, -down, -steps N, -version, -force V")
		return action{}, "", errNoAction
	case 1:
		return selected[0], *path, nil
	default:
		return action{}, "", fmt.Errorf("specify only one action at a time")
	}
}

func run() error {
	act, pathOverride, err := parseAction()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Driver != config.StorageDriverPostgres {
		return fmt.Errorf("migrations only apply to the postgres storage driver, got %q", cfg.Storage.Driver)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = logger.With().Str("component", "migrate").Str("action", act.name).Logger()

	migrationDir := cfg.Database.MigrationPath
	if pathOverride != "" {
		migrationDir = pathOverride
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, migrationDir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	logger.Info().Str("path", migrationDir).Msg("running migration action")
	if err := act.run(migrator); err != nil {
		return fmt.Errorf("migrate %s: %w", act.name, err)
	}
	logVersion(migrator, logger)
	return nil
}

func logVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine schema version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current schema version")
}
