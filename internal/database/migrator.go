package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// migrationsTable records the applied schema version.
const migrationsTable = "schema_migrations"

// Migrator applies the SQL files under migrations/ to the paper store.
type Migrator struct {
	migrate *migrate.Migrate
	sqlDB   *sql.DB
	logger  zerolog.Logger
}

// NewMigrator binds golang-migrate to db's pool and the migrations directory.
func NewMigrator(db *DB, migrationsPath string, logger zerolog.Logger) (*Migrator, error) {
	switch {
	case db == nil:
		return nil, fmt.Errorf("database is required")
	case db.pool == nil:
		return nil, fmt.Errorf("database pool not initialized")
	case migrationsPath == "":
		return nil, fmt.Errorf("migrations path is required")
	}
	if _, err := os.Stat(migrationsPath); err != nil {
		return nil, fmt.Errorf("migrations path validation failed: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &Migrator{
		migrate: m,
		sqlDB:   sqlDB,
		logger:  logger.With().Str("component", "migrator").Str("path", migrationsPath).Logger(),
	}, nil
}

// AutoMigrate applies all pending migrations and closes the migrator.
// It backs the database.migration_auto_run setting.
func AutoMigrate(db *DB, migrationsPath string, logger zerolog.Logger) error {
	m, err := NewMigrator(db, migrationsPath, logger)
	if err != nil {
		return err
	}
	return errors.Join(m.Up(), m.Close())
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	m.logger.Info().Msg("applying pending migrations")
	if err := m.settle(m.migrate.Up(), "apply migrations"); err != nil {
		return err
	}
	m.logVersion("schema up to date")
	return nil
}

// Down rolls back every migration, dropping the paper tables.
func (m *Migrator) Down() error {
	m.logger.Warn().Msg("rolling back all migrations")
	if err := m.settle(m.migrate.Down(), "roll back migrations"); err != nil {
		return err
	}
	m.logVersion("schema rolled back")
	return nil
}

// Steps applies n migrations; negative n rolls back.
func (m *Migrator) Steps(n int) error {
	m.logger.Info().Int("steps", n).Msg("stepping migrations")
	err := m.migrate.Steps(n)
	// Stepping past the newest file surfaces as a missing source file.
	if errors.Is(err, os.ErrNotExist) {
		m.logger.Info().Msg("no more migrations available")
		return nil
	}
	if err := m.settle(err, "step migrations"); err != nil {
		return err
	}
	m.logVersion("migration steps applied")
	return nil
}

// Version returns the applied version and dirty flag. An empty schema is version 0.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Force records version as applied without running it, clearing the dirty flag.
func (m *Migrator) Force(version int) error {
	m.logger.Warn().Int("version", version).Msg("forcing schema version")
	return m.migrate.Force(version)
}

// Close releases the migration source and the sql.DB wrapper.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if m.sqlDB != nil {
		if err := m.sqlDB.Close(); err != nil && dbErr == nil {
			dbErr = err
		}
	}
	if sourceErr != nil {
		sourceErr = fmt.Errorf("failed to close source: %w", sourceErr)
	}
	if dbErr != nil {
		dbErr = fmt.Errorf("failed to close database: %w", dbErr)
	}
	return errors.Join(sourceErr, dbErr)
}

// settle treats ErrNoChange as success and wraps anything else.
func (m *Migrator) settle(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info().Str("op", op).Msg("nothing to migrate")
		return nil
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (m *Migrator) logVersion(msg string) {
	version, dirty, err := m.Version()
	if err != nil {
		m.logger.Warn().Err(err).Msg("could not read schema version")
		return
	}
	m.logger.Info().Uint("version", version).Bool("dirty", dirty).Msg(msg)
}
