// Package repository provides data access interfaces and implementations
// for the research portal service.
//
// # Repository Interfaces
//
//   - PaperRepository: research submissions and their append-only review trail
//   - ReferenceRepository: categories and faculty members
//   - OutboxRepository: transition events awaiting delivery to Kafka
//
// PostgreSQL implementations are the default. MemoryPaperRepository and
// MemoryReferenceRepository back the "memory" storage driver used in
// development and tests.
//
// # Error Handling
//
// Methods return domain errors (domain.ErrNotFound, domain.ErrAlreadyExists,
// domain.ErrConflict) wrapped with context using fmt.Errorf and %w.
//
// # Legacy Statuses
//
// Older rows may hold "pending" or "under_review". Every read passes the
// stored value through domain.ParseStatus, so callers only ever see
// canonical statuses.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-portal-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    return repository.NewPgOutboxRepository(tx).Insert(ctx, event)
//	})
type DBTX = database.DBTX

// txBeginner is implemented by pools (*pgxpool.Pool, *database.DB) but not by
// pgx.Tx. Methods that need row locks open their own transaction when the
// underlying DBTX supports it.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
)

// inTx runs fn inside a transaction when db can begin one, otherwise directly on db.
func inTx(ctx context.Context, db DBTX, fn func(DBTX) error) error {
	beginner, ok := db.(txBeginner)
	if !ok {
		return fn(db)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// derefString returns the pointed-to string or "".
func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
