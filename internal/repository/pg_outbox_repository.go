package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/research-portal-service/internal/domain"
)

// OutboxRepository stores events until the relay delivers them.
type OutboxRepository interface {
	// Insert stores a pending event.
	Insert(ctx context.Context, event *domain.OutboxEvent) error

	// ClaimPending leases up to limit pending events for the given duration and
	// increments their attempt counters. Rows leased by another relay are skipped.
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxEvent, error)

	// MarkPublished records successful delivery.
	MarkPublished(ctx context.Context, ids []uuid.UUID) error

	// MarkFailed records a delivery error. Events that used all attempts move to failed.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Compile-time interface verification.
var _ OutboxRepository = (*PgOutboxRepository)(nil)

// PgOutboxRepository is a PostgreSQL implementation of OutboxRepository.
type PgOutboxRepository struct {
	db DBTX
}

// NewPgOutboxRepository creates a new PostgreSQL outbox repository.
func NewPgOutboxRepository(db DBTX) *PgOutboxRepository {
	return &PgOutboxRepository{db: db}
}

const outboxColumns = `id, aggregate_id, aggregate_type, event_type, payload, status,
	attempts, max_attempts, last_error, created_at, published_at`

// Insert stores a pending event.
func (r *PgOutboxRepository) Insert(ctx context.Context, event *domain.OutboxEvent) error {
	if event == nil {
		return domain.NewValidationError("event", "event cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (id, aggregate_id, aggregate_type, event_type, payload, status, attempts, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		event.Payload,
		string(event.Status),
		event.Attempts,
		event.MaxAttempts,
		event.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.NewAlreadyExistsError("outbox_event", event.ID.String())
		}
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// ClaimPending leases pending events in creation order.
func (r *PgOutboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxEvent, error) {
	if limit <= 0 {
		return []*domain.OutboxEvent{}, nil
	}

	query := `
		UPDATE outbox_events SET
			attempts = attempts + 1,
			locked_until = NOW() + $2 * INTERVAL '1 millisecond'
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE status = 'pending' AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns

	rows, err := r.db.Query(ctx, query, limit, lease.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.OutboxEvent, 0, limit)
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox events: %w", err)
	}

	return events, nil
}

// MarkPublished records successful delivery.
func (r *PgOutboxRepository) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE outbox_events SET
			status = 'published',
			published_at = $2,
			locked_until = NULL,
			last_error = NULL
		WHERE id = ANY($1)`

	if _, err := r.db.Exec(ctx, query, ids, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark outbox events published: %w", err)
	}
	return nil
}

// MarkFailed releases the lease and records the error.
func (r *PgOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE outbox_events SET
			status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
			locked_until = NULL,
			last_error = $2
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("outbox_event", id.String())
	}
	return nil
}

func scanOutboxEvent(row pgx.Row) (*domain.OutboxEvent, error) {
	var (
		e         domain.OutboxEvent
		status    string
		lastError *string
	)
	err := row.Scan(
		&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Payload, &status,
		&e.Attempts, &e.MaxAttempts, &lastError, &e.CreatedAt, &e.PublishedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = domain.OutboxStatus(status)
	e.LastError = derefString(lastError)
	return &e, nil
}
