// Package directory keeps the faculty roster in sync with the campus user
// directory by consuming its Kafka change feed.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/observability"
)

// Event types published by the user directory.
const (
	EventFacultyUpserted    = "faculty.upserted"
	EventFacultyDeactivated = "faculty.deactivated"
)

// FacultyEvent is a roster change from the user directory.
type FacultyEvent struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
}

// RosterStore persists faculty members. repository.ReferenceRepository satisfies it.
type RosterStore interface {
	UpsertFacultyMember(ctx context.Context, member domain.FacultyMember) error
	DeactivateFacultyMember(ctx context.Context, id string) error
}

// CacheInvalidator drops cached faculty lists after a roster change.
type CacheInvalidator interface {
	InvalidateFaculty()
}

// MessageReader reads messages from a broker. *kafka.Reader satisfies it.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Config holds configuration for the directory listener.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the Kafka topic for faculty roster events.
	Topic string
	// GroupID is the consumer group ID.
	GroupID string
}

// Read failure backoff bounds. The delay doubles per consecutive failure.
const (
	defaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// Listener consumes roster events and applies them to the store.
type Listener struct {
	reader     MessageReader
	store      RosterStore
	cache      CacheInvalidator
	metrics    *observability.Metrics
	logger     zerolog.Logger
	retryDelay time.Duration
	maxDelay   time.Duration
}

// NewKafkaReader builds the consumer-group reader for cfg.
func NewKafkaReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
}

// NewListener creates a new directory listener. cache may be nil.
func NewListener(reader MessageReader, store RosterStore, cache CacheInvalidator, metrics *observability.Metrics, logger zerolog.Logger) *Listener {
	return &Listener{
		reader:     reader,
		store:      store,
		cache:      cache,
		metrics:    metrics,
		logger:     logger.With().Str("component", "directory_listener").Logger(),
		retryDelay: defaultRetryDelay,
		maxDelay:   maxRetryDelay,
	}
}

// Run starts the listener loop. Blocks until context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting directory listener")

	delay := l.retryDelay
	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("directory listener stopped via context cancellation")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Dur("retry_in", delay).Msg("failed to read message from Kafka")
			select {
			case <-ctx.Done():
				l.logger.Info().Msg("directory listener stopped via context cancellation")
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, l.maxDelay)
			continue
		}
		delay = l.retryDelay

		l.logger.Debug().
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("received directory event")

		var event FacultyEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			l.metrics.RecordDirectoryEvent("malformed")
			l.logger.Error().Err(err).
				Str("raw_value", string(msg.Value)).
				Msg("failed to unmarshal directory event")
			continue
		}

		if err := l.Handle(ctx, event); err != nil {
			l.metrics.RecordDirectoryEvent("error")
			l.logger.Error().Err(err).
				Str("type", event.Type).
				Str("faculty_id", event.ID).
				Msg("failed to handle directory event")
			continue
		}
		l.metrics.RecordDirectoryEvent("applied")
	}
}

// Handle applies a single roster event.
func (l *Listener) Handle(ctx context.Context, event FacultyEvent) error {
	id := strings.TrimSpace(event.ID)
	if id == "" {
		return domain.NewValidationError("id", "faculty id is required")
	}

	switch event.Type {
	case EventFacultyUpserted:
		if strings.TrimSpace(event.Name) == "" {
			return domain.NewValidationError("name", "faculty name is required")
		}
		member := domain.FacultyMember{
			ID:         id,
			Name:       strings.TrimSpace(event.Name),
			Email:      strings.TrimSpace(event.Email),
			Department: strings.TrimSpace(event.Department),
			Active:     true,
		}
		if err := l.store.UpsertFacultyMember(ctx, member); err != nil {
			return fmt.Errorf("upsert faculty member: %w", err)
		}
	case EventFacultyDeactivated:
		err := l.store.DeactivateFacultyMember(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			l.logger.Debug().Str("faculty_id", id).Msg("deactivation for unknown faculty member ignored")
			return nil
		}
		if err != nil {
			return fmt.Errorf("deactivate faculty member: %w", err)
		}
	default:
		return domain.NewValidationError("type", "unknown directory event type "+event.Type)
	}

	if l.cache != nil {
		l.cache.InvalidateFaculty()
	}

	l.logger.Info().
		Str("type", event.Type).
		Str("faculty_id", id).
		Msg("applied directory event")
	return nil
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing directory listener")
	return l.reader.Close()
}
