package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/research-portal-service/internal/config"
	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/observability"
)

// Store is the outbox persistence the relay needs. repository.OutboxRepository satisfies it.
type Store interface {
	ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// MessageWriter writes messages to a broker. *kafka.Writer satisfies it.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds the writer the relay publishes through.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
	}
}

// Relay moves pending outbox events to Kafka.
type Relay struct {
	store   Store
	writer  MessageWriter
	cfg     config.OutboxConfig
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewRelay creates a relay.
func NewRelay(store Store, writer MessageWriter, cfg config.OutboxConfig, metrics *observability.Metrics, logger zerolog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 30 * time.Second
	}
	return &Relay{
		store:   store,
		writer:  writer,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With().Str("component", "outbox_relay").Logger(),
	}
}

// Run polls until ctx is cancelled. A full batch triggers an immediate re-poll.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().
		Dur("poll_interval", r.cfg.PollInterval).
		Int("batch_size", r.cfg.BatchSize).
		Msg("starting outbox relay")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped via context cancellation")
			return ctx.Err()
		case <-timer.C:
		}

		claimed, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("outbox relay iteration failed")
		}

		next := r.cfg.PollInterval
		if err == nil && claimed == r.cfg.BatchSize {
			next = 0
		}
		timer.Reset(next)
	}
}

// RunOnce claims one batch and delivers it. It returns the number of events claimed.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.ClaimPending(ctx, r.cfg.BatchSize, r.cfg.LeaseDuration)
	if err != nil {
		return 0, fmt.Errorf("claim pending: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		if err := r.writer.WriteMessages(ctx, toMessage(event)); err != nil {
			r.fail(ctx, event, err)
			continue
		}
		published = append(published, event.ID)
	}

	if err := r.store.MarkPublished(ctx, published); err != nil {
		return len(events), fmt.Errorf("mark published: %w", err)
	}
	r.metrics.RecordOutboxPublished(len(published))

	r.logger.Debug().
		Int("claimed", len(events)).
		Int("published", len(published)).
		Msg("outbox batch delivered")

	return len(events), nil
}

// Close closes the underlying writer.
func (r *Relay) Close() error {
	return r.writer.Close()
}

func (r *Relay) fail(ctx context.Context, event *domain.OutboxEvent, cause error) {
	r.metrics.RecordOutboxFailed()

	logEvent := r.logger.Warn()
	if event.Exhausted() {
		logEvent = r.logger.Error()
	}
	logEvent.Err(cause).
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Int("attempts", event.Attempts).
		Int("max_attempts", event.MaxAttempts).
		Msg("failed to publish outbox event")

	if err := r.store.MarkFailed(ctx, event.ID, cause.Error()); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to record outbox failure")
	}
}

func toMessage(event *domain.OutboxEvent) kafka.Message {
	return kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.ID.String())},
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "aggregate_type", Value: []byte(event.AggregateType)},
		},
		Time: event.CreatedAt,
	}
}
