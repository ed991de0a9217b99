package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/observability"
)

const (
	// defaultMaxAttempts is the default maximum number of delivery attempts for outbox events.
	defaultMaxAttempts = 5

	defaultServiceName = "research-portal-service"
)

// EmitterConfig configures the Emitter with service context.
type EmitterConfig struct {
	// ServiceName identifies the source service.
	ServiceName string
	// MaxAttempts bounds delivery retries per event.
	MaxAttempts int
}

// Envelope is the JSON document stored as the outbox payload and written to Kafka.
type Envelope struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	Source        string                 `json:"source"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
	Data          domain.TransitionEvent `json:"data"`
}

// Emitter creates outbox events from workflow transitions.
type Emitter struct {
	config EmitterConfig
}

// NewEmitter creates a new Emitter, filling defaults for empty fields.
func NewEmitter(config EmitterConfig) *Emitter {
	if config.ServiceName == "" {
		config.ServiceName = defaultServiceName
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	return &Emitter{config: config}
}

// Emit builds a pending outbox event for event. Request and correlation IDs
// are copied from ctx when present.
func (e *Emitter) Emit(ctx context.Context, event domain.TransitionEvent) (*domain.OutboxEvent, error) {
	if event.PaperID == uuid.Nil {
		return nil, fmt.Errorf("paper_id is required")
	}
	if event.ToStatus == "" {
		return nil, fmt.Errorf("to_status is required")
	}

	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	eventType := event.EventType()
	envelope := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        e.config.ServiceName,
		CorrelationID: observability.CorrelationIDFromContext(ctx),
		RequestID:     observability.RequestIDFromContext(ctx),
		OccurredAt:    occurred,
		Data:          event,
	}

	outboxEvent, err := domain.NewOutboxEvent(eventType, event.PaperID.String(), domain.AggregateTypePaper, envelope, e.config.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return outboxEvent, nil
}
