package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event type constants for outbox events.
const (
	EventTypePaperSubmitted    = "paper.submitted"
	EventTypePaperTransitioned = "paper.transitioned"
	EventTypePaperPublished    = "paper.published"
)

// AggregateTypePaper is the aggregate type for paper events.
const AggregateTypePaper = "research_paper"

// TransitionEvent describes a status change. It is the payload handed to notification hooks.
type TransitionEvent struct {
	PaperID    uuid.UUID `json:"paper_id"`
	FromStatus Status    `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status"`
	ActorID    string    `json:"actor_id"`
	ActorRole  Role      `json:"actor_role"`
	Action     Action    `json:"action,omitempty"`
	AuthorID   string    `json:"author_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventType classifies the transition for downstream consumers.
func (e TransitionEvent) EventType() string {
	switch {
	case e.FromStatus == "":
		return EventTypePaperSubmitted
	case e.ToStatus == StatusApproved:
		return EventTypePaperPublished
	default:
		return EventTypePaperTransitioned
	}
}

// OutboxStatus is the delivery state of an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxEvent represents an event to be published via the outbox pattern.
type OutboxEvent struct {
	ID            uuid.UUID
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       []byte
	Status        OutboxStatus
	Attempts      int
	MaxAttempts   int
	LastError     string
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// NewOutboxEvent creates a new pending outbox event. The payload is JSON-serialized.
func NewOutboxEvent(eventType, aggregateID, aggregateType string, payload interface{}, maxAttempts int) (*OutboxEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payloadBytes,
		Status:        OutboxStatusPending,
		MaxAttempts:   maxAttempts,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Exhausted returns true once the event has used all delivery attempts.
func (e *OutboxEvent) Exhausted() bool {
	return e.MaxAttempts > 0 && e.Attempts >= e.MaxAttempts
}
