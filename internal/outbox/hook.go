package outbox

import (
	"context"
	"fmt"

	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/workflow"
)

// Inserter stores outbox events. repository.OutboxRepository satisfies it.
type Inserter interface {
	Insert(ctx context.Context, event *domain.OutboxEvent) error
}

var _ workflow.NotificationHook = (*Hook)(nil)

// Hook is a NotificationHook that records every transition in the outbox.
type Hook struct {
	emitter *Emitter
	store   Inserter
}

// NewHook creates a hook writing through store.
func NewHook(emitter *Emitter, store Inserter) *Hook {
	return &Hook{emitter: emitter, store: store}
}

// Notify stores event for later delivery by the relay.
func (h *Hook) Notify(ctx context.Context, event domain.TransitionEvent) error {
	outboxEvent, err := h.emitter.Emit(ctx, event)
	if err != nil {
		return fmt.Errorf("emit event: %w", err)
	}
	if err := h.store.Insert(ctx, outboxEvent); err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	return nil
}
