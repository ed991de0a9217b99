package workflow

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/helixir/research-portal-service/internal/domain"
)

// NotificationHook receives status changes after they are stored.
// Delivery is best effort; errors never undo a transition.
type NotificationHook interface {
	Notify(ctx context.Context, event domain.TransitionEvent) error
}

// HookFunc adapts a function to NotificationHook.
type HookFunc func(ctx context.Context, event domain.TransitionEvent) error

// Notify calls f.
func (f HookFunc) Notify(ctx context.Context, event domain.TransitionEvent) error {
	return f(ctx, event)
}

// NopHook discards events.
type NopHook struct{}

// Notify does nothing.
func (NopHook) Notify(context.Context, domain.TransitionEvent) error { return nil }

// LogHook writes events to a logger. Used when no outbox is configured.
type LogHook struct {
	logger zerolog.Logger
}

// NewLogHook creates a LogHook.
func NewLogHook(logger zerolog.Logger) *LogHook {
	return &LogHook{logger: logger.With().Str("component", "log_hook").Logger()}
}

// Notify logs the event at info level.
func (h *LogHook) Notify(_ context.Context, event domain.TransitionEvent) error {
	h.logger.Info().
		Str("event_type", event.EventType()).
		Str("paper_id", event.PaperID.String()).
		Str("from_status", string(event.FromStatus)).
		Str("to_status", string(event.ToStatus)).
		Str("actor_id", event.ActorID).
		Msg("paper notification")
	return nil
}

// MultiHook fans an event out to several hooks. Every hook is called even if
// an earlier one fails; the failures are joined.
type MultiHook []NotificationHook

// Notify calls each hook in order.
func (m MultiHook) Notify(ctx context.Context, event domain.TransitionEvent) error {
	var errs []error
	for _, h := range m {
		if err := h.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
