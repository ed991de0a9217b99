package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-portal-service/internal/domain"
)

type mockInserter struct {
	events []*domain.OutboxEvent
	err    error
}

func (m *mockInserter) Insert(_ context.Context, event *domain.OutboxEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func TestHook_Notify(t *testing.T) {
	t.Run("stores the emitted event", func(t *testing.T) {
		store := &mockInserter{}
		hook := NewHook(NewEmitter(EmitterConfig{}), store)

		ev := transitionEvent(domain.StatusPendingAdmin, domain.StatusApproved)
		require.NoError(t, hook.Notify(context.Background(), ev))

		require.Len(t, store.events, 1)
		assert.Equal(t, ev.PaperID.String(), store.events[0].AggregateID)
		assert.Equal(t, domain.EventTypePaperPublished, store.events[0].EventType)
	})

	t.Run("wraps store errors", func(t *testing.T) {
		storeErr := errors.New("connection reset")
		hook := NewHook(NewEmitter(EmitterConfig{}), &mockInserter{err: storeErr})

		err := hook.Notify(context.Background(), transitionEvent(domain.StatusPendingEditor, domain.StatusRejected))
		assert.ErrorIs(t, err, storeErr)
		assert.ErrorContains(t, err, "store event")
	})

	t.Run("wraps emit errors", func(t *testing.T) {
		store := &mockInserter{}
		hook := NewHook(NewEmitter(EmitterConfig{}), store)

		err := hook.Notify(context.Background(), domain.TransitionEvent{})
		assert.ErrorContains(t, err, "emit event")
		assert.Empty(t, store.events)
	})
}
