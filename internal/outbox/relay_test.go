package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-portal-service/internal/config"
	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/observability"
)

type mockStore struct {
	mu        sync.Mutex
	pending   []*domain.OutboxEvent
	claimErr  error
	published []uuid.UUID
	failed    map[uuid.UUID]string
	claims    int
}

func (m *mockStore) ClaimPending(_ context.Context, limit int, _ time.Duration) ([]*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	n := limit
	if n > len(m.pending) {
		n = len(m.pending)
	}
	batch := m.pending[:n]
	m.pending = m.pending[n:]
	for _, e := range batch {
		e.Attempts++
	}
	return batch, nil
}

func (m *mockStore) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, ids...)
	return nil
}

func (m *mockStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed == nil {
		m.failed = map[uuid.UUID]string{}
	}
	m.failed[id] = reason
	return nil
}

type mockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	failKeys map[string]bool
	closed   bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		if m.failKeys[string(msg.Key)] {
			return errors.New("broker unavailable")
		}
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func pendingEvent(t *testing.T, aggregateID string) *domain.OutboxEvent {
	t.Helper()
	event, err := domain.NewOutboxEvent(domain.EventTypePaperTransitioned, aggregateID, domain.AggregateTypePaper,
		map[string]string{"paper_id": aggregateID}, 3)
	require.NoError(t, err)
	return event
}

func newTestRelay(store Store, writer MessageWriter, batchSize int) (*Relay, *observability.Metrics) {
	metrics := observability.NewMetricsWithRegistry("test_outbox", prometheus.NewRegistry())
	relay := NewRelay(store, writer, config.OutboxConfig{
		PollInterval:  10 * time.Millisecond,
		BatchSize:     batchSize,
		LeaseDuration: time.Second,
	}, metrics, zerolog.Nop())
	return relay, metrics
}

func TestRelay_RunOnce(t *testing.T) {
	t.Run("publishes a claimed batch", func(t *testing.T) {
		first, second := pendingEvent(t, "paper-a"), pendingEvent(t, "paper-b")
		store := &mockStore{pending: []*domain.OutboxEvent{first, second}}
		writer := &mockWriter{}
		relay, metrics := newTestRelay(store, writer, 10)

		claimed, err := relay.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, claimed)

		assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, store.published)
		require.Len(t, writer.messages, 2)
		msg := writer.messages[0]
		assert.Equal(t, "paper-a", string(msg.Key))
		assert.Equal(t, first.Payload, msg.Value)
		assert.Contains(t, msg.Headers, kafka.Header{Key: "event_type", Value: []byte(domain.EventTypePaperTransitioned)})
		assert.Equal(t, float64(2), testutil.ToFloat64(metrics.OutboxPublished))
	})

	t.Run("marks write failures and publishes the rest", func(t *testing.T) {
		ok, bad := pendingEvent(t, "paper-ok"), pendingEvent(t, "paper-bad")
		store := &mockStore{pending: []*domain.OutboxEvent{ok, bad}}
		writer := &mockWriter{failKeys: map[string]bool{"paper-bad": true}}
		relay, metrics := newTestRelay(store, writer, 10)

		_, err := relay.RunOnce(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []uuid.UUID{ok.ID}, store.published)
		assert.Equal(t, "broker unavailable", store.failed[bad.ID])
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.OutboxFailed))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.OutboxPublished))
	})

	t.Run("nothing pending", func(t *testing.T) {
		store := &mockStore{}
		relay, _ := newTestRelay(store, &mockWriter{}, 10)

		claimed, err := relay.RunOnce(context.Background())
		require.NoError(t, err)
		assert.Zero(t, claimed)
		assert.Empty(t, store.published)
	})

	t.Run("claim errors are returned", func(t *testing.T) {
		store := &mockStore{claimErr: errors.New("db down")}
		relay, _ := newTestRelay(store, &mockWriter{}, 10)

		_, err := relay.RunOnce(context.Background())
		assert.ErrorContains(t, err, "claim pending")
	})
}

func TestRelay_Run(t *testing.T) {
	events := []*domain.OutboxEvent{pendingEvent(t, "a"), pendingEvent(t, "b"), pendingEvent(t, "c")}
	store := &mockStore{pending: events}
	writer := &mockWriter{}
	relay, _ := newTestRelay(store, writer, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.published) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancellation")
	}

	require.NoError(t, relay.Close())
	assert.True(t, writer.closed)
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(config.KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "events.test",
		BatchSize:    50,
		BatchTimeout: 5 * time.Millisecond,
	})
	defer w.Close()

	assert.Equal(t, "events.test", w.Topic)
	assert.Equal(t, 50, w.BatchSize)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}
