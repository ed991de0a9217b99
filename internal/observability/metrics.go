package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the research portal service.
// Record methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	// SubmissionsTotal counts new paper submissions.
	SubmissionsTotal prometheus.Counter

	// TransitionsTotal counts successful workflow transitions by action, role and destination.
	TransitionsTotal *prometheus.CounterVec

	// TransitionErrors counts rejected workflow commands by error kind.
	TransitionErrors *prometheus.CounterVec

	// ConflictsTotal counts optimistic concurrency failures.
	ConflictsTotal prometheus.Counter

	// NotificationsFailed counts notification hook errors that were swallowed.
	NotificationsFailed prometheus.Counter

	// TrackingEvents counts view and download tracking calls by kind.
	TrackingEvents *prometheus.CounterVec

	// OutboxPublished counts outbox events delivered to Kafka.
	OutboxPublished prometheus.Counter

	// OutboxFailed counts outbox delivery failures.
	OutboxFailed prometheus.Counter

	// ReferenceCacheHits counts reference data served from cache.
	ReferenceCacheHits *prometheus.CounterVec

	// ReferenceCacheMisses counts reference data loaded from the store.
	ReferenceCacheMisses *prometheus.CounterVec

	// DirectoryEvents counts faculty directory messages by result.
	DirectoryEvents *prometheus.CounterVec

	// HTTPRequestDuration observes HTTP handler latency.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates metrics registered with the default Prometheus registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates metrics registered with reg.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SubmissionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "papers",
			Name:      "submissions_total",
			Help:      "Total number of research papers submitted",
		}),
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Total number of successful workflow transitions",
		}, []string{"action", "role", "to_status"}),
		TransitionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "transition_errors_total",
			Help:      "Total number of rejected workflow commands by kind",
		}, []string{"kind"}),
		ConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "conflicts_total",
			Help:      "Total number of optimistic concurrency conflicts",
		}),
		NotificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "notifications_failed_total",
			Help:      "Total number of notification hook failures",
		}),
		TrackingEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "papers",
			Name:      "tracking_events_total",
			Help:      "Total number of view and download tracking calls",
		}, []string{"kind"}),
		OutboxPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Total number of outbox events published",
		}),
		OutboxFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "failed_total",
			Help:      "Total number of outbox publish failures",
		}),
		ReferenceCacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reference",
			Name:      "cache_hits_total",
			Help:      "Total number of reference data cache hits",
		}, []string{"kind"}),
		ReferenceCacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reference",
			Name:      "cache_misses_total",
			Help:      "Total number of reference data cache misses",
		}, []string{"kind"}),
		DirectoryEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "directory",
			Name:      "events_total",
			Help:      "Total number of faculty directory events processed",
		}, []string{"result"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// RecordSubmission increments the submission counter.
func (m *Metrics) RecordSubmission() {
	if m == nil {
		return
	}
	m.SubmissionsTotal.Inc()
}

// RecordTransition records a successful transition.
func (m *Metrics) RecordTransition(action, role, toStatus string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(action, role, toStatus).Inc()
}

// RecordTransitionError records a rejected workflow command.
func (m *Metrics) RecordTransitionError(kind string) {
	if m == nil {
		return
	}
	m.TransitionErrors.WithLabelValues(kind).Inc()
}

// RecordConflict records an optimistic concurrency failure.
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.ConflictsTotal.Inc()
}

// RecordNotificationFailed records a swallowed hook error.
func (m *Metrics) RecordNotificationFailed() {
	if m == nil {
		return
	}
	m.NotificationsFailed.Inc()
}

// RecordTracking records a view or download.
func (m *Metrics) RecordTracking(kind string) {
	if m == nil {
		return
	}
	m.TrackingEvents.WithLabelValues(kind).Inc()
}

// RecordOutboxPublished records delivered outbox events.
func (m *Metrics) RecordOutboxPublished(count int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(count))
}

// RecordOutboxFailed records a failed outbox delivery.
func (m *Metrics) RecordOutboxFailed() {
	if m == nil {
		return
	}
	m.OutboxFailed.Inc()
}

// RecordReferenceCache records a reference data lookup.
func (m *Metrics) RecordReferenceCache(kind string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.ReferenceCacheHits.WithLabelValues(kind).Inc()
		return
	}
	m.ReferenceCacheMisses.WithLabelValues(kind).Inc()
}

// RecordDirectoryEvent records a processed directory message.
func (m *Metrics) RecordDirectoryEvent(result string) {
	if m == nil {
		return
	}
	m.DirectoryEvents.WithLabelValues(result).Inc()
}

// RecordHTTPRequest observes an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(durationSeconds)
}
