// Package observability provides logging and metrics support for the
// research portal service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//
// Attach paper or actor fields before logging workflow activity:
//
//	logger = observability.WithPaperContext(logger, paperID, string(status))
//	logger = observability.WithActorContext(logger, actor.ID, string(actor.Role))
//
// # Metrics
//
// Metrics are registered on creation. Tests should pass their own registry:
//
//	metrics := observability.NewMetricsWithRegistry("research_portal", prometheus.NewRegistry())
//	metrics.RecordTransition("approve", "staff", "pending_admin")
//
// # Standard Fields
//
//   - paper_id: research paper identifier
//   - status: workflow status after the logged operation
//   - actor_id, actor_role: the authenticated user
//   - request_id, correlation_id: request tracing identifiers
package observability
