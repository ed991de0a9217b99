// Package outbox delivers workflow notifications through the transactional
// outbox pattern.
//
// # Components
//
//   - Emitter: wraps a domain.TransitionEvent in an Envelope and builds the
//     domain.OutboxEvent row for it
//   - Hook: a workflow.NotificationHook that stores envelopes in the outbox
//   - Relay: claims pending rows, writes them to Kafka and records the outcome
//
// # Event Types
//
//   - paper.submitted: a student submitted a new paper
//   - paper.transitioned: a reviewer or the author moved a paper between statuses
//   - paper.published: a paper reached approved
//
// # Usage
//
//	hook := outbox.NewHook(outbox.NewEmitter(outbox.EmitterConfig{}), outboxRepo)
//	processor := workflow.NewProcessor(engine, hook, metrics, logger)
//
// A separate process runs the relay:
//
//	relay := outbox.NewRelay(outboxRepo, outbox.NewKafkaWriter(cfg.Kafka), cfg.Outbox, metrics, logger)
//	err := relay.Run(ctx)
package outbox
