package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/observability"
)

// notifyTimeout bounds a single hook invocation.
const notifyTimeout = 5 * time.Second

// Command is a single workflow action requested by an actor.
type Command struct {
	Action   domain.Action
	Actor    domain.Actor
	Note     string
	Revision *domain.Revision
}

// TransitionStore loads a paper under an exclusive lock, passes it to fn and
// persists the value fn returns. Implementations must not persist anything
// when fn returns an error.
type TransitionStore interface {
	Transition(ctx context.Context, id uuid.UUID, fn func(current domain.PaperRecord) (domain.PaperRecord, error)) (domain.PaperRecord, error)
}

// Processor applies commands to papers through the Engine.
type Processor struct {
	engine  *Engine
	hook    NotificationHook
	metrics *observability.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewProcessor creates a processor. A nil hook disables notifications.
func NewProcessor(engine *Engine, hook NotificationHook, metrics *observability.Metrics, logger zerolog.Logger) *Processor {
	if hook == nil {
		hook = NopHook{}
	}
	return &Processor{
		engine:  engine,
		hook:    hook,
		metrics: metrics,
		logger:  logger.With().Str("component", "review_processor").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Engine returns the engine used by the processor.
func (p *Processor) Engine() *Engine {
	return p.engine
}

// Apply validates cmd against paper and returns the updated copy plus the
// event describing the change. The input value is never modified.
func (p *Processor) Apply(paper domain.PaperRecord, cmd Command, now time.Time) (domain.PaperRecord, domain.TransitionEvent, error) {
	to, err := p.engine.Check(paper, cmd.Actor, cmd.Action, cmd.Note)
	if err != nil {
		return domain.PaperRecord{}, domain.TransitionEvent{}, err
	}

	now = now.UTC()
	next := paper.Clone()

	if cmd.Action == domain.ActionResubmit && cmd.Revision != nil {
		if err := next.ApplyRevision(*cmd.Revision); err != nil {
			return domain.PaperRecord{}, domain.TransitionEvent{}, err
		}
	}

	// Faculty acting on an unassigned record becomes its assigned reviewer.
	if cmd.Actor.Role == domain.RoleFaculty && next.FacultyID == nil {
		id := cmd.Actor.ID
		next.FacultyID = &id
	}

	next.ReviewTrail = append(next.ReviewTrail, domain.TrailEntry{
		ID:         uuid.New(),
		ActorID:    cmd.Actor.ID,
		ActorRole:  cmd.Actor.Role,
		Action:     cmd.Action.TrailAction(),
		Note:       strings.TrimSpace(cmd.Note),
		FromStatus: paper.Status,
		ToStatus:   to,
		Timestamp:  now,
	})
	next.Status = to
	if to == domain.StatusApproved && next.PublishedDate == nil {
		published := now
		next.PublishedDate = &published
	}
	next.Version = paper.Version + 1
	next.UpdatedAt = now

	event := domain.TransitionEvent{
		PaperID:    paper.ID,
		FromStatus: paper.Status,
		ToStatus:   to,
		ActorID:    cmd.Actor.ID,
		ActorRole:  cmd.Actor.Role,
		Action:     cmd.Action,
		AuthorID:   paper.AuthorID,
		OccurredAt: now,
	}

	return next, event, nil
}

// Process re-reads the paper through store, rejects stale versions with a
// ConflictError, applies cmd and notifies the hook after the change is stored.
// An expectedVersion of zero skips the staleness check.
func (p *Processor) Process(ctx context.Context, store TransitionStore, id uuid.UUID, expectedVersion int64, cmd Command) (domain.PaperRecord, error) {
	var event domain.TransitionEvent

	updated, err := store.Transition(ctx, id, func(current domain.PaperRecord) (domain.PaperRecord, error) {
		if expectedVersion > 0 && current.Version != expectedVersion {
			return domain.PaperRecord{}, domain.NewConflictError(domain.EntityPaper, id.String(), expectedVersion, current.Version)
		}
		next, ev, err := p.Apply(current, cmd, p.now())
		if err != nil {
			return domain.PaperRecord{}, err
		}
		event = ev
		return next, nil
	})
	if err != nil {
		p.recordFailure(err)
		return domain.PaperRecord{}, err
	}

	p.metrics.RecordTransition(string(cmd.Action), string(cmd.Actor.Role), string(updated.Status))
	logger := observability.WithPaperContext(p.logger, id.String(), string(updated.Status))
	logger.Info().
		Str("action", string(cmd.Action)).
		Str("actor_id", cmd.Actor.ID).
		Str("from_status", string(event.FromStatus)).
		Int64("version", updated.Version).
		Msg("paper transitioned")

	p.Notify(ctx, event)
	return updated, nil
}

// Notify hands event to the hook. Hook failures are logged and counted, never returned.
func (p *Processor) Notify(ctx context.Context, event domain.TransitionEvent) {
	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	// The transition is already committed; a panicking hook must not unwind the request.
	defer func() {
		if r := recover(); r != nil {
			p.metrics.RecordNotificationFailed()
			p.logger.Error().
				Interface("panic", r).
				Str("paper_id", event.PaperID.String()).
				Str("to_status", string(event.ToStatus)).
				Msg("notification hook panicked")
		}
	}()

	if err := p.hook.Notify(hookCtx, event); err != nil {
		p.metrics.RecordNotificationFailed()
		p.logger.Warn().Err(err).
			Str("paper_id", event.PaperID.String()).
			Str("to_status", string(event.ToStatus)).
			Msg("notification hook failed")
	}
}

func (p *Processor) recordFailure(err error) {
	switch {
	case errors.Is(err, domain.ErrConflict):
		p.metrics.RecordConflict()
		p.metrics.RecordTransitionError("conflict")
	case errors.Is(err, domain.ErrInvalidTransition):
		p.metrics.RecordTransitionError("invalid_transition")
	case errors.Is(err, domain.ErrUnauthorizedTransition):
		p.metrics.RecordTransitionError("unauthorized_transition")
	case errors.Is(err, domain.ErrInvalidInput):
		p.metrics.RecordTransitionError("validation")
	case errors.Is(err, domain.ErrNotFound):
		p.metrics.RecordTransitionError("not_found")
	default:
		p.metrics.RecordTransitionError("internal")
	}
}
