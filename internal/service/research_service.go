// Package service implements the research portal use cases on top of the
// workflow processor, the query filter and the repositories.
package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/observability"
	"github.com/helixir/research-portal-service/internal/query"
	"github.com/helixir/research-portal-service/internal/repository"
	"github.com/helixir/research-portal-service/internal/workflow"
)

// SubmitInput is a new submission as sent by a student.
type SubmitInput struct {
	Title      string   `json:"title" validate:"required,max=500"`
	Abstract   string   `json:"abstract" validate:"required,max=20000"`
	Keywords   []string `json:"keywords" validate:"max=25,dive,max=100"`
	CoAuthors  string   `json:"co_authors" validate:"max=1000"`
	CategoryID string   `json:"category" validate:"required,max=64"`
	FacultyID  *string  `json:"faculty_id,omitempty" validate:"omitempty,max=128"`
	Department string   `json:"department" validate:"max=200"`
	FileRef    string   `json:"file_ref" validate:"required,max=1024"`
}

// RevisionInput carries the optional content changes sent with a resubmission.
type RevisionInput struct {
	Title     *string  `json:"title,omitempty" validate:"omitempty,max=500"`
	Abstract  *string  `json:"abstract,omitempty" validate:"omitempty,max=20000"`
	Keywords  []string `json:"keywords,omitempty" validate:"omitempty,max=25,dive,max=100"`
	CoAuthors *string  `json:"co_authors,omitempty" validate:"omitempty,max=1000"`
	FileRef   *string  `json:"file_ref,omitempty" validate:"omitempty,max=1024"`
}

// ResearchService exposes the portal operations.
type ResearchService struct {
	papers    repository.PaperRepository
	reference *ReferenceCache
	processor *workflow.Processor
	filter    *query.Filter
	validate  *validator.Validate
	metrics   *observability.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// NewResearchService wires the service. The filter shares the processor's engine.
func NewResearchService(
	papers repository.PaperRepository,
	reference *ReferenceCache,
	processor *workflow.Processor,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ResearchService {
	return &ResearchService{
		papers:    papers,
		reference: reference,
		processor: processor,
		filter:    query.NewFilter(processor.Engine()),
		validate:  newValidator(),
		metrics:   metrics,
		logger:    logger.With().Str("component", "research_service").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// newValidator reports field names using their JSON tags.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Submit creates a paper for a student and routes it to its first review stage.
func (s *ResearchService) Submit(ctx context.Context, actor domain.Actor, in SubmitInput) (domain.PaperRecord, error) {
	if actor.Role != domain.RoleStudent {
		return domain.PaperRecord{}, fmt.Errorf("%w: only students submit research", domain.ErrForbidden)
	}
	if err := s.validateStruct(in); err != nil {
		return domain.PaperRecord{}, err
	}

	category := strings.TrimSpace(in.CategoryID)
	ok, err := s.reference.HasCategory(ctx, category)
	if err != nil {
		return domain.PaperRecord{}, err
	}
	if !ok {
		return domain.PaperRecord{}, domain.NewValidationError("category", "unknown category "+category)
	}

	if in.FacultyID != nil && strings.TrimSpace(*in.FacultyID) != "" {
		active, err := s.reference.ActiveFaculty(ctx, strings.TrimSpace(*in.FacultyID))
		if err != nil {
			return domain.PaperRecord{}, err
		}
		if !active {
			return domain.PaperRecord{}, domain.NewValidationError("faculty_id", "faculty member is not available")
		}
	}

	engine := s.processor.Engine()
	paper, err := domain.NewPaperRecord(domain.SubmitParams{
		Title:      in.Title,
		Abstract:   in.Abstract,
		Keywords:   in.Keywords,
		CoAuthors:  in.CoAuthors,
		CategoryID: category,
		Department: in.Department,
		FileRef:    in.FileRef,
		FacultyID:  in.FacultyID,
		AuthorID:   actor.ID,
		AuthorName: actor.Name,
	}, engine.InitialStatus(in.FacultyID), s.now())
	if err != nil {
		return domain.PaperRecord{}, err
	}

	created, err := s.papers.Create(ctx, paper)
	if err != nil {
		return domain.PaperRecord{}, fmt.Errorf("create paper: %w", err)
	}

	s.metrics.RecordSubmission()
	logger := observability.WithPaperContext(s.logger, created.ID.String(), string(created.Status))
	logger.Info().
		Str("author_id", actor.ID).
		Msg("paper submitted")

	s.processor.Notify(ctx, domain.TransitionEvent{
		PaperID:    created.ID,
		ToStatus:   created.Status,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		AuthorID:   created.AuthorID,
		OccurredAt: created.SubmissionDate,
	})
	return created, nil
}

// MyResearch returns the actor's own submissions, newest first.
func (s *ResearchService) MyResearch(ctx context.Context, actor domain.Actor) ([]domain.PaperRecord, error) {
	papers, err := s.papers.List(ctx, repository.PaperFilter{AuthorID: actor.ID})
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	query.SortNewestFirst(papers)
	return papers, nil
}

// AllResearch returns the papers visible to viewer under spec.
func (s *ResearchService) AllResearch(ctx context.Context, viewer domain.Actor, spec query.FilterSpec) ([]domain.PaperRecord, error) {
	papers, err := s.papers.List(ctx, repository.PaperFilter{Status: spec.Status})
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	return s.filter.Apply(papers, viewer, spec), nil
}

// Published returns approved papers for public browsing.
func (s *ResearchService) Published(ctx context.Context, search, categoryID string) ([]domain.PaperRecord, error) {
	approved := domain.StatusApproved
	papers, err := s.papers.List(ctx, repository.PaperFilter{Status: &approved})
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	return s.filter.Apply(papers, domain.Actor{}, query.FilterSpec{
		Scope:      query.ScopePublished,
		Search:     search,
		CategoryID: categoryID,
	}), nil
}

// Stats summarizes the viewer's scope.
func (s *ResearchService) Stats(ctx context.Context, viewer domain.Actor) (query.Stats, error) {
	papers, err := s.papers.List(ctx, repository.PaperFilter{})
	if err != nil {
		return query.Stats{}, fmt.Errorf("list papers: %w", err)
	}
	return s.filter.ComputeStats(papers, viewer), nil
}

// Get returns one paper with its review trail.
func (s *ResearchService) Get(ctx context.Context, id uuid.UUID) (domain.PaperRecord, error) {
	return s.papers.GetByID(ctx, id)
}

// AvailableActions lists what actor may do to paper right now.
func (s *ResearchService) AvailableActions(paper domain.PaperRecord, actor domain.Actor) []domain.Action {
	return s.processor.Engine().Available(paper, actor)
}

// Approve moves the paper to its next stage, or publishes it at the admin stage.
func (s *ResearchService) Approve(ctx context.Context, actor domain.Actor, id uuid.UUID, version int64, comment string) (domain.PaperRecord, error) {
	return s.review(ctx, id, version, workflow.Command{Action: domain.ActionApprove, Actor: actor, Note: comment})
}

// Reject sends the paper back to its author with a reason.
func (s *ResearchService) Reject(ctx context.Context, actor domain.Actor, id uuid.UUID, version int64, reason string) (domain.PaperRecord, error) {
	return s.review(ctx, id, version, workflow.Command{Action: domain.ActionReject, Actor: actor, Note: reason})
}

// RequestRevision asks the author for changes.
func (s *ResearchService) RequestRevision(ctx context.Context, actor domain.Actor, id uuid.UUID, version int64, notes string) (domain.PaperRecord, error) {
	return s.review(ctx, id, version, workflow.Command{Action: domain.ActionRequestRevision, Actor: actor, Note: notes})
}

// Resubmit returns a flagged paper to the stage that flagged it, applying any revision first.
func (s *ResearchService) Resubmit(ctx context.Context, actor domain.Actor, id uuid.UUID, version int64, note string, revision *RevisionInput) (domain.PaperRecord, error) {
	cmd := workflow.Command{Action: domain.ActionResubmit, Actor: actor, Note: note}
	if revision != nil {
		if err := s.validateStruct(*revision); err != nil {
			return domain.PaperRecord{}, err
		}
		cmd.Revision = &domain.Revision{
			Title:     revision.Title,
			Abstract:  revision.Abstract,
			Keywords:  revision.Keywords,
			CoAuthors: revision.CoAuthors,
			FileRef:   revision.FileRef,
		}
	}
	return s.review(ctx, id, version, cmd)
}

func (s *ResearchService) review(ctx context.Context, id uuid.UUID, version int64, cmd workflow.Command) (domain.PaperRecord, error) {
	if version < 0 {
		return domain.PaperRecord{}, domain.NewValidationError("version", "version must not be negative")
	}
	return s.processor.Process(ctx, s.papers, id, version, cmd)
}

// TrackView counts one view and returns the new total.
func (s *ResearchService) TrackView(ctx context.Context, id uuid.UUID) (int64, error) {
	views, err := s.papers.IncrementViews(ctx, id)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordTracking("view")
	return views, nil
}

// TrackDownload counts one download and returns the new total.
func (s *ResearchService) TrackDownload(ctx context.Context, id uuid.UUID) (int64, error) {
	downloads, err := s.papers.IncrementDownloads(ctx, id)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordTracking("download")
	return downloads, nil
}

// Categories returns the category list.
func (s *ResearchService) Categories(ctx context.Context) ([]domain.Category, error) {
	return s.reference.Categories(ctx)
}

// FacultyMembers returns the active faculty roster.
func (s *ResearchService) FacultyMembers(ctx context.Context) ([]domain.FacultyMember, error) {
	return s.reference.FacultyMembers(ctx)
}

// validateStruct converts the first validator failure into a ValidationError.
func (s *ResearchService) validateStruct(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.NewValidationError("body", err.Error())
	}
	fe := fieldErrs[0]
	return domain.NewValidationError(fe.Field(), validationMessage(fe))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s long", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
