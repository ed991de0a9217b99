package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/observability"
	"github.com/helixir/research-portal-service/internal/query"
	"github.com/helixir/research-portal-service/internal/repository"
	"github.com/helixir/research-portal-service/internal/workflow"
)

var (
	student   = domain.Actor{ID: "stu-1", Name: "Sam Student", Role: domain.RoleStudent}
	other     = domain.Actor{ID: "stu-2", Name: "Olive Other", Role: domain.RoleStudent}
	faculty   = domain.Actor{ID: "fac-1", Name: "Dr. Ada", Role: domain.RoleFaculty}
	staff     = domain.Actor{ID: "staff-1", Name: "Eddie Editor", Role: domain.RoleStaff}
	admin     = domain.Actor{ID: "admin-1", Name: "Ana Admin", Role: domain.RoleAdmin}
	facultyID = "fac-1"
)

type fixture struct {
	svc       *ResearchService
	papers    *repository.MemoryPaperRepository
	reference *repository.MemoryReferenceRepository
	cache     *ReferenceCache
	metrics   *observability.Metrics

	mu     sync.Mutex
	events []domain.TransitionEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		papers: repository.NewMemoryPaperRepository(),
		reference: repository.NewMemoryReferenceRepository(domain.DefaultCategories(), []domain.FacultyMember{
			{ID: "fac-1", Name: "Dr. Ada", Active: true},
			{ID: "fac-2", Name: "Dr. Gone", Active: false},
		}),
		metrics: observability.NewMetricsWithRegistry("test", prometheus.NewRegistry()),
	}

	hook := workflow.HookFunc(func(_ context.Context, event domain.TransitionEvent) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, event)
		return nil
	})

	processor := workflow.NewProcessor(workflow.NewEngine(), hook, f.metrics, zerolog.Nop())
	f.cache = NewReferenceCache(f.reference, 8, time.Minute, f.metrics)
	f.svc = NewResearchService(f.papers, f.cache, processor, f.metrics, zerolog.Nop())
	return f
}

func (f *fixture) recorded() []domain.TransitionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TransitionEvent(nil), f.events...)
}

func validInput(withFaculty bool) SubmitInput {
	in := SubmitInput{
		Title:      "Graph Neural Networks for Campus Routing",
		Abstract:   "We route shuttles with message passing.",
		Keywords:   []string{"gnn", "routing"},
		CategoryID: "cs",
		FileRef:    "uploads/gnn.pdf",
	}
	if withFaculty {
		id := facultyID
		in.FacultyID = &id
	}
	return in
}

func (f *fixture) submit(t *testing.T, withFaculty bool) domain.PaperRecord {
	t.Helper()
	paper, err := f.svc.Submit(context.Background(), student, validInput(withFaculty))
	require.NoError(t, err)
	return paper
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("with faculty starts at faculty review", func(t *testing.T) {
		f := newFixture(t)
		paper := f.submit(t, true)

		assert.Equal(t, domain.StatusPendingFaculty, paper.Status)
		assert.Equal(t, "stu-1", paper.AuthorID)
		assert.Equal(t, "Sam Student", paper.AuthorName)
		assert.Equal(t, int64(1), paper.Version)
		assert.Empty(t, paper.ReviewTrail)
		assert.Nil(t, paper.PublishedDate)

		events := f.recorded()
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventTypePaperSubmitted, events[0].EventType())
		assert.Equal(t, domain.StatusPendingFaculty, events[0].ToStatus)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SubmissionsTotal))
	})

	t.Run("without faculty starts at editor review", func(t *testing.T) {
		f := newFixture(t)
		paper := f.submit(t, false)
		assert.Equal(t, domain.StatusPendingEditor, paper.Status)
	})

	t.Run("only students submit", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Submit(ctx, faculty, validInput(false))
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	tests := []struct {
		name  string
		input func() SubmitInput
		field string
	}{
		{name: "missing title", input: func() SubmitInput { in := validInput(false); in.Title = ""; return in }, field: "title"},
		{name: "blank title", input: func() SubmitInput { in := validInput(false); in.Title = "   "; return in }, field: "title"},
		{name: "missing abstract", input: func() SubmitInput { in := validInput(false); in.Abstract = ""; return in }, field: "abstract"},
		{name: "missing category", input: func() SubmitInput { in := validInput(false); in.CategoryID = ""; return in }, field: "category"},
		{name: "unknown category", input: func() SubmitInput { in := validInput(false); in.CategoryID = "astro"; return in }, field: "category"},
		{name: "missing file", input: func() SubmitInput { in := validInput(false); in.FileRef = ""; return in }, field: "file_ref"},
		{name: "title too long", input: func() SubmitInput { in := validInput(false); in.Title = strings.Repeat("x", 501); return in }, field: "title"},
		{
			name: "inactive faculty",
			input: func() SubmitInput {
				in := validInput(false)
				id := "fac-2"
				in.FacultyID = &id
				return in
			},
			field: "faculty_id",
		},
		{
			name: "unknown faculty",
			input: func() SubmitInput {
				in := validInput(false)
				id := "fac-404"
				in.FacultyID = &id
				return in
			},
			field: "faculty_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Submit(ctx, student, tt.input())
			require.Error(t, err)

			var ve *domain.ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)

			all, err := f.papers.List(ctx, repository.PaperFilter{})
			require.NoError(t, err)
			assert.Empty(t, all)
			assert.Empty(t, f.recorded())
		})
	}
}

func TestFacultyApprovalMovesToEditor(t *testing.T) {
	f := newFixture(t)
	paper := f.submit(t, true)

	updated, err := f.svc.Approve(context.Background(), faculty, paper.ID, paper.Version, "Looks good")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPendingEditor, updated.Status)
	require.Len(t, updated.ReviewTrail, 1)
	assert.Equal(t, "Looks good", updated.ReviewTrail[0].Note)
	assert.Equal(t, domain.TrailApproved, updated.ReviewTrail[0].Action)
}

func TestStaffCannotApproveAtFacultyStage(t *testing.T) {
	f := newFixture(t)
	paper := f.submit(t, true)

	_, err := f.svc.Approve(context.Background(), staff, paper.ID, paper.Version, "jumping the queue")

	var ute *domain.UnauthorizedTransitionError
	require.True(t, errors.As(err, &ute), "expected UnauthorizedTransitionError, got %v", err)
	assert.Equal(t, domain.RoleStaff, ute.Role)

	stored, err := f.svc.Get(context.Background(), paper.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingFaculty, stored.Status)
	assert.Empty(t, stored.ReviewTrail)
}

func TestAdminPublishesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paper := f.submit(t, false)

	atAdmin, err := f.svc.Approve(ctx, staff, paper.ID, paper.Version, "Edited")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPendingAdmin, atAdmin.Status)

	approved, err := f.svc.Approve(ctx, admin, paper.ID, atAdmin.Version, "Approved for publication")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)
	require.NotNil(t, approved.PublishedDate)
	published := *approved.PublishedDate

	_, err = f.svc.Approve(ctx, admin, paper.ID, approved.Version, "again")
	var ite *domain.InvalidTransitionError
	require.True(t, errors.As(err, &ite), "expected InvalidTransitionError, got %v", err)

	stored, err := f.svc.Get(ctx, paper.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PublishedDate)
	assert.True(t, published.Equal(*stored.PublishedDate))
	assert.Len(t, stored.ReviewTrail, 2)

	events := f.recorded()
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventTypePaperPublished, events[2].EventType())
}

func TestRevisionRequiresNotes(t *testing.T) {
	f := newFixture(t)
	paper := f.submit(t, true)

	_, err := f.svc.RequestRevision(context.Background(), faculty, paper.ID, paper.Version, "")

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)

	stored, err := f.svc.Get(context.Background(), paper.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingFaculty, stored.Status)
	assert.Equal(t, paper.Version, stored.Version)
}

func TestConcurrentApprovalsConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paper := f.submit(t, false)

	var wg sync.WaitGroup
	results := make([]domain.PaperRecord, 2)
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Approve(ctx, staff, paper.ID, paper.Version, "ship it")
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for i, err := range errs {
		var ce *domain.ConflictError
		switch {
		case err == nil:
			successes++
			assert.Equal(t, domain.StatusPendingAdmin, results[i].Status)
		case errors.As(err, &ce):
			conflicts++
			assert.Equal(t, paper.Version, ce.Expected)
			assert.Equal(t, paper.Version+1, ce.Actual)
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.ConflictsTotal))

	stored, err := f.svc.Get(ctx, paper.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ReviewTrail, 1)
}

func TestResubmitAfterRejection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paper := f.submit(t, true)

	rejected, err := f.svc.Reject(ctx, faculty, paper.ID, paper.Version, "Methodology is unclear")
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, rejected.Status)

	newTitle := "Graph Neural Networks for Campus Routing, Revised"
	resubmitted, err := f.svc.Resubmit(ctx, student, paper.ID, rejected.Version, "Clarified the method", &RevisionInput{Title: &newTitle})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPendingFaculty, resubmitted.Status)
	assert.Equal(t, newTitle, resubmitted.Title)
	require.Len(t, resubmitted.ReviewTrail, 2)
	assert.Equal(t, domain.TrailRejected, resubmitted.ReviewTrail[0].Action)
	assert.Equal(t, "Methodology is unclear", resubmitted.ReviewTrail[0].Note)
	assert.Equal(t, domain.TrailResubmitted, resubmitted.ReviewTrail[1].Action)
}

func TestResubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("another student may not resubmit", func(t *testing.T) {
		f := newFixture(t)
		paper := f.submit(t, true)
		rejected, err := f.svc.Reject(ctx, faculty, paper.ID, paper.Version, "no")
		require.NoError(t, err)

		_, err = f.svc.Resubmit(ctx, other, paper.ID, rejected.Version, "", nil)
		assert.ErrorIs(t, err, domain.ErrUnauthorizedTransition)
	})

	t.Run("oversized revision is rejected before the store", func(t *testing.T) {
		f := newFixture(t)
		paper := f.submit(t, true)
		rejected, err := f.svc.Reject(ctx, faculty, paper.ID, paper.Version, "no")
		require.NoError(t, err)

		long := strings.Repeat("a", 501)
		_, err = f.svc.Resubmit(ctx, student, paper.ID, rejected.Version, "", &RevisionInput{Title: &long})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		stored, err := f.svc.Get(ctx, paper.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRejected, stored.Status)
	})

	t.Run("blank revised title fails validation", func(t *testing.T) {
		f := newFixture(t)
		paper := f.submit(t, true)
		rejected, err := f.svc.Reject(ctx, faculty, paper.ID, paper.Version, "no")
		require.NoError(t, err)

		blank := "  "
		_, err = f.svc.Resubmit(ctx, student, paper.ID, rejected.Version, "", &RevisionInput{Title: &blank})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestReview_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Approve(ctx, staff, uuid.New(), 0, "ok")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	paper := f.submit(t, false)
	_, err = f.svc.Approve(ctx, staff, paper.ID, -1, "ok")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.Approve(ctx, staff, paper.ID, 0, "ok")
	assert.NoError(t, err, "zero version uses the stored version")
}

func TestListingAndStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.submit(t, true)
	second := f.submit(t, false)
	_, err := f.svc.Submit(ctx, other, validInput(false))
	require.NoError(t, err)

	mine, err := f.svc.MyResearch(ctx, student)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, p := range mine {
		assert.Equal(t, student.ID, p.AuthorID)
	}

	t.Run("faculty needs_review is a subset of all", func(t *testing.T) {
		all, err := f.svc.AllResearch(ctx, faculty, query.FilterSpec{Scope: query.ScopeAll})
		require.NoError(t, err)
		needs, err := f.svc.AllResearch(ctx, faculty, query.FilterSpec{Scope: query.ScopeNeedsReview})
		require.NoError(t, err)

		ids := make(map[uuid.UUID]bool, len(all))
		for _, p := range all {
			ids[p.ID] = true
		}
		require.NotEmpty(t, needs)
		for _, p := range needs {
			assert.True(t, ids[p.ID], "paper %s in needs_review but not in all", p.ID)
		}
		assert.True(t, ids[first.ID])
	})

	t.Run("reads are idempotent", func(t *testing.T) {
		a, err := f.svc.AllResearch(ctx, staff, query.FilterSpec{})
		require.NoError(t, err)
		b, err := f.svc.AllResearch(ctx, staff, query.FilterSpec{})
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("status filter", func(t *testing.T) {
		status := domain.StatusPendingEditor
		got, err := f.svc.AllResearch(ctx, staff, query.FilterSpec{Status: &status})
		require.NoError(t, err)
		for _, p := range got {
			assert.Equal(t, domain.StatusPendingEditor, p.Status)
		}
		assert.Len(t, got, 2)
	})

	t.Run("published lists only approved papers", func(t *testing.T) {
		atAdmin, err := f.svc.Approve(ctx, staff, second.ID, second.Version, "ok")
		require.NoError(t, err)
		_, err = f.svc.Approve(ctx, admin, second.ID, atAdmin.Version, "publish")
		require.NoError(t, err)

		published, err := f.svc.Published(ctx, "", "")
		require.NoError(t, err)
		require.Len(t, published, 1)
		assert.Equal(t, second.ID, published[0].ID)

		none, err := f.svc.Published(ctx, "", "bio")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("stats follow the viewer scope", func(t *testing.T) {
		stats, err := f.svc.Stats(ctx, student)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Total)
		assert.Equal(t, 1, stats.Published)
	})
}

func TestTracking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	paper := f.submit(t, true)

	views, err := f.svc.TrackView(ctx, paper.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), views)

	downloads, err := f.svc.TrackDownload(ctx, paper.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), downloads)

	stored, err := f.svc.Get(ctx, paper.ID)
	require.NoError(t, err)
	assert.Equal(t, paper.Status, stored.Status)
	assert.Equal(t, paper.Version, stored.Version)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TrackingEvents.WithLabelValues("view")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TrackingEvents.WithLabelValues("download")))

	_, err = f.svc.TrackView(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAvailableActions(t *testing.T) {
	f := newFixture(t)
	paper := f.submit(t, true)

	assert.ElementsMatch(t,
		[]domain.Action{domain.ActionApprove, domain.ActionReject, domain.ActionRequestRevision},
		f.svc.AvailableActions(paper, faculty))
	assert.Empty(t, f.svc.AvailableActions(paper, student))
}
