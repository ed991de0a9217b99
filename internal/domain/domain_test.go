package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected Status
	}{
		{"pending_faculty", StatusPendingFaculty},
		{"pending_editor", StatusPendingEditor},
		{"pending", StatusPendingEditor},
		{"under_review", StatusPendingEditor},
		{" Under_Review ", StatusPendingEditor},
		{"pending_admin", StatusPendingAdmin},
		{"approved", StatusApproved},
		{"rejected", StatusRejected},
		{"revision_required", StatusRevisionRequired},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("unknown status is a validation error", func(t *testing.T) {
		_, err := ParseStatus("archived")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidInput))
	})
}

func TestStatus_IsTerminal(t *testing.T) {
	for _, s := range AllStatuses {
		t.Run(string(s), func(t *testing.T) {
			expected := s == StatusApproved || s == StatusRejected
			assert.Equal(t, expected, s.IsTerminal())
		})
	}
}

func TestStageOf(t *testing.T) {
	tests := []struct {
		status Status
		stage  Stage
		ok     bool
	}{
		{StatusPendingFaculty, StageFaculty, true},
		{StatusPendingEditor, StageEditor, true},
		{StatusPendingAdmin, StageAdmin, true},
		{StatusApproved, StagePublished, true},
		{StatusRejected, 0, false},
		{StatusRevisionRequired, 0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			stage, ok := StageOf(tt.status)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.stage, stage)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range []Role{RoleStudent, RoleFaculty, RoleStaff, RoleAdmin} {
		got, err := ParseRole(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	_, err := ParseRole("dean")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	assert.False(t, RoleStudent.IsReviewer())
	assert.True(t, RoleStaff.IsReviewer())
}

func validParams() SubmitParams {
	return SubmitParams{
		Title:      "  Graph Neural Networks for Timetabling ",
		Abstract:   "We study timetabling.",
		Keywords:   []string{"GNN", " gnn ", "", "scheduling"},
		CategoryID: "cs",
		FileRef:    "uploads/paper.pdf",
		AuthorID:   "student-1",
		AuthorName: "Ada Student",
	}
}

func TestNewPaperRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("builds a normalized record", func(t *testing.T) {
		p, err := NewPaperRecord(validParams(), StatusPendingEditor, now)
		require.NoError(t, err)

		assert.Equal(t, "Graph Neural Networks for Timetabling", p.Title)
		assert.Equal(t, []string{"GNN", "scheduling"}, p.Keywords)
		assert.Equal(t, StatusPendingEditor, p.Status)
		assert.Equal(t, now, p.SubmissionDate)
		assert.Equal(t, int64(1), p.Version)
		assert.Nil(t, p.PublishedDate)
		assert.Empty(t, p.ReviewTrail)
		assert.Nil(t, p.FacultyID)
	})

	t.Run("blank faculty id is treated as unassigned", func(t *testing.T) {
		params := validParams()
		params.FacultyID = strPtr("   ")
		p, err := NewPaperRecord(params, StatusPendingEditor, now)
		require.NoError(t, err)
		assert.Nil(t, p.FacultyID)
	})

	missing := []struct {
		field  string
		mutate func(*SubmitParams)
	}{
		{"title", func(p *SubmitParams) { p.Title = " " }},
		{"abstract", func(p *SubmitParams) { p.Abstract = "" }},
		{"category", func(p *SubmitParams) { p.CategoryID = "" }},
		{"author_id", func(p *SubmitParams) { p.AuthorID = "" }},
		{"file_ref", func(p *SubmitParams) { p.FileRef = "" }},
	}
	for _, tt := range missing {
		t.Run(fmt.Sprintf("missing %s", tt.field), func(t *testing.T) {
			params := validParams()
			tt.mutate(&params)
			_, err := NewPaperRecord(params, StatusPendingEditor, now)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestPaperRecord_FlaggedStage(t *testing.T) {
	base, err := NewPaperRecord(validParams(), StatusPendingEditor, time.Now())
	require.NoError(t, err)

	t.Run("legacy record without trail falls back to editor", func(t *testing.T) {
		p := base.Clone()
		p.Status = StatusRevisionRequired
		assert.Equal(t, StageEditor, p.Stage())
	})

	t.Run("legacy record with advisor falls back to faculty", func(t *testing.T) {
		p := base.Clone()
		p.Status = StatusRejected
		p.FacultyID = strPtr("fac-1")
		assert.Equal(t, StageFaculty, p.Stage())
	})

	t.Run("uses the latest flag entry", func(t *testing.T) {
		p := base.Clone()
		p.Status = StatusRevisionRequired
		p.ReviewTrail = []TrailEntry{
			{Action: TrailRevisionRequested, FromStatus: StatusPendingFaculty, ToStatus: StatusRevisionRequired},
			{Action: TrailResubmitted, FromStatus: StatusRevisionRequired, ToStatus: StatusPendingFaculty},
			{Action: TrailApproved, FromStatus: StatusPendingFaculty, ToStatus: StatusPendingEditor},
			{Action: TrailApproved, FromStatus: StatusPendingEditor, ToStatus: StatusPendingAdmin},
			{Action: TrailRevisionRequested, FromStatus: StatusPendingAdmin, ToStatus: StatusRevisionRequired},
		}
		assert.Equal(t, StageAdmin, p.Stage())
	})
}

func TestPaperRecord_Clone(t *testing.T) {
	p, err := NewPaperRecord(validParams(), StatusPendingEditor, time.Now())
	require.NoError(t, err)
	p.FacultyID = strPtr("fac-1")

	c := p.Clone()
	c.Keywords[0] = "changed"
	*c.FacultyID = "fac-2"
	c.ReviewTrail = append(c.ReviewTrail, TrailEntry{Action: TrailApproved})

	assert.Equal(t, "GNN", p.Keywords[0])
	assert.Equal(t, "fac-1", *p.FacultyID)
	assert.Empty(t, p.ReviewTrail)
	assert.True(t, p.Is(c))
}

func TestPaperRecord_ApplyRevision(t *testing.T) {
	p, err := NewPaperRecord(validParams(), StatusPendingEditor, time.Now())
	require.NoError(t, err)

	require.NoError(t, p.ApplyRevision(Revision{
		Title:    strPtr("Revised title"),
		Keywords: []string{"graphs"},
	}))
	assert.Equal(t, "Revised title", p.Title)
	assert.Equal(t, []string{"graphs"}, p.Keywords)
	assert.Equal(t, "We study timetabling.", p.Abstract)

	err = p.ApplyRevision(Revision{Abstract: strPtr("  ")})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestErrors_Unwrap(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", NewValidationError("title", "required"), ErrInvalidInput},
		{"not found", NewNotFoundError(EntityPaper, "x"), ErrNotFound},
		{"already exists", NewAlreadyExistsError(EntityPaper, "x"), ErrAlreadyExists},
		{"invalid transition", NewInvalidTransitionError(StatusApproved, ActionApprove), ErrInvalidTransition},
		{"unauthorized transition", NewUnauthorizedTransitionError(RoleStaff, StatusPendingFaculty, ActionApprove), ErrUnauthorizedTransition},
		{"conflict", NewConflictError(EntityPaper, "x", 1, 2), ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestTransitionEvent_EventType(t *testing.T) {
	assert.Equal(t, EventTypePaperSubmitted, TransitionEvent{ToStatus: StatusPendingEditor}.EventType())
	assert.Equal(t, EventTypePaperPublished, TransitionEvent{FromStatus: StatusPendingAdmin, ToStatus: StatusApproved}.EventType())
	assert.Equal(t, EventTypePaperTransitioned, TransitionEvent{FromStatus: StatusPendingEditor, ToStatus: StatusPendingAdmin}.EventType())
}
