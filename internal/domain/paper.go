package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entity name used in errors and outbox aggregates.
const EntityPaper = "paper"

// TrailAction labels an audit trail entry.
type TrailAction string

const (
	TrailApproved          TrailAction = "approved"
	TrailRejected          TrailAction = "rejected"
	TrailRevisionRequested TrailAction = "revision_requested"
	TrailResubmitted       TrailAction = "resubmitted"
)

// TrailEntry is one append-only audit record. Reviewer comments, rejection
// reasons and revision notes live here rather than on the paper itself.
type TrailEntry struct {
	ID         uuid.UUID   `json:"id"`
	ActorID    string      `json:"actor_id"`
	ActorRole  Role        `json:"actor_role"`
	Action     TrailAction `json:"action"`
	Note       string      `json:"note,omitempty"`
	FromStatus Status      `json:"from_status"`
	ToStatus   Status      `json:"to_status"`
	Timestamp  time.Time   `json:"timestamp"`
}

// PaperRecord is a research submission tracked through review.
type PaperRecord struct {
	ID             uuid.UUID
	Title          string
	Abstract       string
	Keywords       []string
	CoAuthors      string
	CategoryID     string
	Department     string
	FileRef        string
	AuthorID       string
	AuthorName     string
	FacultyID      *string
	Status         Status
	SubmissionDate time.Time
	PublishedDate  *time.Time
	ReviewTrail    []TrailEntry
	ViewCount      int64
	DownloadCount  int64
	Version        int64
	UpdatedAt      time.Time
}

// SubmitParams carries the fields a student provides when submitting.
type SubmitParams struct {
	Title      string
	Abstract   string
	Keywords   []string
	CoAuthors  string
	CategoryID string
	Department string
	FileRef    string
	FacultyID  *string
	AuthorID   string
	AuthorName string
}

// Revision carries the optional content changes a student sends on resubmission.
type Revision struct {
	Title     *string
	Abstract  *string
	Keywords  []string
	CoAuthors *string
	FileRef   *string
}

// NewPaperRecord validates params and builds a record with the given initial status.
func NewPaperRecord(params SubmitParams, initial Status, now time.Time) (PaperRecord, error) {
	params.Title = strings.TrimSpace(params.Title)
	params.Abstract = strings.TrimSpace(params.Abstract)
	params.CategoryID = strings.TrimSpace(params.CategoryID)

	switch {
	case params.Title == "":
		return PaperRecord{}, NewValidationError("title", "title is required")
	case params.Abstract == "":
		return PaperRecord{}, NewValidationError("abstract", "abstract is required")
	case params.CategoryID == "":
		return PaperRecord{}, NewValidationError("category", "category is required")
	case strings.TrimSpace(params.AuthorID) == "":
		return PaperRecord{}, NewValidationError("author_id", "author is required")
	case strings.TrimSpace(params.FileRef) == "":
		return PaperRecord{}, NewValidationError("file_ref", "file reference is required")
	}

	var facultyID *string
	if params.FacultyID != nil && strings.TrimSpace(*params.FacultyID) != "" {
		id := strings.TrimSpace(*params.FacultyID)
		facultyID = &id
	}

	now = now.UTC()
	return PaperRecord{
		ID:             uuid.New(),
		Title:          params.Title,
		Abstract:       params.Abstract,
		Keywords:       NormalizeKeywords(params.Keywords),
		CoAuthors:      strings.TrimSpace(params.CoAuthors),
		CategoryID:     params.CategoryID,
		Department:     strings.TrimSpace(params.Department),
		FileRef:        strings.TrimSpace(params.FileRef),
		AuthorID:       strings.TrimSpace(params.AuthorID),
		AuthorName:     strings.TrimSpace(params.AuthorName),
		FacultyID:      facultyID,
		Status:         initial,
		SubmissionDate: now,
		ReviewTrail:    []TrailEntry{},
		Version:        1,
		UpdatedAt:      now,
	}, nil
}

// NormalizeKeywords trims keywords and drops empty and case-insensitive duplicates, keeping order.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Is reports whether both records describe the same submission.
func (p PaperRecord) Is(other PaperRecord) bool {
	return p.ID == other.ID
}

// Clone returns a deep copy so callers can derive a new value without aliasing slices.
func (p PaperRecord) Clone() PaperRecord {
	c := p
	c.Keywords = append([]string(nil), p.Keywords...)
	c.ReviewTrail = append([]TrailEntry(nil), p.ReviewTrail...)
	if p.FacultyID != nil {
		id := *p.FacultyID
		c.FacultyID = &id
	}
	if p.PublishedDate != nil {
		t := *p.PublishedDate
		c.PublishedDate = &t
	}
	return c
}

// IsAuthoredBy reports whether actorID submitted the paper.
func (p PaperRecord) IsAuthoredBy(actorID string) bool {
	return actorID != "" && p.AuthorID == actorID
}

// IsAssignedTo reports whether actorID is the paper's faculty reviewer.
func (p PaperRecord) IsAssignedTo(actorID string) bool {
	return actorID != "" && p.FacultyID != nil && *p.FacultyID == actorID
}

// LastFlag returns the most recent reject or revision-request entry.
func (p PaperRecord) LastFlag() (TrailEntry, bool) {
	for i := len(p.ReviewTrail) - 1; i >= 0; i-- {
		e := p.ReviewTrail[i]
		if e.Action == TrailRejected || e.Action == TrailRevisionRequested {
			return e, true
		}
	}
	return TrailEntry{}, false
}

// FlaggedStage returns the stage that sent the paper back to its author.
// Records without a flag entry fall back to the stage a fresh submission would enter.
func (p PaperRecord) FlaggedStage() Stage {
	if e, ok := p.LastFlag(); ok {
		if st, ok := StageOf(e.FromStatus); ok && st != StagePublished {
			return st
		}
	}
	if p.FacultyID != nil {
		return StageFaculty
	}
	return StageEditor
}

// Stage returns the pipeline position of the paper.
func (p PaperRecord) Stage() Stage {
	if st, ok := StageOf(p.Status); ok {
		return st
	}
	return p.FlaggedStage()
}

// ApplyRevision copies the non-nil fields of r onto the record.
func (p *PaperRecord) ApplyRevision(r Revision) error {
	if r.Title != nil {
		t := strings.TrimSpace(*r.Title)
		if t == "" {
			return NewValidationError("title", "title is required")
		}
		p.Title = t
	}
	if r.Abstract != nil {
		a := strings.TrimSpace(*r.Abstract)
		if a == "" {
			return NewValidationError("abstract", "abstract is required")
		}
		p.Abstract = a
	}
	if r.Keywords != nil {
		p.Keywords = NormalizeKeywords(r.Keywords)
	}
	if r.CoAuthors != nil {
		p.CoAuthors = strings.TrimSpace(*r.CoAuthors)
	}
	if r.FileRef != nil {
		f := strings.TrimSpace(*r.FileRef)
		if f == "" {
			return NewValidationError("file_ref", "file reference is required")
		}
		p.FileRef = f
	}
	return nil
}
