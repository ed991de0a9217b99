package domain

import "strings"

// Status is the review workflow state of a paper.
// Stored values may include the legacy aliases accepted by ParseStatus.
type Status string

const (
	StatusPendingFaculty   Status = "pending_faculty"
	StatusPendingEditor    Status = "pending_editor"
	StatusPendingAdmin     Status = "pending_admin"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusRevisionRequired Status = "revision_required"
)

// Legacy status strings written by older clients.
const (
	legacyStatusPending     = "pending"
	legacyStatusUnderReview = "under_review"
)

// AllStatuses lists the canonical statuses in workflow order.
var AllStatuses = []Status{
	StatusPendingFaculty,
	StatusPendingEditor,
	StatusPendingAdmin,
	StatusApproved,
	StatusRejected,
	StatusRevisionRequired,
}

// ParseStatus converts a stored or requested status string into its canonical form.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(StatusPendingFaculty):
		return StatusPendingFaculty, nil
	case string(StatusPendingEditor), legacyStatusPending, legacyStatusUnderReview:
		return StatusPendingEditor, nil
	case string(StatusPendingAdmin):
		return StatusPendingAdmin, nil
	case string(StatusApproved):
		return StatusApproved, nil
	case string(StatusRejected):
		return StatusRejected, nil
	case string(StatusRevisionRequired):
		return StatusRevisionRequired, nil
	default:
		return "", NewValidationError("status", "unknown status "+s)
	}
}

// IsTerminal returns true for statuses that accept no reviewer action.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// IsPending returns true for the three review queues.
func (s Status) IsPending() bool {
	switch s {
	case StatusPendingFaculty, StatusPendingEditor, StatusPendingAdmin:
		return true
	default:
		return false
	}
}

// Stage is a position in the sequential review pipeline.
type Stage int

const (
	StageFaculty   Stage = 0
	StageEditor    Stage = 1
	StageAdmin     Stage = 2
	StagePublished Stage = 3
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageFaculty:
		return "faculty"
	case StageEditor:
		return "editor"
	case StageAdmin:
		return "admin"
	case StagePublished:
		return "published"
	default:
		return "unknown"
	}
}

// PendingStatus returns the queue status for a reviewer stage.
func (s Stage) PendingStatus() (Status, bool) {
	switch s {
	case StageFaculty:
		return StatusPendingFaculty, true
	case StageEditor:
		return StatusPendingEditor, true
	case StageAdmin:
		return StatusPendingAdmin, true
	default:
		return "", false
	}
}

// StageOf maps a status to its pipeline stage. Rejected and revision_required
// have no stage of their own; use PaperRecord.Stage for those.
func StageOf(s Status) (Stage, bool) {
	switch s {
	case StatusPendingFaculty:
		return StageFaculty, true
	case StatusPendingEditor:
		return StageEditor, true
	case StatusPendingAdmin:
		return StageAdmin, true
	case StatusApproved:
		return StagePublished, true
	default:
		return 0, false
	}
}

// StoredValues returns every string that ParseStatus maps to s, canonical form first.
func (s Status) StoredValues() []string {
	if s == StatusPendingEditor {
		return []string{string(s), legacyStatusPending, legacyStatusUnderReview}
	}
	return []string{string(s)}
}
