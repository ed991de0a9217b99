// Package workflow implements the research review state machine and the
// processor that applies reviewer and author actions to papers.
package workflow

import (
	"strings"

	"github.com/helixir/research-portal-service/internal/domain"
)

// Engine decides which actions are legal for a paper and where they lead.
// It holds no state; every decision is made from the paper value passed in.
type Engine struct{}

// NewEngine creates a workflow engine.
func NewEngine() *Engine {
	return &Engine{}
}

// InitialStatus returns the queue a new submission enters.
func (e *Engine) InitialStatus(facultyID *string) domain.Status {
	if facultyID != nil && strings.TrimSpace(*facultyID) != "" {
		return domain.StatusPendingFaculty
	}
	return domain.StatusPendingEditor
}

// Check validates that actor may perform action on p with the given note and
// returns the destination status.
func (e *Engine) Check(p domain.PaperRecord, actor domain.Actor, action domain.Action, note string) (domain.Status, error) {
	if !isKnownAction(action) {
		return "", domain.NewValidationError("action", "unknown action "+string(action))
	}

	if blockedByTerminal(p.Status, action) {
		return "", domain.NewInvalidTransitionError(p.Status, action)
	}

	if !permits(p, actor, action) {
		if anyonePermitted(p, action) {
			return "", domain.NewUnauthorizedTransitionError(actor.Role, p.Status, action)
		}
		return "", domain.NewInvalidTransitionError(p.Status, action)
	}

	if action.RequiresNote() && strings.TrimSpace(note) == "" {
		return "", domain.NewValidationError("note", "a comment is required for "+string(action))
	}

	return destination(p, actor, action), nil
}

// Available lists the actions actor may perform on p right now.
func (e *Engine) Available(p domain.PaperRecord, actor domain.Actor) []domain.Action {
	var out []domain.Action
	for _, a := range domain.AllActions {
		if blockedByTerminal(p.Status, a) {
			continue
		}
		if permits(p, actor, a) {
			out = append(out, a)
		}
	}
	return out
}

// CanReview reports whether actor has at least one reviewer action on p.
func (e *Engine) CanReview(p domain.PaperRecord, actor domain.Actor) bool {
	for _, a := range e.Available(p, actor) {
		if a != domain.ActionResubmit {
			return true
		}
	}
	return false
}

func isKnownAction(a domain.Action) bool {
	for _, known := range domain.AllActions {
		if a == known {
			return true
		}
	}
	return false
}

// blockedByTerminal reports whether the terminal status rules out the action
// for every actor. Rejected papers may still be resubmitted by their author.
func blockedByTerminal(s domain.Status, a domain.Action) bool {
	if !s.IsTerminal() {
		return false
	}
	return !(s == domain.StatusRejected && a == domain.ActionResubmit)
}

// permits combines the role table with identity checks.
func permits(p domain.PaperRecord, actor domain.Actor, action domain.Action) bool {
	if !roleMayAct(p, actor.Role, action) {
		return false
	}

	switch actor.Role {
	case domain.RoleStudent:
		return p.IsAuthoredBy(actor.ID)
	case domain.RoleFaculty:
		// Unassigned legacy records may be claimed by any faculty member.
		return p.FacultyID == nil || p.IsAssignedTo(actor.ID)
	default:
		return true
	}
}

// anyonePermitted reports whether some role could perform the action on p.
func anyonePermitted(p domain.PaperRecord, action domain.Action) bool {
	for _, r := range []domain.Role{domain.RoleStudent, domain.RoleFaculty, domain.RoleStaff, domain.RoleAdmin} {
		if roleMayAct(p, r, action) {
			return true
		}
	}
	return false
}

// roleMayAct is the transition table keyed by role, status and action.
func roleMayAct(p domain.PaperRecord, role domain.Role, action domain.Action) bool {
	if action == domain.ActionResubmit {
		if role != domain.RoleStudent {
			return false
		}
		return p.Status == domain.StatusRevisionRequired || p.Status == domain.StatusRejected
	}

	stage, ok := role.Stage()
	if !ok {
		return false
	}

	switch action {
	case domain.ActionApprove, domain.ActionRequestRevision:
		return approvableBy(p, role, stage)
	case domain.ActionReject:
		if approvableBy(p, role, stage) {
			return true
		}
		return p.Status == domain.StatusRevisionRequired && p.FlaggedStage() == stage
	default:
		return false
	}
}

func approvableBy(p domain.PaperRecord, role domain.Role, stage domain.Stage) bool {
	switch p.Status {
	case domain.StatusPendingFaculty, domain.StatusPendingEditor, domain.StatusPendingAdmin:
		st, _ := domain.StageOf(p.Status)
		return st == stage
	case domain.StatusRevisionRequired:
		return role == domain.RoleStaff && p.FlaggedStage() == domain.StageEditor
	default:
		return false
	}
}

// destination assumes the action was already permitted.
func destination(p domain.PaperRecord, actor domain.Actor, action domain.Action) domain.Status {
	switch action {
	case domain.ActionReject:
		return domain.StatusRejected
	case domain.ActionRequestRevision:
		return domain.StatusRevisionRequired
	case domain.ActionResubmit:
		status, _ := p.FlaggedStage().PendingStatus()
		return status
	}

	stage, _ := actor.Role.Stage()
	switch stage {
	case domain.StageFaculty:
		return domain.StatusPendingEditor
	case domain.StageEditor:
		return domain.StatusPendingAdmin
	default:
		return domain.StatusApproved
	}
}
