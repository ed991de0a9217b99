package domain

import "strings"

// Role is the portal role of an authenticated user.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// ReviewerRoles lists the roles that act on papers in review, in pipeline order.
var ReviewerRoles = []Role{RoleFaculty, RoleStaff, RoleAdmin}

// ParseRole converts a role claim into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleFaculty:
		return RoleFaculty, nil
	case RoleStaff:
		return RoleStaff, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", NewValidationError("role", "unknown role "+s)
	}
}

// IsReviewer returns true for faculty, staff and admin.
func (r Role) IsReviewer() bool {
	_, ok := r.Stage()
	return ok
}

// Stage returns the pipeline stage a reviewer role is responsible for.
func (r Role) Stage() (Stage, bool) {
	switch r {
	case RoleFaculty:
		return StageFaculty, true
	case RoleStaff:
		return StageEditor, true
	case RoleAdmin:
		return StageAdmin, true
	default:
		return 0, false
	}
}

// Actor identifies who performs an operation.
type Actor struct {
	ID   string
	Name string
	Role Role
}

// Action is a workflow command.
type Action string

const (
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionRequestRevision Action = "request_revision"
	ActionResubmit        Action = "resubmit"
)

// AllActions lists every workflow action.
var AllActions = []Action{ActionApprove, ActionReject, ActionRequestRevision, ActionResubmit}

// RequiresNote returns true for the reviewer actions that must carry a comment.
func (a Action) RequiresNote() bool {
	switch a {
	case ActionApprove, ActionReject, ActionRequestRevision:
		return true
	default:
		return false
	}
}

// TrailAction returns the audit trail label recorded for the action.
func (a Action) TrailAction() TrailAction {
	switch a {
	case ActionApprove:
		return TrailApproved
	case ActionReject:
		return TrailRejected
	case ActionRequestRevision:
		return TrailRevisionRequested
	case ActionResubmit:
		return TrailResubmitted
	default:
		return TrailAction(a)
	}
}
