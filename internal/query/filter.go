// Package query selects and summarizes papers for a viewer. Every function
// works on a snapshot passed in by the caller and never modifies it.
package query

import (
	"sort"
	"strings"

	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/workflow"
)

// Scope selects which papers a viewer sees.
type Scope string

const (
	ScopeAll         Scope = "all"
	ScopeNeedsReview Scope = "needs_review"
	ScopePublished   Scope = "published"
)

// ParseScope converts a query parameter into a Scope. Empty means all.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeNeedsReview:
		return ScopeNeedsReview, nil
	case ScopePublished:
		return ScopePublished, nil
	default:
		return "", domain.NewValidationError("scope", "unknown scope "+s)
	}
}

// FilterSpec narrows a listing.
type FilterSpec struct {
	Scope      Scope
	Status     *domain.Status
	Search     string
	CategoryID string
}

// Filter selects the papers visible to viewer under spec, newest first.
type Filter struct {
	engine *workflow.Engine
}

// NewFilter creates a filter that asks engine which actions are open.
func NewFilter(engine *workflow.Engine) *Filter {
	return &Filter{engine: engine}
}

// Apply returns a new slice with the matching papers sorted by submission
// date descending, ties broken by ID ascending.
func (f *Filter) Apply(papers []domain.PaperRecord, viewer domain.Actor, spec FilterSpec) []domain.PaperRecord {
	term := strings.ToLower(strings.TrimSpace(spec.Search))
	category := strings.TrimSpace(spec.CategoryID)

	out := make([]domain.PaperRecord, 0, len(papers))
	for _, p := range papers {
		if !f.InScope(p, viewer, spec.Scope) {
			continue
		}
		if spec.Status != nil && p.Status != *spec.Status {
			continue
		}
		if category != "" && p.CategoryID != category {
			continue
		}
		if term != "" && !matches(p, term) {
			continue
		}
		out = append(out, p)
	}

	SortNewestFirst(out)
	return out
}

// InScope reports whether p belongs to the viewer's scope.
func (f *Filter) InScope(p domain.PaperRecord, viewer domain.Actor, scope Scope) bool {
	switch scope {
	case ScopePublished:
		return p.Status == domain.StatusApproved
	case ScopeNeedsReview:
		return f.needsReview(p, viewer)
	default:
		return f.visible(p, viewer)
	}
}

func (f *Filter) needsReview(p domain.PaperRecord, viewer domain.Actor) bool {
	if viewer.Role == domain.RoleStudent {
		for _, a := range f.engine.Available(p, viewer) {
			if a == domain.ActionResubmit {
				return true
			}
		}
		return false
	}
	return f.engine.CanReview(p, viewer)
}

func (f *Filter) visible(p domain.PaperRecord, viewer domain.Actor) bool {
	switch viewer.Role {
	case domain.RoleStudent:
		return p.IsAuthoredBy(viewer.ID)
	case domain.RoleFaculty:
		return p.IsAssignedTo(viewer.ID) || f.engine.CanReview(p, viewer)
	case domain.RoleStaff, domain.RoleAdmin:
		stage, _ := viewer.Role.Stage()
		return p.Stage() >= stage
	default:
		return false
	}
}

// SortNewestFirst sorts papers in place by submission date descending, then ID ascending.
func SortNewestFirst(papers []domain.PaperRecord) {
	sort.SliceStable(papers, func(i, j int) bool {
		a, b := papers[i], papers[j]
		if !a.SubmissionDate.Equal(b.SubmissionDate) {
			return a.SubmissionDate.After(b.SubmissionDate)
		}
		return a.ID.String() < b.ID.String()
	})
}

func matches(p domain.PaperRecord, term string) bool {
	if strings.Contains(strings.ToLower(p.Title), term) ||
		strings.Contains(strings.ToLower(p.Abstract), term) ||
		strings.Contains(strings.ToLower(p.AuthorName), term) {
		return true
	}
	for _, k := range p.Keywords {
		if strings.Contains(strings.ToLower(k), term) {
			return true
		}
	}
	return false
}
