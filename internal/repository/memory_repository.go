package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/helixir/research-portal-service/internal/domain"
)

// Compile-time interface verification.
var (
	_ PaperRepository     = (*MemoryPaperRepository)(nil)
	_ ReferenceRepository = (*MemoryReferenceRepository)(nil)
)

// MemoryPaperRepository keeps papers in process memory. A single mutex
// serializes Transition calls the way a row lock does in PostgreSQL.
type MemoryPaperRepository struct {
	mu     sync.RWMutex
	papers map[uuid.UUID]domain.PaperRecord
}

// NewMemoryPaperRepository creates an empty in-memory paper repository.
func NewMemoryPaperRepository() *MemoryPaperRepository {
	return &MemoryPaperRepository{papers: make(map[uuid.UUID]domain.PaperRecord)}
}

// Create stores a copy of paper.
func (r *MemoryPaperRepository) Create(_ context.Context, paper domain.PaperRecord) (domain.PaperRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if paper.ID == uuid.Nil {
		paper.ID = uuid.New()
	}
	if _, exists := r.papers[paper.ID]; exists {
		return domain.PaperRecord{}, domain.NewAlreadyExistsError(domain.EntityPaper, paper.ID.String())
	}
	r.papers[paper.ID] = paper.Clone()
	return paper.Clone(), nil
}

// GetByID returns a copy of the stored paper.
func (r *MemoryPaperRepository) GetByID(_ context.Context, id uuid.UUID) (domain.PaperRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.papers[id]
	if !ok {
		return domain.PaperRecord{}, domain.NewNotFoundError(domain.EntityPaper, id.String())
	}
	return p.Clone(), nil
}

// List returns copies of the matching papers, newest submission first.
func (r *MemoryPaperRepository) List(_ context.Context, filter PaperFilter) ([]domain.PaperRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.PaperRecord, 0, len(r.papers))
	for _, p := range r.papers {
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		if filter.AuthorID != "" && p.AuthorID != filter.AuthorID {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		out = append(out, p.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmissionDate.Equal(out[j].SubmissionDate) {
			return out[i].SubmissionDate.After(out[j].SubmissionDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Transition applies fn under the write lock and stores its result.
func (r *MemoryPaperRepository) Transition(_ context.Context, id uuid.UUID, fn func(current domain.PaperRecord) (domain.PaperRecord, error)) (domain.PaperRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.papers[id]
	if !ok {
		return domain.PaperRecord{}, domain.NewNotFoundError(domain.EntityPaper, id.String())
	}

	next, err := fn(current.Clone())
	if err != nil {
		return domain.PaperRecord{}, err
	}

	r.papers[id] = next.Clone()
	return next, nil
}

// IncrementViews adds one to the view counter.
func (r *MemoryPaperRepository) IncrementViews(_ context.Context, id uuid.UUID) (int64, error) {
	return r.increment(id, func(p *domain.PaperRecord) *int64 { return &p.ViewCount })
}

// IncrementDownloads adds one to the download counter.
func (r *MemoryPaperRepository) IncrementDownloads(_ context.Context, id uuid.UUID) (int64, error) {
	return r.increment(id, func(p *domain.PaperRecord) *int64 { return &p.DownloadCount })
}

func (r *MemoryPaperRepository) increment(id uuid.UUID, counter func(*domain.PaperRecord) *int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.papers[id]
	if !ok {
		return 0, domain.NewNotFoundError(domain.EntityPaper, id.String())
	}
	c := counter(&p)
	*c++
	r.papers[id] = p
	return *c, nil
}

// MemoryReferenceRepository keeps categories and faculty in process memory.
type MemoryReferenceRepository struct {
	mu         sync.RWMutex
	categories []domain.Category
	faculty    map[string]domain.FacultyMember
}

// NewMemoryReferenceRepository creates a repository seeded with categories and faculty.
func NewMemoryReferenceRepository(categories []domain.Category, faculty []domain.FacultyMember) *MemoryReferenceRepository {
	r := &MemoryReferenceRepository{
		categories: append([]domain.Category(nil), categories...),
		faculty:    make(map[string]domain.FacultyMember, len(faculty)),
	}
	for _, m := range faculty {
		r.faculty[m.ID] = m
	}
	return r
}

// ListCategories returns all categories ordered by name.
func (r *MemoryReferenceRepository) ListCategories(_ context.Context) ([]domain.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]domain.Category{}, r.categories...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListFacultyMembers returns faculty ordered by name.
func (r *MemoryReferenceRepository) ListFacultyMembers(_ context.Context, activeOnly bool) ([]domain.FacultyMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.FacultyMember, 0, len(r.faculty))
	for _, m := range r.faculty {
		if activeOnly && !m.Active {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// GetFacultyMember returns one directory entry.
func (r *MemoryReferenceRepository) GetFacultyMember(_ context.Context, id string) (domain.FacultyMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.faculty[id]
	if !ok {
		return domain.FacultyMember{}, domain.NewNotFoundError(entityFaculty, id)
	}
	return m, nil
}

// UpsertFacultyMember inserts or replaces a directory entry.
func (r *MemoryReferenceRepository) UpsertFacultyMember(_ context.Context, member domain.FacultyMember) error {
	if strings.TrimSpace(member.ID) == "" {
		return domain.NewValidationError("id", "faculty member ID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.faculty[member.ID] = member
	return nil
}

// DeactivateFacultyMember marks a member inactive.
func (r *MemoryReferenceRepository) DeactivateFacultyMember(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.faculty[id]
	if !ok {
		return domain.NewNotFoundError(entityFaculty, id)
	}
	m.Active = false
	r.faculty[id] = m
	return nil
}
