package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/research-portal-service/internal/domain"
)

// entityFaculty names faculty members in errors.
const entityFaculty = "faculty_member"

// ReferenceRepository handles categories and the faculty directory.
type ReferenceRepository interface {
	// ListCategories returns every category ordered by name.
	ListCategories(ctx context.Context) ([]domain.Category, error)

	// ListFacultyMembers returns faculty ordered by name, optionally only active ones.
	ListFacultyMembers(ctx context.Context, activeOnly bool) ([]domain.FacultyMember, error)

	// GetFacultyMember returns domain.ErrNotFound for unknown IDs.
	GetFacultyMember(ctx context.Context, id string) (domain.FacultyMember, error)

	// UpsertFacultyMember inserts or replaces a directory entry.
	UpsertFacultyMember(ctx context.Context, member domain.FacultyMember) error

	// DeactivateFacultyMember marks a member inactive. Assigned papers keep their reviewer.
	DeactivateFacultyMember(ctx context.Context, id string) error
}

// Compile-time interface verification.
var _ ReferenceRepository = (*PgReferenceRepository)(nil)

// PgReferenceRepository is a PostgreSQL implementation of ReferenceRepository.
type PgReferenceRepository struct {
	db DBTX
}

// NewPgReferenceRepository creates a new PostgreSQL reference repository.
func NewPgReferenceRepository(db DBTX) *PgReferenceRepository {
	return &PgReferenceRepository{db: db}
}

// ListCategories returns all categories.
func (r *PgReferenceRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var (
			c           domain.Category
			description *string
		)
		if err := rows.Scan(&c.ID, &c.Name, &description); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.Description = derefString(description)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	return categories, nil
}

const facultyColumns = `id, name, email, department, active`

// ListFacultyMembers returns the faculty directory.
func (r *PgReferenceRepository) ListFacultyMembers(ctx context.Context, activeOnly bool) ([]domain.FacultyMember, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty_members`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name, id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list faculty members: %w", err)
	}
	defer rows.Close()

	members := make([]domain.FacultyMember, 0)
	for rows.Next() {
		m, err := scanFacultyMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan faculty member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating faculty members: %w", err)
	}

	return members, nil
}

// GetFacultyMember retrieves one directory entry.
func (r *PgReferenceRepository) GetFacultyMember(ctx context.Context, id string) (domain.FacultyMember, error) {
	query := `SELECT ` + facultyColumns + ` FROM faculty_members WHERE id = $1`

	m, err := scanFacultyMember(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FacultyMember{}, domain.NewNotFoundError(entityFaculty, id)
		}
		return domain.FacultyMember{}, fmt.Errorf("failed to get faculty member: %w", err)
	}
	return m, nil
}

// UpsertFacultyMember inserts or replaces a directory entry.
func (r *PgReferenceRepository) UpsertFacultyMember(ctx context.Context, member domain.FacultyMember) error {
	if strings.TrimSpace(member.ID) == "" {
		return domain.NewValidationError("id", "faculty member ID is required")
	}

	query := `
		INSERT INTO faculty_members (id, name, email, department, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			department = EXCLUDED.department,
			active = EXCLUDED.active,
			updated_at = NOW()`

	_, err := r.db.Exec(ctx, query,
		member.ID,
		member.Name,
		nullString(member.Email),
		nullString(member.Department),
		member.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert faculty member: %w", err)
	}
	return nil
}

// DeactivateFacultyMember marks a member inactive.
func (r *PgReferenceRepository) DeactivateFacultyMember(ctx context.Context, id string) error {
	result, err := r.db.Exec(ctx, `UPDATE faculty_members SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate faculty member: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError(entityFaculty, id)
	}
	return nil
}

func scanFacultyMember(row pgx.Row) (domain.FacultyMember, error) {
	var (
		m          domain.FacultyMember
		email      *string
		department *string
	)
	if err := row.Scan(&m.ID, &m.Name, &email, &department, &m.Active); err != nil {
		return domain.FacultyMember{}, err
	}
	m.Email = derefString(email)
	m.Department = derefString(department)
	return m, nil
}
