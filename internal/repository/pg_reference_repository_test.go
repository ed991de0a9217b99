package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-portal-service/internal/domain"
)

func TestPgReferenceRepository_ListCategories(t *testing.T) {
	ctx := context.Background()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgReferenceRepository(mock)
	desc := "Life sciences"

	mock.ExpectQuery("SELECT id, name, description FROM categories ORDER BY name").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "description"}).
			AddRow("bio", "Biology", &desc).
			AddRow("cs", "Computer Science", nil))

	categories, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Category{
		{ID: "bio", Name: "Biology", Description: "Life sciences"},
		{ID: "cs", Name: "Computer Science"},
	}, categories)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReferenceRepository_Faculty(t *testing.T) {
	ctx := context.Background()
	columns := []string{"id", "name", "email", "department", "active"}

	t.Run("lists active members only", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReferenceRepository(mock)
		email := "ada@uni.edu"

		mock.ExpectQuery("FROM faculty_members WHERE active = TRUE ORDER BY name, id").
			WillReturnRows(pgxmock.NewRows(columns).AddRow("fac-1", "Ada Lovelace", &email, nil, true))

		members, err := repo.ListFacultyMembers(ctx, true)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, "ada@uni.edu", members[0].Email)
		assert.True(t, members[0].Active)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("get returns not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReferenceRepository(mock)

		mock.ExpectQuery("FROM faculty_members WHERE id = \\$1").
			WithArgs("ghost").
			WillReturnRows(pgxmock.NewRows(columns))

		_, err = repo.GetFacultyMember(ctx, "ghost")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("upsert writes all fields", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReferenceRepository(mock)

		mock.ExpectExec("INSERT INTO faculty_members").
			WithArgs("fac-2", "Grace Hopper", pgxmock.AnyArg(), pgxmock.AnyArg(), true).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err = repo.UpsertFacultyMember(ctx, domain.FacultyMember{ID: "fac-2", Name: "Grace Hopper", Active: true})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("upsert requires id", func(t *testing.T) {
		repo := NewPgReferenceRepository(nil)
		err := repo.UpsertFacultyMember(ctx, domain.FacultyMember{Name: "Nobody"})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("deactivate unknown member", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		repo := NewPgReferenceRepository(mock)

		mock.ExpectExec("UPDATE faculty_members SET active = FALSE").
			WithArgs("ghost").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.DeactivateFacultyMember(ctx, "ghost")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}
