package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/observability"
	"github.com/helixir/research-portal-service/internal/repository"
)

// countingRepo wraps a memory repository and counts list calls.
type countingRepo struct {
	repository.ReferenceRepository
	categoryCalls int
	facultyCalls  int
	err           error
}

func (r *countingRepo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	r.categoryCalls++
	if r.err != nil {
		return nil, r.err
	}
	return r.ReferenceRepository.ListCategories(ctx)
}

func (r *countingRepo) ListFacultyMembers(ctx context.Context, activeOnly bool) ([]domain.FacultyMember, error) {
	r.facultyCalls++
	if r.err != nil {
		return nil, r.err
	}
	return r.ReferenceRepository.ListFacultyMembers(ctx, activeOnly)
}

func newCountingRepo() *countingRepo {
	return &countingRepo{
		ReferenceRepository: repository.NewMemoryReferenceRepository(domain.DefaultCategories(), []domain.FacultyMember{
			{ID: "fac-1", Name: "Dr. Ada", Active: true},
			{ID: "fac-2", Name: "Dr. Gone", Active: false},
		}),
	}
}

func TestReferenceCache_Categories(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	metrics := observability.NewMetricsWithRegistry("test", prometheus.NewRegistry())
	cache := NewReferenceCache(repo, 4, time.Minute, metrics)

	first, err := cache.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, first, len(domain.DefaultCategories()))

	// Mutating the returned slice must not leak into the cache.
	first[0].Name = "changed"

	second, err := cache.Categories(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, "changed", second[0].Name)

	assert.Equal(t, 1, repo.categoryCalls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ReferenceCacheMisses.WithLabelValues("categories")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ReferenceCacheHits.WithLabelValues("categories")))

	ok, err := cache.HasCategory(ctx, "cs")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = cache.HasCategory(ctx, "astro")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReferenceCache_FacultyInvalidation(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	cache := NewReferenceCache(repo, 4, time.Minute, nil)

	members, err := cache.FacultyMembers(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "fac-1", members[0].ID)

	require.NoError(t, repo.UpsertFacultyMember(ctx, domain.FacultyMember{ID: "fac-3", Name: "Dr. Bea", Active: true}))

	cached, err := cache.FacultyMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 1)
	assert.Equal(t, 1, repo.facultyCalls)

	cache.InvalidateFaculty()

	fresh, err := cache.FacultyMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
	assert.Equal(t, 2, repo.facultyCalls)

	cache.Invalidate()
	_, err = cache.Categories(ctx)
	require.NoError(t, err)
	_, err = cache.FacultyMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.facultyCalls)
}

func TestReferenceCache_Expiry(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	cache := NewReferenceCache(repo, 4, 20*time.Millisecond, nil)

	_, err := cache.Categories(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, err := cache.Categories(ctx)
		return err == nil && repo.categoryCalls >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestReferenceCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	repo := newCountingRepo()
	repo.err = errors.New("db down")
	cache := NewReferenceCache(repo, 4, time.Minute, nil)

	_, err := cache.Categories(ctx)
	require.Error(t, err)

	repo.err = nil
	categories, err := cache.Categories(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, categories)
	assert.Equal(t, 2, repo.categoryCalls)
}

func TestReferenceCache_ActiveFaculty(t *testing.T) {
	ctx := context.Background()
	cache := NewReferenceCache(newCountingRepo(), 4, time.Minute, nil)

	tests := []struct {
		id   string
		want bool
	}{
		{id: "fac-1", want: true},
		{id: "fac-2", want: false},
		{id: "missing", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, err := cache.ActiveFaculty(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
