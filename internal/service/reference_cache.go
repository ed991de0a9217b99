package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/observability"
	"github.com/helixir/research-portal-service/internal/repository"
)

const (
	cacheKeyCategories = "categories"
	cacheKeyFaculty    = "faculty:active"
)

// ReferenceCache serves categories and the active faculty roster from an
// in-memory LRU with TTL in front of the reference repository.
type ReferenceCache struct {
	repo       repository.ReferenceRepository
	categories *expirable.LRU[string, []domain.Category]
	faculty    *expirable.LRU[string, []domain.FacultyMember]
	metrics    *observability.Metrics
}

// NewReferenceCache creates a cache holding at most size entries per kind for ttl.
func NewReferenceCache(repo repository.ReferenceRepository, size int, ttl time.Duration, metrics *observability.Metrics) *ReferenceCache {
	if size <= 0 {
		size = 1
	}
	return &ReferenceCache{
		repo:       repo,
		categories: expirable.NewLRU[string, []domain.Category](size, nil, ttl),
		faculty:    expirable.NewLRU[string, []domain.FacultyMember](size, nil, ttl),
		metrics:    metrics,
	}
}

// Categories returns every category ordered by name.
func (c *ReferenceCache) Categories(ctx context.Context) ([]domain.Category, error) {
	if cached, ok := c.categories.Get(cacheKeyCategories); ok {
		c.metrics.RecordReferenceCache("categories", true)
		return append([]domain.Category(nil), cached...), nil
	}
	c.metrics.RecordReferenceCache("categories", false)

	categories, err := c.repo.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	c.categories.Add(cacheKeyCategories, categories)
	return append([]domain.Category(nil), categories...), nil
}

// FacultyMembers returns the active faculty ordered by name.
func (c *ReferenceCache) FacultyMembers(ctx context.Context) ([]domain.FacultyMember, error) {
	if cached, ok := c.faculty.Get(cacheKeyFaculty); ok {
		c.metrics.RecordReferenceCache("faculty", true)
		return append([]domain.FacultyMember(nil), cached...), nil
	}
	c.metrics.RecordReferenceCache("faculty", false)

	members, err := c.repo.ListFacultyMembers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list faculty members: %w", err)
	}
	c.faculty.Add(cacheKeyFaculty, members)
	return append([]domain.FacultyMember(nil), members...), nil
}

// HasCategory reports whether id names a known category.
func (c *ReferenceCache) HasCategory(ctx context.Context, id string) (bool, error) {
	categories, err := c.Categories(ctx)
	if err != nil {
		return false, err
	}
	for _, cat := range categories {
		if cat.ID == id {
			return true, nil
		}
	}
	return false, nil
}

// ActiveFaculty reports whether id names an active faculty member.
// It reads through to the repository so a freshly synced member is accepted at once.
func (c *ReferenceCache) ActiveFaculty(ctx context.Context, id string) (bool, error) {
	member, err := c.repo.GetFacultyMember(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get faculty member: %w", err)
	}
	return member.Active, nil
}

// InvalidateFaculty drops the cached roster. The directory listener calls it after each change.
func (c *ReferenceCache) InvalidateFaculty() {
	c.faculty.Purge()
}

// Invalidate drops every cached entry.
func (c *ReferenceCache) Invalidate() {
	c.categories.Purge()
	c.faculty.Purge()
}
