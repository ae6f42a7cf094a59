package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/medgrid/scanflow/internal/domain"
	"github.com/medgrid/scanflow/internal/repository"
)

// ModalityCache is a read-through cache over modality metadata with a fixed
// TTL and explicit invalidation. It is owned by the orchestrator service;
// nothing else holds cached modality state.
type ModalityCache struct {
	repo *repository.ModalityRepository
	lru  *expirable.LRU[string, *domain.Modality]
}

// NewModalityCache creates a cache holding up to size entries for ttl each.
func NewModalityCache(repo *repository.ModalityRepository, size int, ttl time.Duration) *ModalityCache {
	if size <= 0 {
		size = 64
	}
	return &ModalityCache{
		repo: repo,
		lru:  expirable.NewLRU[string, *domain.Modality](size, nil, ttl),
	}
}

// Get returns the modality for slug, loading it on a miss.
// Returns domain.ErrNotFound (wrapped) for unknown slugs.
func (c *ModalityCache) Get(ctx context.Context, slug string) (*domain.Modality, error) {
	if m, ok := c.lru.Get(slug); ok {
		return m, nil
	}
	m, err := c.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.lru.Add(slug, m)
	return m, nil
}

// Invalidate drops one slug from the cache.
func (c *ModalityCache) Invalidate(slug string) {
	c.lru.Remove(slug)
}

// InvalidateAll drops every cached entry.
func (c *ModalityCache) InvalidateAll() {
	c.lru.Purge()
}
