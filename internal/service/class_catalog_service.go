package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/noah-isme/class-session-api/internal/models"
	appErrors "github.com/noah-isme/class-session-api/pkg/errors"
)

type classDefinitionReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassDefinition, error)
}

// ClassCatalogService resolves class definitions through a read-through cache.
type ClassCatalogService struct {
	repo  classDefinitionReader
	cache *CacheService
	ttl   time.Duration
}

// NewClassCatalogService constructs the catalog lookup.
func NewClassCatalogService(repo classDefinitionReader, cache *CacheService, ttl time.Duration) *ClassCatalogService {
	return &ClassCatalogService{repo: repo, cache: cache, ttl: ttl}
}

// Get returns the class definition or NOT_FOUND.
func (s *ClassCatalogService) Get(ctx context.Context, id string) (*models.ClassDefinition, error) {
	return Remember(ctx, s.cache, classDefinitionCacheKey(id), s.ttl, func(ctx context.Context) (*models.ClassDefinition, error) {
		def, err := s.repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "class definition not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class definition")
		}
		return def, nil
	})
}

func classDefinitionCacheKey(id string) string {
	return "class_definitions:" + id
}
