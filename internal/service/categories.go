package service

import (
	"context"
	"strings"
	"time"

	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/observability"
)

const (
	categoriesCacheKey = "categories"
	categoriesCacheTTL = 5 * time.Minute
)

type CategoryInput struct {
	Name string `json:"name" validate:"required,min=2,max=60"`
}

type CategoryService struct {
	store  CategoryStore
	cache  Cache
	logger observability.Logger
	now    func() time.Time
}

func NewCategoryService(store CategoryStore, cache Cache, logger observability.Logger) *CategoryService {
	return &CategoryService{
		store:  store,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List serves from the cache when it can; cache failures fall through to
// the store.
func (s *CategoryService) List(ctx context.Context) ([]domain.Category, error) {
	log := observability.LoggerFromContext(ctx, s.logger)

	var cached []domain.Category
	hit, err := s.cache.GetJSON(ctx, categoriesCacheKey, &cached)
	if err != nil {
		log.WithError(err).Warn("category cache read failed")
	}
	if hit {
		return cached, nil
	}

	categories, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, categoriesCacheKey, categories, categoriesCacheTTL); err != nil {
		log.WithError(err).Warn("category cache write failed")
	}
	return categories, nil
}

// Create returns the existing category when one with the same name exists.
func (s *CategoryService) Create(ctx context.Context, p *auth.Principal, in CategoryInput) (*domain.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	category, err := s.store.FindOrCreate(ctx, in.Name, p.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.cache.Delete(ctx, categoriesCacheKey); err != nil {
		observability.LoggerFromContext(ctx, s.logger).WithError(err).Warn("category cache invalidation failed")
	}
	return category, nil
}
