package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storefront/orderreview/internal/domain"
	apperrors "github.com/storefront/orderreview/pkg/errors"
)

// ProductService serves product reads through the cache and seeds the
// catalog.
type ProductService struct {
	core
}

// NewProductService creates a new product service.
func NewProductService(deps Dependencies) *ProductService {
	return &ProductService{core: newCore(deps)}
}

// GetProduct reads through the cache. Cache failures fall back to the store.
func (s *ProductService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	cached, err := s.cache.Get(ctx, id)
	switch {
	case err != nil:
		s.metrics.cacheLookup("error")
		s.logger.WarnContext(ctx, "product cache read failed",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
	case cached != nil:
		s.metrics.cacheLookup("hit")
		return cached, nil
	default:
		s.metrics.cacheLookup("miss")
	}

	p, err := s.store.Repos().Products.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product by id: %w", err)
	}

	if err := s.cache.Set(ctx, p); err != nil {
		s.logger.WarnContext(ctx, "product cache write failed",
			slog.String("product_id", id),
			slog.String("error", err.Error()),
		)
	}
	return p, nil
}

// CreateProductInput holds the parameters for adding a product.
type CreateProductInput struct {
	Name  string
	Price int64
	Stock int
}

// CreateProduct adds a product with no reviews.
func (s *ProductService) CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.InvalidInput("product name is required")
	}
	if input.Price < 0 {
		return nil, apperrors.InvalidInput("price must not be negative")
	}
	if input.Stock < 0 {
		return nil, apperrors.InvalidInput("stock must not be negative")
	}

	now := time.Now().UTC()
	p := &domain.Product{
		ID:        uuid.New().String(),
		Name:      name,
		Price:     input.Price,
		Stock:     input.Stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Repos().Products.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", p.ID),
		slog.String("name", p.Name),
		slog.Int("stock", p.Stock),
	)
	return p, nil
}
