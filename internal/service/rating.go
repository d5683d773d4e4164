package service

import (
	"context"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/storefront/orderreview/internal/domain"
	"github.com/storefront/orderreview/internal/repository"
	apperrors "github.com/storefront/orderreview/pkg/errors"
	"github.com/storefront/orderreview/pkg/tracing"
)

// RatingAggregator derives a product's average rating and review count from
// its reviews.
type RatingAggregator struct {
	core
}

// NewRatingAggregator creates a new rating aggregator.
func NewRatingAggregator(deps Dependencies) *RatingAggregator {
	return &RatingAggregator{core: newCore(deps)}
}

// RecomputeWith recomputes inside the caller's transaction. It has no side
// effects beyond the store; the caller invalidates and publishes after
// commit.
func (a *RatingAggregator) RecomputeWith(ctx context.Context, repos repository.Repositories, productID string) (*domain.Product, error) {
	p, err := repos.Products.RecomputeRating(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("recompute rating: %w", err)
	}
	a.metrics.ratingRecomputed()
	return p, nil
}

// LockProducts locks the product rows in id order for the rest of the
// transaction. A recompute that runs after the lock sees every review
// committed by writers that held it. Missing products are skipped.
func (a *RatingAggregator) LockProducts(ctx context.Context, repos repository.Repositories, productIDs ...string) error {
	for _, id := range slices.Sorted(slices.Values(productIDs)) {
		if _, err := repos.Products.LockByID(ctx, id); err != nil && !apperrors.IsNotFound(err) {
			return fmt.Errorf("lock product: %w", err)
		}
	}
	return nil
}

// Recompute recomputes productID on its own and announces the result.
// Running it twice without review changes yields the same product.
func (a *RatingAggregator) Recompute(ctx context.Context, productID string) (_ *domain.Product, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "RatingAggregator.Recompute", attribute.String("product_id", productID))
	defer func() { tracing.End(span, err) }()

	var p *domain.Product
	err = a.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Products.LockByID(ctx, productID); err != nil {
			return fmt.Errorf("lock product: %w", err)
		}
		p, err = a.RecomputeWith(ctx, repos, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.ratingChanged(ctx, p)
	return p, nil
}
