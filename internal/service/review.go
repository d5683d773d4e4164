package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/storefront/orderreview/internal/domain"
	"github.com/storefront/orderreview/internal/repository"
	apperrors "github.com/storefront/orderreview/pkg/errors"
	"github.com/storefront/orderreview/pkg/tracing"
)

// ReviewService is the review ledger. It keeps at most one review per
// (product, user), admits only reviews backed by the reviewer's delivered
// order, and keeps product ratings in step.
type ReviewService struct {
	core
	ratings *RatingAggregator
}

// NewReviewService creates a new review service.
func NewReviewService(deps Dependencies, ratings *RatingAggregator) *ReviewService {
	return &ReviewService{core: newCore(deps), ratings: ratings}
}

// SubmitReviewInput holds the parameters for submitting a review.
type SubmitReviewInput struct {
	ProductID  string
	OrderID    string
	ReviewerID string
	Rating     int
	Comment    string
}

// SubmitReview creates or replaces the reviewer's review of a product.
// Checks run in a fixed order: rating, order existence, ownership, delivery,
// then product membership, except that a non-owner always gets Forbidden.
// The write and the rating recompute share one transaction that locks the
// product row first.
func (s *ReviewService) SubmitReview(ctx context.Context, input SubmitReviewInput) (_ *domain.Review, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "ReviewService.SubmitReview",
		attribute.String("product_id", input.ProductID),
		attribute.String("order_id", input.OrderID),
	)
	defer func() { tracing.End(span, err) }()

	var ratingErr error
	if !domain.ValidRating(input.Rating) {
		ratingErr = apperrors.InvalidInput(fmt.Sprintf("rating must be between %d and %d", domain.MinRating, domain.MaxRating))
	}

	order, err := s.store.Repos().Orders.GetByID(ctx, input.OrderID)
	if err != nil {
		if ratingErr != nil && apperrors.IsNotFound(err) {
			return nil, ratingErr
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	// A stranger to the order is refused whatever they submitted.
	if order.UserID != input.ReviewerID {
		return nil, apperrors.Forbidden("you can only review products from your own orders")
	}
	if ratingErr != nil {
		return nil, ratingErr
	}
	if !order.IsDelivered() {
		return nil, apperrors.Precondition("order has not been delivered yet")
	}
	if !order.ContainsProduct(input.ProductID) {
		return nil, apperrors.InvalidInput("product is not part of this order")
	}

	now := time.Now().UTC()
	var (
		stored  *domain.Review
		product *domain.Product
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if _, err := repos.Products.LockByID(ctx, input.ProductID); err != nil {
			return fmt.Errorf("lock product: %w", err)
		}

		rv, err := repos.Reviews.Upsert(ctx, &domain.Review{
			ID:        uuid.New().String(),
			ProductID: input.ProductID,
			UserID:    input.ReviewerID,
			OrderID:   input.OrderID,
			Rating:    input.Rating,
			Comment:   input.Comment,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("upsert review: %w", err)
		}
		stored = rv

		product, err = s.ratings.RecomputeWith(ctx, repos, input.ProductID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.reviewSubmitted(stored.Rating)
	s.publishFailed(ctx, "review.submitted", stored.ID, s.events.PublishReviewSubmitted(ctx, stored))
	s.ratingChanged(ctx, product)

	s.logger.InfoContext(ctx, "review submitted",
		slog.String("review_id", stored.ID),
		slog.String("product_id", stored.ProductID),
		slog.Int("rating", stored.Rating),
		slog.Float64("average_rating", product.AverageRating),
		slog.Int("total_reviews", product.TotalReviews),
	)

	return stored, nil
}

// DeleteReview removes a review on behalf of its author and recomputes the
// product. A product that no longer exists is tolerated.
func (s *ReviewService) DeleteReview(ctx context.Context, reviewID, requesterID string) (err error) {
	ctx, span := tracing.Start(ctx, tracerName, "ReviewService.DeleteReview", attribute.String("review_id", reviewID))
	defer func() { tracing.End(span, err) }()

	review, err := s.store.Repos().Reviews.GetByID(ctx, reviewID)
	if err != nil {
		return fmt.Errorf("get review by id: %w", err)
	}
	if review.UserID != requesterID {
		return apperrors.Forbidden("you can only delete your own reviews")
	}

	var product *domain.Product
	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := s.ratings.LockProducts(ctx, repos, review.ProductID); err != nil {
			return err
		}
		if err := repos.Reviews.Delete(ctx, reviewID); err != nil {
			return fmt.Errorf("delete review: %w", err)
		}
		p, err := s.ratings.RecomputeWith(ctx, repos, review.ProductID)
		if apperrors.IsNotFound(err) {
			return nil
		}
		product = p
		return err
	})
	if err != nil {
		return err
	}

	s.metrics.reviewDeleted()
	s.publishFailed(ctx, "review.deleted", review.ID, s.events.PublishReviewDeleted(ctx, review))
	if product != nil {
		s.ratingChanged(ctx, product)
	}

	s.logger.InfoContext(ctx, "review deleted",
		slog.String("review_id", review.ID),
		slog.String("product_id", review.ProductID),
	)
	return nil
}

// ListProductReviews returns a page of a product's reviews, newest first.
func (s *ReviewService) ListProductReviews(ctx context.Context, productID string, page, perPage int) ([]domain.Review, int, error) {
	reviews, total, err := s.store.Repos().Reviews.ListByProduct(ctx, productID, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list product reviews: %w", err)
	}
	return reviews, total, nil
}
