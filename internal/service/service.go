// Package service holds the order ledger, the review ledger, the rating
// aggregator and product reads.
package service

import (
	"context"
	"log/slog"

	"github.com/storefront/orderreview/internal/domain"
	"github.com/storefront/orderreview/internal/repository"
)

const tracerName = "github.com/storefront/orderreview/internal/service"

// EventPublisher publishes domain events. Failures are logged by the caller
// and never fail the operation that triggered them.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *domain.Order) error
	PublishOrderStatusChanged(ctx context.Context, order *domain.Order, oldStatus string) error
	PublishOrderDeleted(ctx context.Context, order *domain.Order, reviewedProducts []string) error
	PublishReviewSubmitted(ctx context.Context, review *domain.Review) error
	PublishReviewDeleted(ctx context.Context, review *domain.Review) error
	PublishRatingUpdated(ctx context.Context, product *domain.Product) error
}

// ProductCache is a read-through cache of products. Get returns (nil, nil)
// on a miss.
type ProductCache interface {
	Get(ctx context.Context, id string) (*domain.Product, error)
	Set(ctx context.Context, product *domain.Product) error
	Invalidate(ctx context.Context, ids ...string) error
}

// Dependencies are the collaborators shared by every service. Cache, Events
// and Metrics are optional.
type Dependencies struct {
	Store   repository.Store
	Cache   ProductCache
	Events  EventPublisher
	Metrics *Metrics
	Logger  *slog.Logger
}

type core struct {
	store   repository.Store
	cache   ProductCache
	events  EventPublisher
	metrics *Metrics
	logger  *slog.Logger
}

func newCore(deps Dependencies) core {
	c := core{
		store:   deps.Store,
		cache:   deps.Cache,
		events:  deps.Events,
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
	if c.cache == nil {
		c.cache = noopCache{}
	}
	if c.events == nil {
		c.events = noopEvents{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// invalidate drops products from the cache. The store stays authoritative,
// so a failure is only logged.
func (c core) invalidate(ctx context.Context, ids ...string) {
	if err := c.cache.Invalidate(ctx, ids...); err != nil {
		c.logger.WarnContext(ctx, "failed to invalidate product cache",
			slog.Any("product_ids", ids),
			slog.String("error", err.Error()),
		)
	}
}

func (c core) publishFailed(ctx context.Context, eventType, aggregateID string, err error) {
	if err == nil {
		return
	}
	c.logger.ErrorContext(ctx, "failed to publish "+eventType+" event",
		slog.String("aggregate_id", aggregateID),
		slog.String("error", err.Error()),
	)
}

// ratingChanged runs after a committed rating change.
func (c core) ratingChanged(ctx context.Context, p *domain.Product) {
	c.invalidate(ctx, p.ID)
	c.publishFailed(ctx, "product.rating_updated", p.ID, c.events.PublishRatingUpdated(ctx, p))
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (*domain.Product, error) { return nil, nil }
func (noopCache) Set(context.Context, *domain.Product) error           { return nil }
func (noopCache) Invalidate(context.Context, ...string) error          { return nil }

type noopEvents struct{}

func (noopEvents) PublishOrderCreated(context.Context, *domain.Order) error { return nil }
func (noopEvents) PublishOrderStatusChanged(context.Context, *domain.Order, string) error {
	return nil
}
func (noopEvents) PublishOrderDeleted(context.Context, *domain.Order, []string) error { return nil }
func (noopEvents) PublishReviewSubmitted(context.Context, *domain.Review) error       { return nil }
func (noopEvents) PublishReviewDeleted(context.Context, *domain.Review) error         { return nil }
func (noopEvents) PublishRatingUpdated(context.Context, *domain.Product) error        { return nil }
