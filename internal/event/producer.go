// Package event maps domain changes onto Kafka events and applies inbound
// fulfillment events to orders.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/storefront/orderreview/internal/domain"
	pkgkafka "github.com/storefront/orderreview/pkg/kafka"
	"github.com/storefront/orderreview/pkg/logger"
)

// Topics this service produces.
var (
	TopicOrderCreated       = pkgkafka.Topic("order", "created")
	TopicOrderStatusChanged = pkgkafka.Topic("order", "status_changed")
	TopicOrderDeleted       = pkgkafka.Topic("order", "deleted")
	TopicReviewSubmitted    = pkgkafka.Topic("review", "submitted")
	TopicReviewDeleted      = pkgkafka.Topic("review", "deleted")
	TopicRatingUpdated      = pkgkafka.Topic("product", "rating_updated")
)

// Aggregate types and the source stamped on every event.
const (
	AggregateTypeOrder   = "order"
	AggregateTypeReview  = "review"
	AggregateTypeProduct = "product"

	Source = "order-review-service"
)

// OrderCreatedData is the payload of order.created.
type OrderCreatedData struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Status     string          `json:"status"`
	TotalPrice int64           `json:"total_price"`
	Items      []OrderItemData `json:"items"`
}

// OrderItemData is one line of an order in event payloads.
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// OrderStatusChangedData is the payload of order.status_changed.
type OrderStatusChangedData struct {
	OrderID   string `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// OrderDeletedData is the payload of order.deleted.
type OrderDeletedData struct {
	OrderID         string   `json:"order_id"`
	UserID          string   `json:"user_id"`
	RemovedReviewOf []string `json:"removed_review_of"`
}

// ReviewData is the payload of review.submitted and review.deleted.
type ReviewData struct {
	ReviewID  string `json:"review_id"`
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	OrderID   string `json:"order_id"`
	Rating    int    `json:"rating"`
}

// RatingUpdatedData is the payload of product.rating_updated.
type RatingUpdatedData struct {
	ProductID     string  `json:"product_id"`
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
}

// Publisher sends an event to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes this service's domain events. A nil Publisher drops
// every event, which is how the service runs with Kafka disabled.
type Producer struct {
	pub    Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(pub Publisher, logger *slog.Logger) *Producer {
	return &Producer{pub: pub, logger: logger}
}

func (p *Producer) publish(ctx context.Context, topic, eventType, aggregateID, aggregateType string, data any) error {
	if p.pub == nil {
		return nil
	}

	evt, err := pkgkafka.NewEvent(eventType, aggregateID, aggregateType, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.pub.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("event_type", eventType),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

// PublishOrderCreated publishes order.created with the order's lines.
func (p *Producer) PublishOrderCreated(ctx context.Context, o *domain.Order) error {
	items := make([]OrderItemData, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemData{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
		}
	}
	return p.publish(ctx, TopicOrderCreated, "order.created", o.ID, AggregateTypeOrder, OrderCreatedData{
		ID:         o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		TotalPrice: o.TotalPrice,
		Items:      items,
	})
}

// PublishOrderStatusChanged publishes order.status_changed.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, o *domain.Order, oldStatus string) error {
	return p.publish(ctx, TopicOrderStatusChanged, "order.status_changed", o.ID, AggregateTypeOrder, OrderStatusChangedData{
		OrderID:   o.ID,
		OldStatus: oldStatus,
		NewStatus: o.Status,
	})
}

// PublishOrderDeleted publishes order.deleted with the products whose
// reviews went with it.
func (p *Producer) PublishOrderDeleted(ctx context.Context, o *domain.Order, reviewedProducts []string) error {
	return p.publish(ctx, TopicOrderDeleted, "order.deleted", o.ID, AggregateTypeOrder, OrderDeletedData{
		OrderID:         o.ID,
		UserID:          o.UserID,
		RemovedReviewOf: reviewedProducts,
	})
}

// PublishReviewSubmitted publishes review.submitted.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewSubmitted, "review.submitted", r.ID, AggregateTypeReview, reviewData(r))
}

// PublishReviewDeleted publishes review.deleted.
func (p *Producer) PublishReviewDeleted(ctx context.Context, r *domain.Review) error {
	return p.publish(ctx, TopicReviewDeleted, "review.deleted", r.ID, AggregateTypeReview, reviewData(r))
}

// PublishRatingUpdated publishes product.rating_updated.
func (p *Producer) PublishRatingUpdated(ctx context.Context, prod *domain.Product) error {
	return p.publish(ctx, TopicRatingUpdated, "product.rating_updated", prod.ID, AggregateTypeProduct, RatingUpdatedData{
		ProductID:     prod.ID,
		AverageRating: prod.AverageRating,
		TotalReviews:  prod.TotalReviews,
	})
}

func reviewData(r *domain.Review) ReviewData {
	return ReviewData{
		ReviewID:  r.ID,
		ProductID: r.ProductID,
		UserID:    r.UserID,
		OrderID:   r.OrderID,
		Rating:    r.Rating,
	}
}
