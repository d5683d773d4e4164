package service

import (
	"context"
	"errors"
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

// OrderService is the order ledger: it records purchases against stock and
// answers ownership and status questions about them.
type OrderService struct {
	core
	ratings *RatingAggregator
}

// NewOrderService creates a new order service.
func NewOrderService(deps Dependencies, ratings *RatingAggregator) *OrderService {
	return &OrderService{core: newCore(deps), ratings: ratings}
}

// CreateOrderInput holds the parameters for creating an order.
type CreateOrderInput struct {
	BuyerID         string
	Items           []domain.LineRequest
	ShippingAddress *domain.Address
	PaymentResult   *domain.PaymentResult
	// ClientTotal is what the client believes the total is. The server's
	// total always wins.
	ClientTotal *int64
}

// CreateOrder validates every line against current stock before touching
// anything, then records the order and decrements stock in one transaction.
// The decrement is conditional, so a concurrent order that drained a product
// after the pre-pass aborts this one with InsufficientStock.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (_ *domain.Order, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "OrderService.CreateOrder", attribute.String("buyer_id", input.BuyerID))
	defer func() { tracing.End(span, err) }()

	if input.BuyerID == "" {
		return nil, apperrors.InvalidInput("buyer id is required")
	}
	if err := domain.ValidateLines(input.Items); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	lines := domain.MergeQuantities(input.Items)
	productIDs := make([]string, len(lines))
	for i, l := range lines {
		productIDs[i] = l.ProductID
	}

	products, err := s.store.Repos().Products.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load order products: %w", err)
	}
	for _, l := range lines {
		if _, ok := products[l.ProductID]; !ok {
			return nil, apperrors.NotFound("product", l.ProductID)
		}
	}
	for _, l := range lines {
		if p := products[l.ProductID]; l.Quantity > p.Stock {
			s.metrics.stockRejected()
			return nil, apperrors.InsufficientStock(p.Name, p.Stock, l.Quantity)
		}
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              uuid.New().String(),
		UserID:          input.BuyerID,
		Status:          domain.OrderStatusPending,
		ShippingAddress: input.ShippingAddress,
		PaymentResult:   input.PaymentResult,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.Items = make([]domain.OrderItem, len(lines))
	for i, l := range lines {
		p := products[l.ProductID]
		order.Items[i] = domain.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  l.Quantity,
		}
	}
	order.TotalPrice = domain.CalculateTotal(order.Items)

	if input.ClientTotal != nil && *input.ClientTotal != order.TotalPrice {
		s.logger.WarnContext(ctx, "client total differs from computed total",
			slog.Int64("client_total", *input.ClientTotal),
			slog.Int64("total_price", order.TotalPrice),
		)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.Orders.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, l := range lines {
			ok, err := repos.Products.DecrementStock(ctx, l.ProductID, l.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return s.stockShortfall(ctx, repos, l)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientStock) {
			s.metrics.stockRejected()
		}
		return nil, err
	}

	s.invalidate(ctx, productIDs...)
	s.publishFailed(ctx, "order.created", order.ID, s.events.PublishOrderCreated(ctx, order))
	s.metrics.orderCreated()

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.Int64("total_price", order.TotalPrice),
		slog.Int("items", len(order.Items)),
	)

	return order, nil
}

// stockShortfall explains a failed conditional decrement.
func (s *OrderService) stockShortfall(ctx context.Context, repos repository.Repositories, l domain.LineRequest) error {
	p, err := repos.Products.GetByID(ctx, l.ProductID)
	if err != nil {
		return err
	}
	return apperrors.InsufficientStock(p.Name, p.Stock, l.Quantity)
}

// GetOrdersForUser lists the buyer's orders newest first, marking those the
// buyer has already reviewed against.
func (s *OrderService) GetOrdersForUser(ctx context.Context, buyerID string) ([]domain.OrderWithReview, error) {
	repos := s.store.Repos()

	orders, err := repos.Orders.ListByUser(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	reviewed, err := repos.Reviews.OrderIDsByUser(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list reviewed orders: %w", err)
	}

	seen := make(map[string]struct{}, len(reviewed))
	for _, id := range reviewed {
		seen[id] = struct{}{}
	}

	out := make([]domain.OrderWithReview, len(orders))
	for i, o := range orders {
		_, ok := seen[o.ID]
		out[i] = domain.OrderWithReview{Order: o, HasReviewed: ok}
	}
	return out, nil
}

// GetOrder returns an order to its buyer.
func (s *OrderService) GetOrder(ctx context.Context, orderID, actorID string) (*domain.Order, error) {
	order, err := s.store.Repos().Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	if order.UserID != actorID {
		return nil, apperrors.Forbidden("order belongs to another user")
	}
	return order, nil
}

// UpdateStatus moves an order along pending -> shipped -> delivered.
// Re-applying the current status is a no-op, so replayed fulfillment events
// are harmless.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, status string) (_ *domain.Order, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "OrderService.UpdateStatus",
		attribute.String("order_id", orderID),
		attribute.String("status", status),
	)
	defer func() { tracing.End(span, err) }()

	if !domain.IsValidStatus(status) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown order status %q", status))
	}

	var (
		order     *domain.Order
		oldStatus string
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		o, err := repos.Orders.GetByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order by id: %w", err)
		}
		order, oldStatus = o, o.Status
		if o.Status == status {
			return nil
		}
		if !o.CanTransitionTo(status) {
			return apperrors.Precondition(fmt.Sprintf("cannot move order from %s to %s", o.Status, status))
		}
		if err := repos.Orders.UpdateStatus(ctx, orderID, status); err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		o.Status = status
		o.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if oldStatus != status {
		s.metrics.statusChanged(status)
		s.publishFailed(ctx, "order.status_changed", order.ID, s.events.PublishOrderStatusChanged(ctx, order, oldStatus))
		s.logger.InfoContext(ctx, "order status updated",
			slog.String("order_id", order.ID),
			slog.String("old_status", oldStatus),
			slog.String("new_status", status),
		)
	}
	return order, nil
}

// DeleteOrder removes an order together with the reviews that cite it and
// recomputes the affected products in the same transaction.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID string) (err error) {
	ctx, span := tracing.Start(ctx, tracerName, "OrderService.DeleteOrder", attribute.String("order_id", orderID))
	defer func() { tracing.End(span, err) }()

	var (
		order    *domain.Order
		reviewed []string
		updated  []*domain.Product
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		o, err := repos.Orders.GetByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("get order by id: %w", err)
		}
		order = o

		if reviewed, err = repos.Reviews.ProductIDsByOrder(ctx, orderID); err != nil {
			return fmt.Errorf("list reviewed products: %w", err)
		}
		if err := s.ratings.LockProducts(ctx, repos, reviewed...); err != nil {
			return err
		}
		if err := repos.Orders.Delete(ctx, orderID); err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		for _, productID := range reviewed {
			p, err := s.ratings.RecomputeWith(ctx, repos, productID)
			if apperrors.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			updated = append(updated, p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range updated {
		s.ratingChanged(ctx, p)
	}
	s.publishFailed(ctx, "order.deleted", order.ID, s.events.PublishOrderDeleted(ctx, order, reviewed))

	s.logger.InfoContext(ctx, "order deleted",
		slog.String("order_id", order.ID),
		slog.Int("reviews_removed", len(reviewed)),
	)
	return nil
}
