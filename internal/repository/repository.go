package repository

import (
	"context"

	"github.com/storefront/orderreview/internal/domain"
)

// ProductRepository defines product persistence. Rating fields are only
// written through RecomputeRating.
type ProductRepository interface {
	// Create inserts a new product.
	Create(ctx context.Context, product *domain.Product) error

	// GetByID retrieves a product, or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// GetByIDs returns the products that exist among ids, keyed by id.
	GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error)

	// LockByID reads a product and holds its row until the surrounding
	// transaction ends. Returns apperrors.ErrNotFound if absent.
	LockByID(ctx context.Context, id string) (*domain.Product, error)

	// DecrementStock subtracts quantity only if at least that much is on
	// hand. It reports false when the product is missing or short.
	DecrementStock(ctx context.Context, id string, quantity int) (bool, error)

	// RecomputeRating rewrites average_rating and total_reviews from the
	// product's current reviews and returns the updated product.
	RecomputeRating(ctx context.Context, id string) (*domain.Product, error)
}

// OrderRepository defines order persistence.
type OrderRepository interface {
	// Create inserts an order and its items.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order with its items, or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// ListByUser returns the user's orders with items, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)

	// UpdateStatus sets the order's status.
	UpdateStatus(ctx context.Context, id, status string) error

	// Delete removes an order, its items and the reviews that cite it.
	Delete(ctx context.Context, id string) error
}

// ReviewRepository defines review persistence.
type ReviewRepository interface {
	// Upsert inserts a review or overwrites rating, order and comment of the
	// existing review for the same (product, user). Returns the stored row.
	Upsert(ctx context.Context, review *domain.Review) (*domain.Review, error)

	// GetByID retrieves a review, or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// Delete removes a review.
	Delete(ctx context.Context, id string) error

	// ListByProduct returns a page of a product's reviews, newest first, and
	// the total count.
	ListByProduct(ctx context.Context, productID string, page, perPage int) ([]domain.Review, int, error)

	// OrderIDsByUser returns the distinct order ids the user's reviews cite.
	OrderIDsByUser(ctx context.Context, userID string) ([]string, error)

	// ProductIDsByOrder returns the distinct products reviewed against an order.
	ProductIDsByOrder(ctx context.Context, orderID string) ([]string, error)
}

// Repositories bundles the repositories bound to one connection or
// transaction.
type Repositories struct {
	Products ProductRepository
	Orders   OrderRepository
	Reviews  ReviewRepository
}

// TxFunc runs against repositories bound to a single transaction.
type TxFunc func(ctx context.Context, repos Repositories) error

// Store is a storage driver. Repos runs each call on its own; WithTx commits
// everything fn does, or nothing if fn returns an error.
type Store interface {
	Repos() Repositories
	WithTx(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
}
