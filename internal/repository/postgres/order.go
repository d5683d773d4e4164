package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/storefront/orderreview/internal/domain"
	"github.com/storefront/orderreview/pkg/database"
	apperrors "github.com/storefront/orderreview/pkg/errors"
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts an order and its items. Callers wanting atomicity with
// stock changes run it inside Store.WithTx.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	shippingJSON, err := marshalNullable(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	paymentJSON, err := marshalNullable(o.PaymentResult)
	if err != nil {
		return fmt.Errorf("marshal payment result: %w", err)
	}

	orderQuery := `
		INSERT INTO orders (id, user_id, status, total_price, shipping_address, payment_result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.pool.Exec(ctx, orderQuery,
		o.ID,
		o.UserID,
		o.Status,
		o.TotalPrice,
		shippingJSON,
		paymentJSON,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, item := range o.Items {
		_, err = r.pool.Exec(ctx, itemQuery,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.Name,
			item.Price,
			item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	return nil
}

// GetByID retrieves an order with its items in a single query.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT
			o.id, o.user_id, o.status, o.total_price, o.shipping_address,
			o.payment_result, o.created_at, o.updated_at,
			COALESCE(
				JSONB_AGG(
					JSONB_BUILD_OBJECT(
						'id', oi.id,
						'orderId', oi.order_id,
						'product', oi.product_id,
						'name', oi.name,
						'price', oi.price,
						'quantity', oi.quantity
					) ORDER BY oi.id
				) FILTER (WHERE oi.id IS NOT NULL),
				'[]'::jsonb
			) AS items
		FROM orders o
		LEFT JOIN order_items oi ON o.id = oi.order_id
		WHERE o.id = $1
		GROUP BY o.id`

	var (
		o            domain.Order
		shippingJSON []byte
		paymentJSON  []byte
		itemsJSON    []byte
	)

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.UserID,
		&o.Status,
		&o.TotalPrice,
		&shippingJSON,
		&paymentJSON,
		&o.CreatedAt,
		&o.UpdatedAt,
		&itemsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if err := decodeOrderJSON(&o, shippingJSON, paymentJSON); err != nil {
		return nil, err
	}

	o.Items = []domain.OrderItem{}
	if len(itemsJSON) > 0 && string(itemsJSON) != "null" {
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
	}

	return &o, nil
}

// ListByUser returns the user's orders newest first. Items are batch-loaded
// in a second query.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	query := `
		SELECT id, user_id, status, total_price, shipping_address, payment_result, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var (
			o            domain.Order
			shippingJSON []byte
			paymentJSON  []byte
		)
		if err := rows.Scan(
			&o.ID,
			&o.UserID,
			&o.Status,
			&o.TotalPrice,
			&shippingJSON,
			&paymentJSON,
			&o.CreatedAt,
			&o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		if err := decodeOrderJSON(&o, shippingJSON, paymentJSON); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	orderIDs := make([]string, len(orders))
	for i := range orders {
		orderIDs[i] = orders[i].ID
	}

	itemRows, err := r.pool.Query(ctx, `
		SELECT id, order_id, product_id, name, price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("batch load order items: %w", err)
	}
	defer itemRows.Close()

	itemsByOrderID := make(map[string][]domain.OrderItem, len(orders))
	for itemRows.Next() {
		var item domain.OrderItem
		if err := itemRows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		itemsByOrderID[item.OrderID] = append(itemsByOrderID[item.OrderID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}

	for i := range orders {
		if items, ok := itemsByOrderID[orders[i].ID]; ok {
			orders[i].Items = items
		} else {
			orders[i].Items = []domain.OrderItem{}
		}
	}

	return orders, nil
}

// UpdateStatus changes the status of an order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id, status string) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("order", id)
	}
	return nil
}

// Delete removes an order. Items and reviews go with it through ON DELETE
// CASCADE.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("order", id)
	}
	return nil
}

func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeOrderJSON(o *domain.Order, shippingJSON, paymentJSON []byte) error {
	if len(shippingJSON) > 0 && string(shippingJSON) != "null" {
		var addr domain.Address
		if err := json.Unmarshal(shippingJSON, &addr); err != nil {
			return fmt.Errorf("unmarshal shipping address: %w", err)
		}
		o.ShippingAddress = &addr
	}
	if len(paymentJSON) > 0 && string(paymentJSON) != "null" {
		var pr domain.PaymentResult
		if err := json.Unmarshal(paymentJSON, &pr); err != nil {
			return fmt.Errorf("unmarshal payment result: %w", err)
		}
		o.PaymentResult = &pr
	}
	return nil
}
