package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/storefront/orderreview/internal/domain"
	"github.com/storefront/orderreview/pkg/database"
	apperrors "github.com/storefront/orderreview/pkg/errors"
)

const reviewColumns = `id, product_id, user_id, order_id, rating, comment, created_at, updated_at`

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

func scanReview(row scanner) (*domain.Review, error) {
	var rv domain.Review
	err := row.Scan(
		&rv.ID,
		&rv.ProductID,
		&rv.UserID,
		&rv.OrderID,
		&rv.Rating,
		&rv.Comment,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

// Upsert writes the review keyed by (product_id, user_id). On conflict the
// existing row keeps its id and created_at.
func (r *ReviewRepository) Upsert(ctx context.Context, rv *domain.Review) (*domain.Review, error) {
	query := `
		INSERT INTO reviews (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (product_id, user_id) DO UPDATE
		SET rating = EXCLUDED.rating,
			order_id = EXCLUDED.order_id,
			comment = EXCLUDED.comment,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + reviewColumns

	stored, err := scanReview(r.pool.QueryRow(ctx, query,
		rv.ID,
		rv.ProductID,
		rv.UserID,
		rv.OrderID,
		rv.Rating,
		rv.Comment,
		rv.CreatedAt,
		rv.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert review: %w", err)
	}
	return stored, nil
}

// GetByID retrieves a review by its ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	rv, err := scanReview(r.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("scan review: %w", err)
	}
	return rv, nil
}

// Delete removes a review by its ID.
func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", id)
	}
	return nil
}

// ListByProduct returns a page of reviews newest first with the total count.
func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, page, perPage int) ([]domain.Review, int, error) {
	if perPage <= 0 {
		perPage = 20
	}
	offset := 0
	if page > 1 {
		offset = (page - 1) * perPage
	}

	query := `
		SELECT ` + reviewColumns + `, count(*) OVER() AS total_count
		FROM reviews
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, productID, perPage, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var total int
	reviews := make([]domain.Review, 0)
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(
			&rv.ID,
			&rv.ProductID,
			&rv.UserID,
			&rv.OrderID,
			&rv.Rating,
			&rv.Comment,
			&rv.CreatedAt,
			&rv.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate review rows: %w", err)
	}
	return reviews, total, nil
}

// OrderIDsByUser returns the orders the user's reviews were written against.
func (r *ReviewRepository) OrderIDsByUser(ctx context.Context, userID string) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT order_id FROM reviews WHERE user_id = $1`, userID)
}

// ProductIDsByOrder returns the products reviewed against an order.
func (r *ReviewRepository) ProductIDsByOrder(ctx context.Context, orderID string) ([]string, error) {
	return r.distinct(ctx, `SELECT DISTINCT product_id FROM reviews WHERE order_id = $1`, orderID)
}

func (r *ReviewRepository) distinct(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query review ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan review id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review ids: %w", err)
	}
	return ids, nil
}
