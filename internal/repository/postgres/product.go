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

const productColumns = `id, name, price, stock, average_rating, total_reviews, created_at, updated_at`

// ProductRepository implements repository.ProductRepository using PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func scanProduct(row scanner) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Price,
		&p.Stock,
		&p.AverageRating,
		&p.TotalReviews,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.Price,
		p.Stock,
		p.AverageRating,
		p.TotalReviews,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

// LockByID retrieves a product and locks its row for the rest of the
// transaction.
func (r *ProductRepository) LockByID(ctx context.Context, id string) (*domain.Product, error) {
	return r.getOne(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
}

func (r *ProductRepository) getOne(ctx context.Context, query, id string) (*domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

// GetByIDs loads every existing product among ids in one query.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*domain.Product, error) {
	out := make(map[string]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return out, nil
}

// DecrementStock subtracts quantity in a single conditional update, so two
// concurrent orders can never drive stock below zero.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, quantity int) (bool, error) {
	query := `
		UPDATE products
		SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1`

	ct, err := r.pool.Exec(ctx, query, quantity, id)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// RecomputeRating derives the rating fields from the reviews table in one
// statement.
func (r *ProductRepository) RecomputeRating(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		UPDATE products p
		SET average_rating = s.avg_rating,
			total_reviews = s.review_count,
			updated_at = NOW()
		FROM (
			SELECT COALESCE(AVG(rating), 0)::float8 AS avg_rating, COUNT(*)::int AS review_count
			FROM reviews
			WHERE product_id = $1
		) s
		WHERE p.id = $1
		RETURNING p.id, p.name, p.price, p.stock, p.average_rating, p.total_reviews, p.created_at, p.updated_at`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", id)
		}
		return nil, fmt.Errorf("recompute rating: %w", err)
	}
	return p, nil
}
