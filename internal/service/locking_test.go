package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/orderreview/internal/repository/postgres"
	"github.com/storefront/orderreview/pkg/database"
	apperrors "github.com/storefront/orderreview/pkg/errors"
)

// These tests run the ledgers over the Postgres store so the statement order
// inside each transaction is pinned. pgxmock matches expectations in order.

var (
	pgProductCols = []string{"id", "name", "price", "stock", "average_rating", "total_reviews", "created_at", "updated_at"}
	pgReviewCols  = []string{"id", "product_id", "user_id", "order_id", "rating", "comment", "created_at", "updated_at"}
	pgOrderCols   = []string{"id", "user_id", "status", "total_price", "shipping_address", "payment_result", "created_at", "updated_at", "items"}
)

type pgFixture struct {
	mock    pgxmock.PgxPoolIface
	ratings *RatingAggregator
	orders  *OrderService
	reviews *ReviewService
}

func newPgFixture(t *testing.T) *pgFixture {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	deps := Dependencies{
		Store:  postgres.NewStore(mock),
		Events: new(mockEvents).allowAll(),
		Logger: newTestLogger(),
	}
	ratings := NewRatingAggregator(deps)
	return &pgFixture{
		mock:    mock,
		ratings: ratings,
		orders:  NewOrderService(deps, ratings),
		reviews: NewReviewService(deps, ratings),
	}
}

func productRows(id string, avg float64, total int) *pgxmock.Rows {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(pgProductCols).AddRow(id, "Mug", int64(1500), 4, avg, total, now, now)
}

func (f *pgFixture) expectLock(id string) {
	f.mock.ExpectQuery("FROM products WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(productRows(id, 0, 0))
}

func (f *pgFixture) expectRecompute(id string, avg float64, total int) {
	f.mock.ExpectQuery("UPDATE products p").
		WithArgs(id).
		WillReturnRows(productRows(id, avg, total))
}

func (f *pgFixture) expectReview(id, productID, userID string) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.mock.ExpectQuery("FROM reviews WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(pgReviewCols).AddRow(id, productID, userID, "order-1", 4, "", now, now))
}

func TestDeleteReview_LocksProductBeforeDeleting(t *testing.T) {
	f := newPgFixture(t)

	f.expectReview("rev-1", "prod-1", "alice")
	f.mock.ExpectBegin()
	f.expectLock("prod-1")
	f.mock.ExpectExec("DELETE FROM reviews").
		WithArgs("rev-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	f.expectRecompute("prod-1", 0, 0)
	f.mock.ExpectCommit()

	require.NoError(t, f.reviews.DeleteReview(context.Background(), "rev-1", "alice"))
}

func TestDeleteReview_MissingProductStillDeletes(t *testing.T) {
	f := newPgFixture(t)

	f.expectReview("rev-1", "prod-gone", "alice")
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").
		WithArgs("prod-gone").
		WillReturnError(pgx.ErrNoRows)
	f.mock.ExpectExec("DELETE FROM reviews").
		WithArgs("rev-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	f.mock.ExpectQuery("UPDATE products p").
		WithArgs("prod-gone").
		WillReturnError(pgx.ErrNoRows)
	f.mock.ExpectCommit()

	require.NoError(t, f.reviews.DeleteReview(context.Background(), "rev-1", "alice"))
}

func TestDeleteReview_LockFailureAbortsBeforeDelete(t *testing.T) {
	f := newPgFixture(t)

	f.expectReview("rev-1", "prod-1", "alice")
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").
		WithArgs("prod-1").
		WillReturnError(errors.New("lock timeout"))
	f.mock.ExpectRollback()

	err := f.reviews.DeleteReview(context.Background(), "rev-1", "alice")
	assert.ErrorContains(t, err, "lock timeout")
}

func TestDeleteOrder_LocksReviewedProductsBeforeDeleting(t *testing.T) {
	f := newPgFixture(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FROM orders o").
		WithArgs("order-1").
		WillReturnRows(pgxmock.NewRows(pgOrderCols).AddRow("order-1", "alice", "delivered", int64(3000),
			[]byte("null"), []byte("null"), now, now, []byte(`[]`)))
	f.mock.ExpectQuery("SELECT DISTINCT product_id FROM reviews").
		WithArgs("order-1").
		WillReturnRows(pgxmock.NewRows([]string{"product_id"}).AddRow("prod-b").AddRow("prod-a"))
	// Locks are taken in id order so concurrent deletes cannot deadlock.
	f.expectLock("prod-a")
	f.expectLock("prod-b")
	f.mock.ExpectExec("DELETE FROM orders").
		WithArgs("order-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	f.expectRecompute("prod-b", 0, 0)
	f.expectRecompute("prod-a", 5, 1)
	f.mock.ExpectCommit()

	require.NoError(t, f.orders.DeleteOrder(context.Background(), "order-1"))
}

func TestRecompute_LocksProductFirst(t *testing.T) {
	f := newPgFixture(t)

	f.mock.ExpectBegin()
	f.expectLock("prod-1")
	f.expectRecompute("prod-1", 4.5, 2)
	f.mock.ExpectCommit()

	p, err := f.ratings.Recompute(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 4.5, p.AverageRating)
	assert.Equal(t, 2, p.TotalReviews)
}

func TestSubmitReview_StoreFailureBeatsInvalidRating(t *testing.T) {
	f := newPgFixture(t)

	f.mock.ExpectQuery("FROM orders o").
		WithArgs("order-1").
		WillReturnError(errors.New("conn reset"))

	_, err := f.reviews.SubmitReview(context.Background(), SubmitReviewInput{
		ProductID: "prod-1", OrderID: "order-1", ReviewerID: "alice", Rating: 9,
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.ErrorContains(t, err, "conn reset")
}
