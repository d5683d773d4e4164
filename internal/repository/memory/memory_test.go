package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/orderreview/internal/domain"
	"github.com/storefront/orderreview/internal/repository"
	apperrors "github.com/storefront/orderreview/pkg/errors"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	repos := s.Repos()
	require.NoError(t, repos.Products.Create(ctx, &domain.Product{ID: "p1", Name: "Mug", Price: 1500, Stock: 2, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, repos.Orders.Create(ctx, &domain.Order{
		ID: "o1", UserID: "alice", Status: domain.OrderStatusDelivered, CreatedAt: now,
		Items: []domain.OrderItem{{ID: "i1", OrderID: "o1", ProductID: "p1", Quantity: 1, Price: 1500}},
	}))
}

// --- Transactions ---

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ok, err := repos.Products.DecrementStock(ctx, "p1", 2)
		require.NoError(t, err)
		require.True(t, ok)
		_, err = repos.Reviews.Upsert(ctx, &domain.Review{ID: "r1", ProductID: "p1", UserID: "alice", OrderID: "o1", Rating: 5})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.Repos().Products.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
	_, err = s.Repos().Reviews.GetByID(ctx, "r1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestWithTx_ConcurrentDecrementsNeverOversell(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	require.NoError(t, s.Repos().Products.Create(ctx, &domain.Product{ID: "p", Stock: 10}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
				ok, err := repos.Products.DecrementStock(ctx, "p", 1)
				if err != nil || !ok {
					return errors.New("short")
				}
				wins.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()

	p, err := s.Repos().Products.GetByID(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
	assert.Equal(t, int32(10), wins.Load())
}

// --- Products ---

func TestProducts_DecrementStock(t *testing.T) {
	s := NewStore()
	seed(t, s)
	repo := s.Repos().Products
	ctx := context.Background()

	ok, _ := repo.DecrementStock(ctx, "p1", 3)
	assert.False(t, ok)
	ok, _ = repo.DecrementStock(ctx, "p1", 2)
	assert.True(t, ok)
	ok, _ = repo.DecrementStock(ctx, "missing", 1)
	assert.False(t, ok)
}

func TestProducts_GetByIDsSkipsMissing(t *testing.T) {
	s := NewStore()
	seed(t, s)
	got, err := s.Repos().Products.GetByIDs(context.Background(), []string{"p1", "nope"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestProducts_ReturnedValuesAreCopies(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()

	p, _ := s.Repos().Products.GetByID(ctx, "p1")
	p.Stock = 99
	again, _ := s.Repos().Products.GetByID(ctx, "p1")
	assert.Equal(t, 2, again.Stock)
}

func TestProducts_RecomputeRating(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	repos := s.Repos()
	require.NoError(t, repos.Orders.Create(ctx, &domain.Order{ID: "o2", UserID: "bob", Status: domain.OrderStatusDelivered}))

	_, err := repos.Reviews.Upsert(ctx, &domain.Review{ID: "r1", ProductID: "p1", UserID: "alice", OrderID: "o1", Rating: 5})
	require.NoError(t, err)
	_, err = repos.Reviews.Upsert(ctx, &domain.Review{ID: "r2", ProductID: "p1", UserID: "bob", OrderID: "o2", Rating: 2})
	require.NoError(t, err)

	p, err := repos.Products.RecomputeRating(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalReviews)
	assert.InDelta(t, 3.5, p.AverageRating, 1e-9)

	_, err = repos.Products.RecomputeRating(ctx, "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

// --- Orders ---

func TestOrders_ListByUserNewestFirst(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	later := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.Repos().Orders.Create(ctx, &domain.Order{ID: "o9", UserID: "alice", Status: domain.OrderStatusPending, CreatedAt: later}))
	require.NoError(t, s.Repos().Orders.Create(ctx, &domain.Order{ID: "ox", UserID: "bob", CreatedAt: later}))

	orders, err := s.Repos().Orders.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "o9", orders[0].ID)
	assert.Equal(t, "o1", orders[1].ID)
}

func TestOrders_CreateRejectsUnknownProduct(t *testing.T) {
	s := NewStore()
	err := s.Repos().Orders.Create(context.Background(), &domain.Order{
		ID: "o1", Items: []domain.OrderItem{{ProductID: "ghost", Quantity: 1}},
	})
	assert.Error(t, err)
}

func TestOrders_DeleteCascadesReviews(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	repos := s.Repos()
	_, err := repos.Reviews.Upsert(ctx, &domain.Review{ID: "r1", ProductID: "p1", UserID: "alice", OrderID: "o1", Rating: 4})
	require.NoError(t, err)

	require.NoError(t, repos.Orders.Delete(ctx, "o1"))

	_, err = repos.Reviews.GetByID(ctx, "r1")
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(repos.Orders.Delete(ctx, "o1")))

	// the (product, user) slot is free again
	require.NoError(t, repos.Orders.Create(ctx, &domain.Order{ID: "o2", UserID: "alice"}))
	stored, err := repos.Reviews.Upsert(ctx, &domain.Review{ID: "r2", ProductID: "p1", UserID: "alice", OrderID: "o2", Rating: 1})
	require.NoError(t, err)
	assert.Equal(t, "r2", stored.ID)
}

func TestOrders_UpdateStatus(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.Repos().Orders.UpdateStatus(ctx, "o1", domain.OrderStatusShipped))
	o, _ := s.Repos().Orders.GetByID(ctx, "o1")
	assert.Equal(t, domain.OrderStatusShipped, o.Status)
	assert.True(t, apperrors.IsNotFound(s.Repos().Orders.UpdateStatus(ctx, "nope", "shipped")))
}

// --- Reviews ---

func TestReviews_UpsertReplaces(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	repo := s.Repos().Reviews

	first, err := repo.Upsert(ctx, &domain.Review{ID: "r1", ProductID: "p1", UserID: "alice", OrderID: "o1", Rating: 5})
	require.NoError(t, err)
	second, err := repo.Upsert(ctx, &domain.Review{ID: "r2", ProductID: "p1", UserID: "alice", OrderID: "o1", Rating: 3, Comment: "meh"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.Rating)
	assert.Equal(t, "meh", second.Comment)

	_, total, err := repo.ListByProduct(ctx, "p1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestReviews_ListByProductPaginates(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	base := time.Now().UTC()
	for i, user := range []string{"u1", "u2", "u3"} {
		_, err := s.Repos().Reviews.Upsert(ctx, &domain.Review{
			ID: "r" + user, ProductID: "p1", UserID: user, OrderID: "o1", Rating: 4,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	page, total, err := s.Repos().Reviews.ListByProduct(ctx, "p1", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "ru1", page[0].ID)

	page, _, _ = s.Repos().Reviews.ListByProduct(ctx, "p1", 5, 2)
	assert.Empty(t, page)
}

func TestReviews_DistinctIDs(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	repos := s.Repos()
	require.NoError(t, repos.Products.Create(ctx, &domain.Product{ID: "p2"}))
	_, _ = repos.Reviews.Upsert(ctx, &domain.Review{ID: "r1", ProductID: "p1", UserID: "alice", OrderID: "o1", Rating: 4})
	_, _ = repos.Reviews.Upsert(ctx, &domain.Review{ID: "r2", ProductID: "p2", UserID: "alice", OrderID: "o1", Rating: 2})

	orderIDs, err := repos.Reviews.OrderIDsByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, orderIDs)

	productIDs, err := repos.Reviews.ProductIDsByOrder(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, productIDs)
}

func TestReviews_DeleteFreesSlot(t *testing.T) {
	s := NewStore()
	seed(t, s)
	ctx := context.Background()
	repo := s.Repos().Reviews
	_, _ = repo.Upsert(ctx, &domain.Review{ID: "r1", ProductID: "p1", UserID: "alice", OrderID: "o1", Rating: 4})

	require.NoError(t, repo.Delete(ctx, "r1"))
	assert.True(t, apperrors.IsNotFound(repo.Delete(ctx, "r1")))

	stored, err := repo.Upsert(ctx, &domain.Review{ID: "r2", ProductID: "p1", UserID: "alice", OrderID: "o1", Rating: 1})
	require.NoError(t, err)
	assert.Equal(t, "r2", stored.ID)
}
