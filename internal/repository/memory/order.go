package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/storefront/orderreview/internal/domain"
	apperrors "github.com/storefront/orderreview/pkg/errors"
)

type orderRepo struct {
	store *Store
	mu    sync.Locker
}

func (r *orderRepo) Create(_ context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store.st.orders[o.ID]; ok {
		return fmt.Errorf("insert order: duplicate id %s", o.ID)
	}
	for _, item := range o.Items {
		if _, ok := r.store.st.products[item.ProductID]; !ok {
			return fmt.Errorf("insert order item: unknown product %s", item.ProductID)
		}
	}
	stored := *o
	stored.Items = slices.Clone(o.Items)
	r.store.st.orders[o.ID] = stored
	return nil
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.store.st.orders[id]
	if !ok {
		return nil, apperrors.NotFound("order", id)
	}
	return copyOrder(o), nil
}

func (r *orderRepo) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	orders := make([]domain.Order, 0)
	for _, o := range r.store.st.orders {
		if o.UserID == userID {
			orders = append(orders, *copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (r *orderRepo) UpdateStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.store.st.orders[id]
	if !ok {
		return apperrors.NotFound("order", id)
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	r.store.st.orders[id] = o
	return nil
}

// Delete removes the order and every review citing it.
func (r *orderRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.store.st
	if _, ok := st.orders[id]; !ok {
		return apperrors.NotFound("order", id)
	}
	delete(st.orders, id)
	for reviewID, rv := range st.reviews {
		if rv.OrderID == id {
			delete(st.reviews, reviewID)
			delete(st.reviewKeys, reviewKey{rv.ProductID, rv.UserID})
		}
	}
	return nil
}

func copyOrder(o domain.Order) *domain.Order {
	o.Items = slices.Clone(o.Items)
	if o.Items == nil {
		o.Items = []domain.OrderItem{}
	}
	return &o
}
