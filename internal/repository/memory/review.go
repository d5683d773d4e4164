package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/storefront/orderreview/internal/domain"
	apperrors "github.com/storefront/orderreview/pkg/errors"
)

type reviewRepo struct {
	store *Store
	mu    sync.Locker
}

func (r *reviewRepo) Upsert(_ context.Context, rv *domain.Review) (*domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.store.st
	if _, ok := st.products[rv.ProductID]; !ok {
		return nil, fmt.Errorf("upsert review: unknown product %s", rv.ProductID)
	}
	if _, ok := st.orders[rv.OrderID]; !ok {
		return nil, fmt.Errorf("upsert review: unknown order %s", rv.OrderID)
	}

	key := reviewKey{rv.ProductID, rv.UserID}
	if id, ok := st.reviewKeys[key]; ok {
		existing := st.reviews[id]
		existing.Rating = rv.Rating
		existing.OrderID = rv.OrderID
		existing.Comment = rv.Comment
		existing.UpdatedAt = rv.UpdatedAt
		st.reviews[id] = existing
		return &existing, nil
	}

	stored := *rv
	st.reviews[rv.ID] = stored
	st.reviewKeys[key] = rv.ID
	return &stored, nil
}

func (r *reviewRepo) GetByID(_ context.Context, id string) (*domain.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rv, ok := r.store.st.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	return &rv, nil
}

func (r *reviewRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rv, ok := r.store.st.reviews[id]
	if !ok {
		return apperrors.NotFound("review", id)
	}
	delete(r.store.st.reviews, id)
	delete(r.store.st.reviewKeys, reviewKey{rv.ProductID, rv.UserID})
	return nil
}

func (r *reviewRepo) ListByProduct(_ context.Context, productID string, page, perPage int) ([]domain.Review, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]domain.Review, 0)
	for _, rv := range r.store.st.reviews {
		if rv.ProductID == productID {
			all = append(all, rv)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if perPage <= 0 {
		perPage = 20
	}
	if page < 1 {
		page = 1
	}
	start := min((page-1)*perPage, len(all))
	end := min(start+perPage, len(all))
	return append([]domain.Review{}, all[start:end]...), len(all), nil
}

func (r *reviewRepo) OrderIDsByUser(_ context.Context, userID string) ([]string, error) {
	return r.distinct(func(rv domain.Review) (string, bool) { return rv.OrderID, rv.UserID == userID }), nil
}

func (r *reviewRepo) ProductIDsByOrder(_ context.Context, orderID string) ([]string, error) {
	return r.distinct(func(rv domain.Review) (string, bool) { return rv.ProductID, rv.OrderID == orderID }), nil
}

func (r *reviewRepo) distinct(pick func(domain.Review) (string, bool)) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, rv := range r.store.st.reviews {
		if id, ok := pick(rv); ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
