package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/storefront/orderreview/internal/domain"
	apperrors "github.com/storefront/orderreview/pkg/errors"
)

type productRepo struct {
	store *Store
	mu    sync.Locker
}

func (r *productRepo) Create(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store.st.products[p.ID]; ok {
		return fmt.Errorf("insert product: duplicate id %s", p.ID)
	}
	r.store.st.products[p.ID] = *p
	return nil
}

func (r *productRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

// LockByID is GetByID: the transaction already holds the store lock.
func (r *productRepo) LockByID(_ context.Context, id string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *productRepo) get(id string) (*domain.Product, error) {
	p, ok := r.store.st.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	return &p, nil
}

func (r *productRepo) GetByIDs(_ context.Context, ids []string) (map[string]*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.store.st.products[id]; ok {
			out[id] = &p
		}
	}
	return out, nil
}

func (r *productRepo) DecrementStock(_ context.Context, id string, quantity int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.store.st.products[id]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	p.UpdatedAt = time.Now().UTC()
	r.store.st.products[id] = p
	return true, nil
}

func (r *productRepo) RecomputeRating(_ context.Context, id string) (*domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.store.st.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}

	var ratings []int
	for _, rv := range r.store.st.reviews {
		if rv.ProductID == id {
			ratings = append(ratings, rv.Rating)
		}
	}
	summary := domain.SummarizeRatings(ratings)
	p.AverageRating = summary.AverageRating
	p.TotalReviews = summary.TotalReviews
	p.UpdatedAt = time.Now().UTC()
	r.store.st.products[id] = p
	return &p, nil
}
