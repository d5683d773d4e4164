// Package memory is an in-process storage driver for local development and
// tests. Transactions are serialized and roll back by restoring a snapshot.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/storefront/orderreview/internal/domain"
	"github.com/storefront/orderreview/internal/repository"
)

type state struct {
	products map[string]domain.Product
	orders   map[string]domain.Order
	reviews  map[string]domain.Review
	// (product_id, user_id) -> review id
	reviewKeys map[reviewKey]string
}

type reviewKey struct {
	productID string
	userID    string
}

func newState() *state {
	return &state{
		products:   make(map[string]domain.Product),
		orders:     make(map[string]domain.Order),
		reviews:    make(map[string]domain.Review),
		reviewKeys: make(map[reviewKey]string),
	}
}

// clone copies the maps. Order item slices are never mutated in place, so
// sharing them is safe.
func (s *state) clone() *state {
	return &state{
		products:   maps.Clone(s.products),
		orders:     maps.Clone(s.orders),
		reviews:    maps.Clone(s.reviews),
		reviewKeys: maps.Clone(s.reviewKeys),
	}
}

// Store implements repository.Store in memory.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{st: newState()}
}

// Repos returns repositories that lock the store per call.
func (s *Store) Repos() repository.Repositories {
	return s.bind(&s.mu)
}

// WithTx holds the store lock for the whole of fn and restores the previous
// state if fn fails.
func (s *Store) WithTx(ctx context.Context, fn repository.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(ctx, s.bind(noopLocker{})); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) bind(mu sync.Locker) repository.Repositories {
	return repository.Repositories{
		Products: &productRepo{store: s, mu: mu},
		Orders:   &orderRepo{store: s, mu: mu},
		Reviews:  &reviewRepo{store: s, mu: mu},
	}
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}
