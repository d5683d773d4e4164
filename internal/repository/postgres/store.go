// Package postgres implements the repositories on PostgreSQL through pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/storefront/orderreview/internal/repository"
	"github.com/storefront/orderreview/pkg/database"
)

// Store implements repository.Store on a pool.
type Store struct {
	db database.DBTX
}

// NewStore creates a store over db, normally a *pgxpool.Pool.
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

// NewRepositories binds all repositories to db.
func NewRepositories(db database.DBTX) repository.Repositories {
	return repository.Repositories{
		Products: NewProductRepository(db),
		Orders:   NewOrderRepository(db),
		Reviews:  NewReviewRepository(db),
	}
}

// Repos returns repositories that run each call on the pool.
func (s *Store) Repos() repository.Repositories {
	return NewRepositories(s.db)
}

// WithTx runs fn in a transaction, committing only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn repository.TxFunc) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(ctx, NewRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.db.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	var one int
	return s.db.QueryRow(ctx, "SELECT 1").Scan(&one)
}

type scanner interface {
	Scan(dest ...any) error
}
