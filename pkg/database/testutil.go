package database

import (
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

// NewMockPool returns a pgxmock pool satisfying DBTX. Tests should finish
// with ExpectationsWereMet.
func NewMockPool() (pgxmock.PgxPoolIface, error) {
	return pgxmock.NewPool()
}
