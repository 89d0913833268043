// internal/database/store.go
package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// Store is the postgres-backed account, ledger and round store.
type Store struct {
	pool *pgxpool.Pool

	// WelcomeBonus is credited to every new wallet.
	WelcomeBonus decimal.Decimal
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool, welcomeBonus decimal.Decimal) *Store {
	return &Store{pool: pool, WelcomeBonus: welcomeBonus}
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks the pool is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isUniqueViolation reports whether err is a postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
