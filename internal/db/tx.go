package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxManager runs fn inside a single database transaction. Any error returned
// by fn rolls the transaction back.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(q Querier) error) error
}

// Store couples the pool with its queries and implements TxManager.
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

// NewStore constructs a pgx backed store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Queries: New(pool), pool: pool}
}

// WithinTx implements TxManager.
func (s *Store) WithinTx(ctx context.Context, fn func(q Querier) error) error {
	if s == nil || s.pool == nil {
		return errors.New("db: store not configured")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IsNotFound reports whether err signals a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
