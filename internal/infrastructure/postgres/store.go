// Package postgres is the record-of-truth adapter: schema bootstrap, the
// conditional stock decrement, and idempotent order insertion.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flashgate/flashgate/internal/domain/order"
	"github.com/flashgate/flashgate/internal/domain/product"
)

// uniqueViolation is the Postgres SQLSTATE for a unique-key conflict.
const uniqueViolation = "23505"

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn and verifies the connection with a ping before
// returning, so a misconfigured DSN fails fast at startup.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Bootstrap creates the products and orders tables and their indexes if
// they do not already exist.
func (s *Store) Bootstrap(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			stock INTEGER NOT NULL CHECK (stock >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_product_id ON orders(product_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

// SeedProduct inserts a product row with the given stock if it is not
// already present; it never overwrites an existing row (bootstrap is
// idempotent, but unlike the counter-store init it must not reset stock
// once sales have begun).
func (s *Store) SeedProduct(ctx context.Context, productID string, stock int) error {
	if stock < 0 {
		return product.ErrInvalidQuantity
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, stock) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		productID, stock,
	)
	if err != nil {
		return fmt.Errorf("seed product: %w", err)
	}
	return nil
}

// ProductExists reports whether a durable product row exists, used to
// guard /init against seeding the counter store for a product that has
// never been bootstrapped.
func (s *Store) ProductExists(ctx context.Context, productID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	return exists, nil
}

// OrdersForProduct counts fulfilled orders for a product, used by
// reconciliation tooling and integration tests to confirm the worker has
// caught up with the ingestion side.
func (s *Store) OrdersForProduct(ctx context.Context, productID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE product_id = $1`, productID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// ProcessReservation runs the conditional stock decrement and the
// idempotent order insert as a single transaction. It reports whether the
// order was newly created (false means the insert hit a unique-key
// conflict, i.e. this envelope was already processed) and whether a
// divergence was detected (stock already at zero in the durable store
// while the counter store had granted the reservation).
func (s *Store) ProcessReservation(ctx context.Context, event order.ReservationEvent) (created bool, diverged bool, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock - 1 WHERE id = $1 AND stock > 0`,
		event.ProductID,
	)
	if err != nil {
		return false, false, fmt.Errorf("conditional decrement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Divergence: the counter store granted this reservation but the
		// durable row has no stock left. Roll back and do not commit the
		// offset; the message is reprocessed.
		return false, true, nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, product_id, user_id, created_at) VALUES ($1, $2, $3, $4)`,
		event.ReservationID, event.ProductID, event.UserID, event.CreatedAt(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			// Replay of an already-processed message: the prior attempt
			// already decremented stock and inserted the order, so this
			// transaction must roll back (it already decremented again
			// above) and the caller proceeds straight to offset commit.
			return false, false, nil
		}
		return false, false, fmt.Errorf("insert order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, false, nil
}
