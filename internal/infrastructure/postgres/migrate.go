package postgres

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS customers (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL UNIQUE,
		balance    NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS products (
		id          TEXT PRIMARY KEY,
		merchant_id TEXT NOT NULL,
		name        TEXT NOT NULL,
		price       NUMERIC(14,2) NOT NULL CHECK (price >= 0),
		stock_count INTEGER NOT NULL CHECK (stock_count >= 0),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_merchant_id ON products(merchant_id)`,

	`CREATE TABLE IF NOT EXISTS carts (
		id          TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL UNIQUE REFERENCES customers(id),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id         TEXT PRIMARY KEY,
		cart_id    TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		count      INTEGER NOT NULL CHECK (count >= 1),
		UNIQUE (cart_id, product_id)
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id              TEXT PRIMARY KEY,
		customer_id     TEXT NOT NULL REFERENCES customers(id),
		product_id      TEXT NOT NULL REFERENCES products(id),
		merchant_id     TEXT NOT NULL,
		product_name    TEXT NOT NULL,
		count           INTEGER NOT NULL CHECK (count >= 1),
		total_amount    NUMERIC(14,2) NOT NULL CHECK (total_amount >= 0),
		paid            BOOLEAN NOT NULL,
		idempotency_key TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_customer_created ON orders(customer_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_merchant_created ON orders(merchant_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_idempotency ON orders(customer_id, idempotency_key) WHERE idempotency_key <> ''`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id         TEXT PRIMARY KEY,
		order_id   TEXT REFERENCES orders(id),
		message    VARCHAR(500) NOT NULL,
		read       BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_feed ON notifications(read, created_at DESC)`,
}

// Migrate creates the schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("postgres: run migration: %w", err)
		}
	}
	return nil
}
