package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL — call records
// ─────────────────────────────────────────────────────────────────────────────

const ddlCalls = `
CREATE TABLE IF NOT EXISTS calls (
    id               UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    call_id          TEXT         NOT NULL UNIQUE,
    stream_id        TEXT         NOT NULL DEFAULT '',
    caller_phone     TEXT         NOT NULL DEFAULT '',
    restaurant_phone TEXT         NOT NULL DEFAULT '',
    status           TEXT         NOT NULL DEFAULT 'in_progress',
    started_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at         TIMESTAMPTZ,
    duration_seconds INTEGER,
    failure_reason   TEXT
);

CREATE INDEX IF NOT EXISTS idx_calls_status
    ON calls (status);

CREATE INDEX IF NOT EXISTS idx_calls_started_at
    ON calls (started_at);
`

// ─────────────────────────────────────────────────────────────────────────────
// DDL — customers and orders
// ─────────────────────────────────────────────────────────────────────────────

const ddlCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id           UUID  PRIMARY KEY DEFAULT gen_random_uuid(),
    phone_number TEXT  NOT NULL UNIQUE,
    name         TEXT  NOT NULL DEFAULT ''
);
`

const ddlOrders = `
CREATE TABLE IF NOT EXISTS orders (
    id            UUID           PRIMARY KEY DEFAULT gen_random_uuid(),
    restaurant_id TEXT           NOT NULL,
    customer_id   UUID           NOT NULL REFERENCES customers (id),
    call_id       TEXT           NOT NULL DEFAULT '',
    status        TEXT           NOT NULL DEFAULT 'confirmed',
    total_amount  NUMERIC(10,2)  NOT NULL,
    created_at    TIMESTAMPTZ    NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_orders_customer_id
    ON orders (customer_id);
`

const ddlOrderItems = `
CREATE TABLE IF NOT EXISTS order_items (
    id             BIGSERIAL      PRIMARY KEY,
    order_id       UUID           NOT NULL REFERENCES orders (id),
    item_name      TEXT           NOT NULL,
    quantity       INTEGER        NOT NULL,
    unit_price     NUMERIC(10,2)  NOT NULL,
    customizations JSONB          NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_order_items_order_id
    ON order_items (order_id);
`

// Migrate creates the gateway's tables and indexes if they do not exist.
// Statements run in dependency order; each DDL block is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlCalls, ddlCustomers, ddlOrders, ddlOrderItems} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("store migrate: %w", err)
		}
	}
	return nil
}
