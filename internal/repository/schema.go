package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied idempotently on startup when the postgres driver is selected.
const Schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id               TEXT PRIMARY KEY,
	pnr              TEXT NOT NULL UNIQUE,
	user_id          TEXT NOT NULL,
	route            JSONB NOT NULL,
	passengers       JSONB NOT NULL,
	contact_email    TEXT NOT NULL,
	total_cents      BIGINT NOT NULL,
	base_price_cents BIGINT NOT NULL,
	currency         TEXT NOT NULL,
	selected_flight  JSONB,
	ticket_url       TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS bookings_user_id_idx ON bookings (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS payment_transactions (
	id             TEXT PRIMARY KEY,
	booking_id     TEXT NOT NULL REFERENCES bookings (id),
	user_id        TEXT NOT NULL,
	amount_cents   BIGINT NOT NULL,
	currency       TEXT NOT NULL,
	method         TEXT NOT NULL,
	status         TEXT NOT NULL,
	reference      TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS payment_transactions_booking_idx ON payment_transactions (booking_id);

CREATE UNIQUE INDEX IF NOT EXISTS payment_transactions_settled_reference_idx
	ON payment_transactions (reference)
	WHERE status IN ('completed', 'refunded') AND reference <> '';

CREATE TABLE IF NOT EXISTS support_tickets (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	subject    TEXT NOT NULL,
	message    TEXT NOT NULL,
	status     TEXT NOT NULL,
	priority   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS support_tickets_user_idx ON support_tickets (user_id, created_at DESC);
`

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
