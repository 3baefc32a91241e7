package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS payments (
		session_id STRING PRIMARY KEY,
		order_id STRING NOT NULL,
		event_id STRING NOT NULL,
		buyer_id STRING NOT NULL,
		amount INT8 NOT NULL,
		currency STRING NOT NULL,
		provider_event_id STRING NOT NULL DEFAULT '',
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		INDEX payments_order_idx (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS order_cancellations (
		order_id STRING PRIMARY KEY,
		cancelled_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type STRING NOT NULL,
		aggregate_id STRING NOT NULL,
		event_type STRING NOT NULL,
		payload_json JSONB NOT NULL,
		status STRING NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
		dedupe_key STRING NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		published_at TIMESTAMPTZ,
		INDEX outbox_status_created_idx (status, created_at)
	)`,
}

// Migrate creates the ledger and outbox tables when they are missing.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}
