package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

func (r *Repository) InsertOutbox(ctx context.Context, tx pgx.Tx, record OutboxRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key, created_at)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6, $7)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey, record.CreatedAt)
	return errors.Wrap(err, "insert outbox")
}

// PublishBatch claims up to limit unpublished records, hands each to publish
// in creation order and marks the ones that succeeded. Claimed rows stay
// locked until the transaction ends, so concurrent relays skip them. The
// first publish failure stops the batch; the rest are retried on the next
// call.
func (r *Repository) PublishBatch(ctx context.Context, limit int, publish func(OutboxRecord) error) ([]OutboxRecord, error) {
	var published []OutboxRecord
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		published = published[:0]
		rows, err := tx.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
			FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
		`, limit)
		if err != nil {
			return errors.Wrap(err, "select outbox")
		}
		records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxRecord, error) {
			var rec OutboxRecord
			err := row.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
			return rec, err
		})
		if err != nil {
			return errors.Wrap(err, "scan outbox")
		}

		now := time.Now().UTC()
		for _, rec := range records {
			if err := publish(rec); err != nil {
				break
			}
			if _, err := tx.Exec(ctx, `
				UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
			`, rec.ID, now); err != nil {
				return errors.Wrap(err, "mark outbox published")
			}
			rec.PublishedAt = &now
			rec.Status = "PUBLISHED"
			published = append(published, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return published, nil
}
