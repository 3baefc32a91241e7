package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-sphere/internal/domain"
)

// RecordCompletion writes the ledger row for a payment session and, only if
// the row is new, the matching order.completed outbox record. It reports
// whether the row was new. Replays of the same session are no-ops.
func (r *Repository) RecordCompletion(ctx context.Context, rec domain.PaymentRecord, evt domain.OrderEvent) (bool, error) {
	var inserted bool
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO payments (session_id, order_id, event_id, buyer_id, amount, currency, provider_event_id, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (session_id) DO NOTHING
		`, rec.SessionID, rec.OrderID, rec.EventID, rec.BuyerID, rec.Amount, rec.Currency, rec.ProviderEventID, rec.RecordedAt)
		if err != nil {
			return errors.Wrap(err, "insert payment")
		}
		inserted = tag.RowsAffected() == 1
		if !inserted {
			return nil
		}
		return r.insertOrderEvent(ctx, tx, evt, "completed:"+rec.SessionID)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// RecordCancellation is RecordCompletion's counterpart for orders that never
// got paid.
func (r *Repository) RecordCancellation(ctx context.Context, evt domain.OrderEvent) (bool, error) {
	var inserted bool
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO order_cancellations (order_id, cancelled_at) VALUES ($1, $2)
			ON CONFLICT (order_id) DO NOTHING
		`, evt.OrderID, evt.OccurredAt)
		if err != nil {
			return errors.Wrap(err, "insert cancellation")
		}
		inserted = tag.RowsAffected() == 1
		if !inserted {
			return nil
		}
		return r.insertOrderEvent(ctx, tx, evt, "cancelled:"+evt.OrderID)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *Repository) GetPayment(ctx context.Context, sessionID string) (*domain.PaymentRecord, error) {
	var rec domain.PaymentRecord
	err := r.pool.QueryRow(ctx, `
		SELECT session_id, order_id, event_id, buyer_id, amount, currency, provider_event_id, recorded_at
		FROM payments WHERE session_id = $1
	`, sessionID).Scan(&rec.SessionID, &rec.OrderID, &rec.EventID, &rec.BuyerID, &rec.Amount, &rec.Currency, &rec.ProviderEventID, &rec.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundf("payment %s not found", sessionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get payment")
	}
	return &rec, nil
}

func (r *Repository) insertOrderEvent(ctx context.Context, tx pgx.Tx, evt domain.OrderEvent, dedupeKey string) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal order event")
	}
	return r.InsertOutbox(ctx, tx, OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "order",
		AggregateID:   evt.OrderID,
		EventType:     evt.Type,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		DedupeKey:     dedupeKey,
	})
}
