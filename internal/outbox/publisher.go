// Package outbox relays committed ledger events to the message broker.
package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-sphere/internal/adapters/crdb"
	"github.com/robertarktes/event-sphere/internal/observability"
)

const defaultBatchSize = 50

type Store interface {
	PublishBatch(ctx context.Context, limit int, publish func(crdb.OutboxRecord) error) ([]crdb.OutboxRecord, error)
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	store     Store
	broker    Broker
	logger    observability.Logger
	interval  time.Duration
	batchSize int
}

func NewPublisher(store Store, broker Broker, logger observability.Logger, interval time.Duration) *Publisher {
	return &Publisher{
		store:     store,
		broker:    broker,
		logger:    logger,
		interval:  interval,
		batchSize: defaultBatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.WithField("interval", p.interval.String()).Info("outbox publisher started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Error("outbox flush failed")
			}
		}
	}
}

// Flush publishes batches until the outbox is drained or a publish fails.
// Records are delivered at least once; the dedupe key travels as the
// message id so consumers can drop repeats.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	total := 0
	for {
		attempted := 0
		published, err := p.store.PublishBatch(ctx, p.batchSize, func(rec crdb.OutboxRecord) error {
			attempted++
			return p.broker.Publish(ctx, rec.EventType, amqp.Publishing{
				MessageId:    rec.DedupeKey,
				ContentType:  "application/json",
				Type:         rec.EventType,
				Timestamp:    rec.CreatedAt,
				DeliveryMode: amqp.Persistent,
				Body:         rec.Payload,
			})
		})
		if err != nil {
			return total, err
		}
		total += len(published)
		if len(published) > 0 {
			oldest := published[0].CreatedAt
			observability.OutboxLag.Set(time.Since(oldest).Seconds())
			p.logger.WithField("count", len(published)).Debug("outbox records published")
		} else {
			observability.OutboxLag.Set(0)
		}
		if len(published) < attempted {
			p.logger.WithFields(map[string]interface{}{
				"published": len(published),
				"attempted": attempted,
			}).Warn("outbox publish interrupted, retrying next tick")
			return total, nil
		}
		if attempted < p.batchSize {
			return total, nil
		}
	}
}
