// Package notify turns order events from the broker into user
// notifications and confirmation emails.
package notify

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/observability"
)

const Queue = "eventsphere.notifications"

// RoutingKeys are the order events the notification queue is bound to.
var RoutingKeys = []string{domain.OrderEventCompleted, domain.OrderEventCancelled}

type Handler interface {
	HandleOrderEvent(ctx context.Context, evt domain.OrderEvent) error
}

type Worker struct {
	handler Handler
	logger  observability.Logger
}

func NewWorker(handler Handler, logger observability.Logger) *Worker {
	return &Worker{handler: handler, logger: logger}
}

// Run processes deliveries until ctx is done or the channel closes.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("notification worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				w.logger.Warn("delivery channel closed")
				return
			}
			w.handle(ctx, d)
		}
	}
}

// handle acks processed and malformed messages. A failed message is
// requeued once; a second failure drops it.
func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	log := w.logger.WithFields(map[string]interface{}{
		"message_id":  d.MessageId,
		"routing_key": d.RoutingKey,
	})

	var evt domain.OrderEvent
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		log.WithError(err).Error("dropping malformed order event")
		_ = d.Ack(false)
		return
	}
	if evt.Type == "" {
		evt.Type = d.RoutingKey
	}

	if err := w.handler.HandleOrderEvent(ctx, evt); err != nil {
		log.WithError(err).WithField("redelivered", d.Redelivered).Error("order event handling failed")
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	if err := d.Ack(false); err != nil {
		log.WithError(err).Warn("ack failed")
	}
}
