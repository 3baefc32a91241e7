package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-sphere/internal/observability"
)

const Exchange = "eventsphere.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open channel")
	}
	if err := declareExchange(ch); err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if msg.DeliveryMode == 0 {
		msg.DeliveryMode = amqp.Persistent
	}
	if err := p.ch.PublishWithContext(ctx, Exchange, key, false, false, msg); err != nil {
		observability.RabbitPublishFailures.Inc()
		return errors.Wrapf(err, "publish %s", key)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func declareExchange(ch *amqp.Channel) error {
	err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	return errors.Wrap(err, "declare exchange")
}
