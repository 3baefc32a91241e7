package notify

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecorder struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) Ack(uint64, bool) error { a.acked = true; return nil }

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *ackRecorder) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

type handlerFunc func(context.Context, domain.OrderEvent) error

func (f handlerFunc) HandleOrderEvent(ctx context.Context, evt domain.OrderEvent) error {
	return f(ctx, evt)
}

func delivery(ack *ackRecorder, body string, redelivered bool) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		MessageId:    "completed:cs_1",
		RoutingKey:   domain.OrderEventCompleted,
		Body:         []byte(body),
		Redelivered:  redelivered,
	}
}

func TestHandleAcksProcessedEvents(t *testing.T) {
	var got domain.OrderEvent
	w := NewWorker(handlerFunc(func(_ context.Context, evt domain.OrderEvent) error {
		got = evt
		return nil
	}), observability.NewNopLogger())

	ack := &ackRecorder{}
	w.handle(context.Background(), delivery(ack, `{"order_id":"o1","buyer_id":"b1"}`, false))
	assert.True(t, ack.acked)
	assert.Equal(t, "o1", got.OrderID)
	assert.Equal(t, domain.OrderEventCompleted, got.Type)
}

func TestHandleRequeuesOnce(t *testing.T) {
	w := NewWorker(handlerFunc(func(context.Context, domain.OrderEvent) error {
		return errors.New("mongo unavailable")
	}), observability.NewNopLogger())

	first := &ackRecorder{}
	w.handle(context.Background(), delivery(first, `{"type":"order.completed"}`, false))
	assert.True(t, first.nacked)
	assert.True(t, first.requeue)

	second := &ackRecorder{}
	w.handle(context.Background(), delivery(second, `{"type":"order.completed"}`, true))
	assert.True(t, second.nacked)
	assert.False(t, second.requeue)
}

func TestHandleDropsMalformed(t *testing.T) {
	called := false
	w := NewWorker(handlerFunc(func(context.Context, domain.OrderEvent) error {
		called = true
		return nil
	}), observability.NewNopLogger())

	ack := &ackRecorder{}
	w.handle(context.Background(), delivery(ack, `not json`, false))
	assert.True(t, ack.acked)
	assert.False(t, called)
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	w := NewWorker(handlerFunc(func(context.Context, domain.OrderEvent) error { return nil }), observability.NewNopLogger())
	ch := make(chan amqp.Delivery, 1)
	ack := &ackRecorder{}
	ch <- delivery(ack, `{}`, false)
	close(ch)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	require.True(t, ack.acked)
}
