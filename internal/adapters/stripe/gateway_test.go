package stripe

import (
	"testing"

	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testSecret = "whsec_test_secret"

const completedEvent = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {
    "object": {
      "id": "cs_test_1",
      "object": "checkout.session",
      "payment_status": "paid",
      "amount_total": 2500,
      "currency": "usd",
      "client_reference_id": "ev1_buyer1_1700000000000",
      "metadata": {"orderId": "ev1_buyer1_1700000000000", "eventId": "ev1", "buyerId": "buyer1"}
    }
  }
}`

func TestParseWebhook(t *testing.T) {
	g := NewGateway("sk_test", testSecret)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(completedEvent),
		Secret:  testSecret,
	})

	evt, err := g.ParseWebhook(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentEventCheckoutCompleted, evt.Type)
	require.NotNil(t, evt.Session)
	assert.Equal(t, "cs_test_1", evt.Session.ID)
	assert.True(t, evt.Session.Paid)
	assert.EqualValues(t, 2500, evt.Session.AmountTotal)
	assert.Equal(t, "usd", evt.Session.Currency)
	assert.Equal(t, "ev1_buyer1_1700000000000", evt.Session.OrderID)
	assert.Equal(t, "buyer1", evt.Session.BuyerID)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	g := NewGateway("sk_test", testSecret)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(completedEvent),
		Secret:  "whsec_other",
	})

	_, err := g.ParseWebhook(signed.Payload, signed.Header)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = g.ParseWebhook([]byte(completedEvent), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestToCheckoutSessionFallsBackToClientReference(t *testing.T) {
	s := toCheckoutSession(&stripe.CheckoutSession{
		ID:                "cs_2",
		ClientReferenceID: "order-2",
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusUnpaid,
		Status:            stripe.CheckoutSessionStatusOpen,
	})
	assert.Equal(t, "order-2", s.OrderID)
	assert.False(t, s.Paid)
	assert.True(t, s.Open)

	expired := toCheckoutSession(&stripe.CheckoutSession{ID: "cs_3", Status: stripe.CheckoutSessionStatusExpired})
	assert.False(t, expired.Open)
}
