package stripe

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-sphere/internal/domain"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	metaOrderID = "orderId"
	metaEventID = "eventId"
	metaBuyerID = "buyerId"
)

// Gateway talks to Stripe Checkout.
type Gateway struct {
	sc            *client.API
	webhookSecret string
}

func NewGateway(secretKey, webhookSecret string) *Gateway {
	return &Gateway{sc: client.New(secretKey, nil), webhookSecret: webhookSecret}
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	o := req.Order
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(o.ID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(o.Currency),
				UnitAmount: stripe.Int64(o.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.EventTitle),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.AddMetadata(metaOrderID, o.ID)
	params.AddMetadata(metaEventID, o.EventID)
	params.AddMetadata(metaBuyerID, o.BuyerID)

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout session")
	}
	return toCheckoutSession(s), nil
}

func (g *Gateway) GetCheckoutSession(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	s, err := g.sc.CheckoutSessions.Get(id, &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return nil, domain.NotFoundf("payment session %s not found", id)
		}
		return nil, errors.Wrap(err, "get checkout session")
	}
	return toCheckoutSession(s), nil
}

// ExpireCheckoutSession closes an open session so it can no longer be paid.
// Stripe refuses to expire sessions that are already complete or expired.
func (g *Gateway) ExpireCheckoutSession(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	s, err := g.sc.CheckoutSessions.Expire(id, &stripe.CheckoutSessionExpireParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return nil, errors.Wrap(err, "expire checkout session")
	}
	return toCheckoutSession(s), nil
}

// ParseWebhook verifies the signature header over the raw payload and
// decodes the event. A bad signature matches domain.ErrInvalidInput.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "verify webhook signature"), domain.ErrInvalidInput)
	}

	out := &domain.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if out.Type == domain.PaymentEventCheckoutCompleted {
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "decode checkout session"), domain.ErrInvalidInput)
		}
		out.Session = toCheckoutSession(&s)
	}
	return out, nil
}

func toCheckoutSession(s *stripe.CheckoutSession) *domain.CheckoutSession {
	out := &domain.CheckoutSession{
		ID:          s.ID,
		URL:         s.URL,
		OrderID:     s.Metadata[metaOrderID],
		EventID:     s.Metadata[metaEventID],
		BuyerID:     s.Metadata[metaBuyerID],
		Paid:        s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Open:        s.Status == stripe.CheckoutSessionStatusOpen,
		AmountTotal: s.AmountTotal,
		Currency:    string(s.Currency),
	}
	if out.OrderID == "" {
		out.OrderID = s.ClientReferenceID
	}
	return out
}
