package domain

import "time"

// Stripe only accepts checkout session expiries within this window.
const (
	MinCheckoutSessionTTL = 30 * time.Minute
	MaxCheckoutSessionTTL = 24 * time.Hour
)

// CheckoutRequest is what the payment gateway needs to open a hosted
// checkout page for one ticket.
type CheckoutRequest struct {
	Order      Order
	EventTitle string
	SuccessURL string
	CancelURL  string
	ExpiresAt  time.Time
}

// ClampCheckoutSessionTTL keeps ttl inside the range the payment processor
// accepts.
func ClampCheckoutSessionTTL(ttl time.Duration) time.Duration {
	if ttl < MinCheckoutSessionTTL {
		return MinCheckoutSessionTTL
	}
	if ttl > MaxCheckoutSessionTTL {
		return MaxCheckoutSessionTTL
	}
	return ttl
}

// CheckoutSession mirrors the payment processor's session object. Open is
// true while the buyer can still pay.
type CheckoutSession struct {
	ID          string
	URL         string
	OrderID     string
	EventID     string
	BuyerID     string
	Paid        bool
	Open        bool
	AmountTotal int64
	Currency    string
}

const PaymentEventCheckoutCompleted = "checkout.session.completed"

// PaymentEvent is a verified webhook event. Session is set for checkout
// session events only.
type PaymentEvent struct {
	ID      string
	Type    string
	Session *CheckoutSession
}

// PaymentRecord is the ledger row written once per payment session.
type PaymentRecord struct {
	SessionID       string
	OrderID         string
	EventID         string
	BuyerID         string
	Amount          int64
	Currency        string
	ProviderEventID string
	RecordedAt      time.Time
}

const (
	OrderEventCompleted = "order.completed"
	OrderEventCancelled = "order.cancelled"
)

// OrderEvent is the payload carried through the outbox to the notification
// worker.
type OrderEvent struct {
	Type        string      `json:"type"`
	OrderID     string      `json:"order_id"`
	EventID     string      `json:"event_id"`
	EventTitle  string      `json:"event_title"`
	BuyerID     string      `json:"buyer_id"`
	OrganizerID string      `json:"organizer_id"`
	Amount      int64       `json:"amount"`
	Currency    string      `json:"currency"`
	Status      OrderStatus `json:"status"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
