package domain

import (
	"fmt"
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID               string      `json:"id"`
	EventID          string      `json:"event_id"`
	BuyerID          string      `json:"buyer_id"`
	Amount           int64       `json:"amount"`
	Currency         string      `json:"currency"`
	Status           OrderStatus `json:"status"`
	PaymentSessionID string      `json:"payment_session_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`

	// Filled at read time.
	EventTitle string `json:"event_title,omitempty"`
}

// NewOrderID builds the composite order key eventId_buyerId_unixMillis.
func NewOrderID(eventID, buyerID string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%d", eventID, buyerID, at.UnixMilli())
}

func NewPendingOrder(event Event, buyerID, currency string, now time.Time) Order {
	return Order{
		ID:        NewOrderID(event.ID, buyerID, now),
		EventID:   event.ID,
		BuyerID:   buyerID,
		Amount:    event.PriceMinorUnits(),
		Currency:  strings.ToLower(currency),
		Status:    OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewFreeOrder returns an order that skips the pending state.
func NewFreeOrder(event Event, buyerID, currency string, now time.Time) Order {
	o := NewPendingOrder(event, buyerID, currency, now)
	o.Amount = 0
	o.Status = OrderCompleted
	return o
}

// CanTransitionTo reports whether an order may move from s to next. A
// cancelled order can still complete: a captured payment outranks the
// cancellation of an abandoned checkout.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderCompleted || next == OrderCancelled
	case OrderCancelled:
		return next == OrderCompleted
	default:
		return false
	}
}

func (o Order) OwnedBy(userID string) bool {
	return userID != "" && o.BuyerID == userID
}

// FreeSessionID is the ledger key used for orders that never had a payment
// session.
func FreeSessionID(orderID string) string {
	return "free_" + orderID
}

type OrderPage struct {
	Data       []Order `json:"data"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	Total      int64   `json:"total"`
	TotalPages int     `json:"total_pages"`
}

// FormatAmount renders minor units as "12.50 USD", or "Free" for zero.
func FormatAmount(amount int64, currency string) string {
	if amount == 0 {
		return "Free"
	}
	return fmt.Sprintf("%d.%02d %s", amount/100, amount%100, strings.ToUpper(currency))
}
