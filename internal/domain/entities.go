package domain

import (
	"math"
	"strings"
	"time"
)

type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	Price       float64   `json:"price"`
	IsFree      bool      `json:"is_free"`
	URL         string    `json:"url,omitempty"`
	CategoryID  string    `json:"category_id"`
	OrganizerID string    `json:"organizer_id"`
	ImageURL    string    `json:"image_url,omitempty"`
	ImageKey    string    `json:"image_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Filled at read time.
	Category  *CategoryRef  `json:"category,omitempty"`
	Organizer *OrganizerRef `json:"organizer,omitempty"`
}

type CategoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type OrganizerRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Normalize trims text fields and zeroes the price of free events.
func (e *Event) Normalize() {
	e.Title = strings.TrimSpace(e.Title)
	e.Description = strings.TrimSpace(e.Description)
	e.Location = strings.TrimSpace(e.Location)
	e.URL = strings.TrimSpace(e.URL)
	if e.IsFree {
		e.Price = 0
	}
}

// Validate checks the invariants that the request validator cannot express.
func (e *Event) Validate() error {
	if e.Title == "" {
		return Invalidf("title is required")
	}
	if e.StartAt.IsZero() || e.EndAt.IsZero() {
		return Invalidf("start_at and end_at are required")
	}
	if e.EndAt.Before(e.StartAt) {
		return Invalidf("end_at must not be before start_at")
	}
	if !e.IsFree && e.Price <= 0 {
		return Invalidf("paid events need a positive price")
	}
	if e.Price < 0 {
		return Invalidf("price must not be negative")
	}
	return nil
}

// PriceMinorUnits converts the price to the smallest currency unit.
func (e Event) PriceMinorUnits() int64 {
	if e.IsFree {
		return 0
	}
	return int64(math.Round(e.Price * 100))
}

func (e Event) OwnedBy(userID string) bool {
	return userID != "" && e.OrganizerID == userID
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type UserProfile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name"`
	ImageURL    string    `json:"image_url,omitempty"`
	ImageKey    string    `json:"image_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type NotificationType string

const (
	NotificationTicketPurchased NotificationType = "ticket_purchased"
	NotificationTicketSold      NotificationType = "ticket_sold"
	NotificationOrderCancelled  NotificationType = "order_cancelled"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	OrderID   string           `json:"order_id,omitempty"`
	EventID   string           `json:"event_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationID is deterministic per order and type, so a redelivered
// order event cannot create a second notification.
func NotificationID(orderID string, t NotificationType) string {
	return string(t) + "_" + orderID
}
