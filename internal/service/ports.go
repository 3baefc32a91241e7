package service

import (
	"context"
	"time"

	"github.com/robertarktes/event-sphere/internal/domain"
)

type EventStore interface {
	Create(ctx context.Context, event domain.Event) error
	Get(ctx context.Context, id string) (*domain.Event, error)
	Update(ctx context.Context, event domain.Event) error
	Delete(ctx context.Context, id, organizerID string) error
	Query(ctx context.Context, q domain.EventQuery) (domain.EventPage, error)
	Titles(ctx context.Context, ids []string) (map[string]string, error)
}

type CategoryStore interface {
	List(ctx context.Context) ([]domain.Category, error)
	Get(ctx context.Context, id string) (*domain.Category, error)
	FindOrCreate(ctx context.Context, name, createdBy string, now time.Time) (*domain.Category, error)
}

type UserStore interface {
	Ensure(ctx context.Context, p domain.UserProfile) (*domain.UserProfile, error)
	Get(ctx context.Context, id string) (*domain.UserProfile, error)
	Update(ctx context.Context, p domain.UserProfile) error
}

type OrderStore interface {
	Create(ctx context.Context, o domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	GetBySession(ctx context.Context, sessionID string) (*domain.Order, error)
	AttachSession(ctx context.Context, orderID, sessionID string, at time.Time) error
	Complete(ctx context.Context, orderID string, s domain.CheckoutSession, at time.Time) (bool, error)
	Cancel(ctx context.Context, orderID string, at time.Time) (bool, error)
	ListByBuyer(ctx context.Context, buyerID string, page, limit int) ([]domain.Order, int64, error)
	ListByEvent(ctx context.Context, eventID string) ([]domain.Order, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error)
}

type NotificationStore interface {
	Insert(ctx context.Context, n domain.Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) error
}

// Ledger records settled payments and cancellations together with the
// outbox event announcing them. Both calls report whether they wrote
// anything.
type Ledger interface {
	RecordCompletion(ctx context.Context, rec domain.PaymentRecord, evt domain.OrderEvent) (bool, error)
	RecordCancellation(ctx context.Context, evt domain.OrderEvent) (bool, error)
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*domain.CheckoutSession, error)
	ExpireCheckoutSession(ctx context.Context, id string) (*domain.CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error)
}

type ObjectStore interface {
	SignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (*domain.SignedUpload, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type AuditLog interface {
	LogOrder(ctx context.Context, order domain.Order, actor string) error
}

type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
}

type TemplateRenderer interface {
	Render(templateName string, data interface{}) (subject, htmlBody, textBody string, err error)
}
