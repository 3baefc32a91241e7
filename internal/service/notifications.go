package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/observability"
)

const ticketConfirmationTemplate = "ticket_confirmation"

type NotificationService struct {
	store    NotificationStore
	users    UserStore
	mailer   Mailer
	renderer TemplateRenderer
	logger   observability.Logger
	appURL   string
	now      func() time.Time
}

func NewNotificationService(store NotificationStore, users UserStore, mailer Mailer, renderer TemplateRenderer, logger observability.Logger, appURL string) *NotificationService {
	return &NotificationService{
		store:    store,
		users:    users,
		mailer:   mailer,
		renderer: renderer,
		logger:   logger,
		appURL:   strings.TrimRight(appURL, "/"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *NotificationService) List(ctx context.Context, p *auth.Principal, unreadOnly bool) ([]domain.Notification, error) {
	list, err := s.store.ListByUser(ctx, p.UserID, unreadOnly)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Notification{}
	}
	return list, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, p *auth.Principal, id string) error {
	return s.store.MarkRead(ctx, p.UserID, id)
}

func (s *NotificationService) Delete(ctx context.Context, p *auth.Principal, id string) error {
	return s.store.Delete(ctx, p.UserID, id)
}

// HandleOrderEvent fans an order event out to the affected users. It is
// safe to call again for the same event.
func (s *NotificationService) HandleOrderEvent(ctx context.Context, evt domain.OrderEvent) error {
	title := evt.EventTitle
	if title == "" {
		title = "an event"
	}

	switch evt.Type {
	case domain.OrderEventCompleted:
		if err := s.notify(ctx, evt, evt.BuyerID, domain.NotificationTicketPurchased,
			fmt.Sprintf("Your ticket to %s is confirmed", title)); err != nil {
			return err
		}
		if evt.OrganizerID != "" && evt.OrganizerID != evt.BuyerID {
			if err := s.notify(ctx, evt, evt.OrganizerID, domain.NotificationTicketSold,
				fmt.Sprintf("A ticket to %s was sold (%s)", title, domain.FormatAmount(evt.Amount, evt.Currency))); err != nil {
				return err
			}
		}
		return s.sendConfirmation(ctx, evt, title)
	case domain.OrderEventCancelled:
		return s.notify(ctx, evt, evt.BuyerID, domain.NotificationOrderCancelled,
			fmt.Sprintf("Your order for %s was cancelled because payment was not completed", title))
	default:
		s.logger.WithField("type", evt.Type).Debug("ignoring order event")
		return nil
	}
}

func (s *NotificationService) notify(ctx context.Context, evt domain.OrderEvent, userID string, kind domain.NotificationType, message string) error {
	if userID == "" {
		return nil
	}
	return s.store.Insert(ctx, domain.Notification{
		ID:        domain.NotificationID(evt.OrderID, kind),
		UserID:    userID,
		Type:      kind,
		Message:   message,
		OrderID:   evt.OrderID,
		EventID:   evt.EventID,
		CreatedAt: s.now(),
	})
}

func (s *NotificationService) sendConfirmation(ctx context.Context, evt domain.OrderEvent, title string) error {
	buyer, err := s.users.Get(ctx, evt.BuyerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if buyer.Email == "" {
		return nil
	}

	subject, html, text, err := s.renderer.Render(ticketConfirmationTemplate, map[string]string{
		"BuyerName":  buyer.DisplayName,
		"EventTitle": title,
		"OrderID":    evt.OrderID,
		"Amount":     domain.FormatAmount(evt.Amount, evt.Currency),
		"OrdersURL":  s.appURL + "/profile",
	})
	if err != nil {
		return errors.Wrap(err, "render ticket confirmation")
	}
	return s.mailer.Send(ctx, buyer.Email, subject, html, text)
}
