package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/observability"
)

const (
	actorBuyer      = "buyer"
	actorWebhook    = "webhook"
	actorVerifier   = "verifier"
	actorReconciler = "reconciler"
)

type CheckoutInput struct {
	EventID string `json:"event_id" validate:"required"`
}

// CheckoutResult is a completed order for free events, or a pending order
// plus the hosted payment page for paid ones.
type CheckoutResult struct {
	Order       domain.Order `json:"order"`
	CheckoutURL string       `json:"checkout_url,omitempty"`
	SessionID   string       `json:"session_id,omitempty"`
}

type ReconcileStats struct {
	Completed int
	Cancelled int
	Skipped   int
}

type OrderService struct {
	events     EventStore
	orders     OrderStore
	ledger     Ledger
	payments   PaymentGateway
	audit      AuditLog
	logger     observability.Logger
	currency   string
	appURL     string
	sessionTTL time.Duration
	now        func() time.Time
}

// NewOrderService builds the order flows. pendingTTL bounds how long a
// checkout session stays payable; it is clamped to what Stripe accepts.
func NewOrderService(events EventStore, orders OrderStore, ledger Ledger, payments PaymentGateway, audit AuditLog, logger observability.Logger, currency, appURL string, pendingTTL time.Duration) *OrderService {
	return &OrderService{
		events:     events,
		orders:     orders,
		ledger:     ledger,
		payments:   payments,
		audit:      audit,
		logger:     logger,
		currency:   currency,
		appURL:     strings.TrimRight(appURL, "/"),
		sessionTTL: domain.ClampCheckoutSessionTTL(pendingTTL),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrderService) Checkout(ctx context.Context, p *auth.Principal, in CheckoutInput) (*CheckoutResult, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	event, err := s.events.Get(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if event.OwnedBy(p.UserID) {
		return nil, domain.Invalidf("organizers cannot buy tickets to their own events")
	}

	now := s.now()
	if event.IsFree {
		return s.checkoutFree(ctx, *event, p.UserID, now)
	}

	order := domain.NewPendingOrder(*event, p.UserID, s.currency, now)
	if order.Amount <= 0 {
		return nil, domain.Invalidf("event %s has no payable price", event.ID)
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	s.recordTransition(ctx, order, actorBuyer)

	session, err := s.payments.CreateCheckoutSession(ctx, domain.CheckoutRequest{
		Order:      order,
		EventTitle: event.Title,
		SuccessURL: s.appURL + "/profile?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.appURL + "/events/" + url.PathEscape(event.ID),
		ExpiresAt:  now.Add(s.sessionTTL),
	})
	if err != nil {
		if _, cerr := s.orders.Cancel(ctx, order.ID, s.now()); cerr != nil {
			s.log(ctx).WithError(cerr).WithField("order_id", order.ID).Warn("failed to cancel order after checkout error")
		}
		return nil, errors.Wrap(err, "open checkout session")
	}
	if err := s.orders.AttachSession(ctx, order.ID, session.ID, s.now()); err != nil {
		return nil, err
	}
	order.PaymentSessionID = session.ID
	order.EventTitle = event.Title
	return &CheckoutResult{Order: order, CheckoutURL: session.URL, SessionID: session.ID}, nil
}

func (s *OrderService) checkoutFree(ctx context.Context, event domain.Event, buyerID string, now time.Time) (*CheckoutResult, error) {
	order := domain.NewFreeOrder(event, buyerID, s.currency, now)
	order.PaymentSessionID = domain.FreeSessionID(order.ID)
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	order.EventTitle = event.Title
	s.recordTransition(ctx, order, actorBuyer)

	rec := domain.PaymentRecord{
		SessionID:  order.PaymentSessionID,
		OrderID:    order.ID,
		EventID:    order.EventID,
		BuyerID:    order.BuyerID,
		Currency:   order.Currency,
		RecordedAt: now,
	}
	if _, err := s.ledger.RecordCompletion(ctx, rec, s.orderEvent(domain.OrderEventCompleted, order, &event, now)); err != nil {
		// The order stands; only the follow-up notifications are lost.
		s.log(ctx).WithError(err).WithField("order_id", order.ID).Error("failed to record free order in ledger")
	}
	return &CheckoutResult{Order: order, SessionID: order.PaymentSessionID}, nil
}

// HandleWebhook verifies and applies one payment-processor event. Events
// that need no action are acknowledged by returning nil.
func (s *OrderService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	evt, err := s.payments.ParseWebhook(payload, signature)
	if err != nil {
		observability.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		return err
	}
	log := s.log(ctx).WithFields(map[string]interface{}{"stripe_event_id": evt.ID, "type": evt.Type})

	if evt.Type != domain.PaymentEventCheckoutCompleted || evt.Session == nil {
		observability.WebhookEvents.WithLabelValues(evt.Type, "ignored").Inc()
		log.Debug("ignoring payment event")
		return nil
	}
	if !evt.Session.Paid {
		observability.WebhookEvents.WithLabelValues(evt.Type, "unpaid").Inc()
		log.WithField("session_id", evt.Session.ID).Info("checkout completed without payment yet")
		return nil
	}

	_, err = s.reconcile(ctx, *evt.Session, evt.ID, actorWebhook)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		observability.WebhookEvents.WithLabelValues(evt.Type, "unknown_order").Inc()
		log.WithField("session_id", evt.Session.ID).Warn("payment for unknown order")
		return nil
	case errors.Is(err, domain.ErrInvalidInput):
		// Redelivery cannot fix a session that contradicts its order.
		observability.WebhookEvents.WithLabelValues(evt.Type, "mismatch").Inc()
		log.WithError(err).Error("payment session does not match its order")
		return nil
	case err != nil:
		observability.WebhookEvents.WithLabelValues(evt.Type, "failed").Inc()
		return err
	}
	observability.WebhookEvents.WithLabelValues(evt.Type, "processed").Inc()
	return nil
}

// VerifySession lets the buyer confirm an order from the checkout success
// page. Paid sessions are reconciled here too, so the answer does not
// depend on whether the webhook arrived first.
func (s *OrderService) VerifySession(ctx context.Context, p *auth.Principal, sessionID string) (*domain.Order, error) {
	if orderID, ok := strings.CutPrefix(sessionID, "free_"); ok {
		return s.GetOrder(ctx, p, orderID)
	}

	session, err := s.payments.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.BuyerID != p.UserID {
		return nil, domain.Forbiddenf("payment session %s belongs to another buyer", sessionID)
	}
	if session.Paid {
		return s.reconcile(ctx, *session, "", actorVerifier)
	}
	if session.OrderID == "" {
		order, err := s.orders.GetBySession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		session.OrderID = order.ID
	}
	return s.GetOrder(ctx, p, session.OrderID)
}

// reconcile completes the order behind a paid session. The conditional
// update lets exactly one caller complete the order, even one the
// reconciler already cancelled. Every caller then writes the ledger row,
// which is idempotent per session and only emits the outbox event the first
// time.
func (s *OrderService) reconcile(ctx context.Context, session domain.CheckoutSession, providerEventID, actor string) (*domain.Order, error) {
	log := s.log(ctx).WithFields(map[string]interface{}{"session_id": session.ID, "order_id": session.OrderID, "actor": actor})

	var (
		order *domain.Order
		err   error
	)
	if session.OrderID != "" {
		order, err = s.orders.Get(ctx, session.OrderID)
	} else {
		order, err = s.orders.GetBySession(ctx, session.ID)
	}
	if err != nil {
		return nil, err
	}
	if session.BuyerID != "" && session.BuyerID != order.BuyerID {
		return nil, domain.Invalidf("session %s buyer does not match order %s", session.ID, order.ID)
	}

	now := s.now()
	won, err := s.orders.Complete(ctx, order.ID, session, now)
	if err != nil {
		return nil, err
	}
	if won {
		order.Status = domain.OrderCompleted
		order.Amount = session.AmountTotal
		order.Currency = session.Currency
		order.PaymentSessionID = session.ID
		order.UpdatedAt = now
		s.recordTransition(ctx, *order, actor)
	} else if order, err = s.orders.Get(ctx, order.ID); err != nil {
		return nil, err
	}

	if order.Status != domain.OrderCompleted {
		log.WithField("status", string(order.Status)).Error("paid session for an order that is not completed")
		return order, nil
	}

	event, err := s.events.Get(ctx, order.EventID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if event != nil {
		order.EventTitle = event.Title
	}

	rec := domain.PaymentRecord{
		SessionID:       session.ID,
		OrderID:         order.ID,
		EventID:         order.EventID,
		BuyerID:         order.BuyerID,
		Amount:          order.Amount,
		Currency:        order.Currency,
		ProviderEventID: providerEventID,
		RecordedAt:      now,
	}
	inserted, err := s.ledger.RecordCompletion(ctx, rec, s.orderEvent(domain.OrderEventCompleted, *order, event, now))
	if err != nil {
		return nil, err
	}
	log.WithFields(map[string]interface{}{"transitioned": won, "ledger_inserted": inserted}).Info("order reconciled")
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, p *auth.Principal, id string) (*domain.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(p.UserID) {
		return nil, domain.Forbiddenf("order %s belongs to another buyer", id)
	}
	s.attachTitles(ctx, []*domain.Order{order})
	return order, nil
}

func (s *OrderService) ListBuyerOrders(ctx context.Context, p *auth.Principal, page, limit int) (domain.OrderPage, error) {
	q := domain.EventQuery{Page: page, Limit: limit}
	q.Normalize()
	orders, total, err := s.orders.ListByBuyer(ctx, p.UserID, q.Page, q.Limit)
	if err != nil {
		return domain.OrderPage{}, err
	}
	refs := make([]*domain.Order, len(orders))
	for i := range orders {
		refs[i] = &orders[i]
	}
	s.attachTitles(ctx, refs)
	if orders == nil {
		orders = []domain.Order{}
	}
	return domain.OrderPage{
		Data:       orders,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: domain.TotalPages(total, q.Limit),
	}, nil
}

// ReconcileStale settles orders left pending since before cutoff. Open
// sessions are expired first; paid sessions are completed and everything
// else is cancelled.
func (s *OrderService) ReconcileStale(ctx context.Context, cutoff time.Time, limit int) (ReconcileStats, error) {
	var stats ReconcileStats
	orders, err := s.orders.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return stats, err
	}
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		log := s.log(ctx).WithField("order_id", order.ID)

		if order.PaymentSessionID != "" {
			session, err := s.closeSession(ctx, order.PaymentSessionID)
			if err != nil {
				log.WithError(err).Warn("failed to close payment session, will retry")
				stats.Skipped++
				continue
			}
			if session != nil && session.Paid {
				if session.OrderID == "" {
					session.OrderID = order.ID
				}
				if _, err := s.reconcile(ctx, *session, "", actorReconciler); err != nil {
					log.WithError(err).Error("failed to complete paid order")
					stats.Skipped++
					continue
				}
				stats.Completed++
				continue
			}
		}

		if err := s.cancel(ctx, order); err != nil {
			log.WithError(err).Error("failed to cancel stale order")
			stats.Skipped++
			continue
		}
		stats.Cancelled++
	}
	return stats, nil
}

// closeSession makes sure a stale order's session can no longer be paid and
// returns its final state. A nil session means the processor does not know
// it.
func (s *OrderService) closeSession(ctx context.Context, id string) (*domain.CheckoutSession, error) {
	session, err := s.payments.GetCheckoutSession(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !session.Open {
		return session, nil
	}

	expired, err := s.payments.ExpireCheckoutSession(ctx, id)
	if err == nil {
		return expired, nil
	}
	// The buyer may have paid between the two calls.
	session, ferr := s.payments.GetCheckoutSession(ctx, id)
	if ferr != nil {
		return nil, errors.CombineErrors(err, ferr)
	}
	if session.Open {
		return nil, err
	}
	return session, nil
}

func (s *OrderService) cancel(ctx context.Context, order domain.Order) error {
	if !order.Status.CanTransitionTo(domain.OrderCancelled) {
		return errors.Mark(errors.Newf("order %s is %s", order.ID, order.Status), domain.ErrInvalidTransition)
	}
	now := s.now()
	won, err := s.orders.Cancel(ctx, order.ID, now)
	if err != nil {
		return err
	}
	if !won {
		// Completed or cancelled by someone else in the meantime.
		return nil
	}
	order.Status = domain.OrderCancelled
	order.UpdatedAt = now
	s.recordTransition(ctx, order, actorReconciler)

	event, err := s.events.Get(ctx, order.EventID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	_, err = s.ledger.RecordCancellation(ctx, s.orderEvent(domain.OrderEventCancelled, order, event, now))
	return err
}

func (s *OrderService) orderEvent(kind string, order domain.Order, event *domain.Event, at time.Time) domain.OrderEvent {
	evt := domain.OrderEvent{
		Type:       kind,
		OrderID:    order.ID,
		EventID:    order.EventID,
		BuyerID:    order.BuyerID,
		Amount:     order.Amount,
		Currency:   order.Currency,
		Status:     order.Status,
		OccurredAt: at,
	}
	if event != nil {
		evt.EventTitle = event.Title
		evt.OrganizerID = event.OrganizerID
	}
	return evt
}

func (s *OrderService) recordTransition(ctx context.Context, order domain.Order, actor string) {
	observability.OrderTransitions.WithLabelValues(string(order.Status)).Inc()
	if err := s.audit.LogOrder(ctx, order, actor); err != nil {
		s.log(ctx).WithError(err).WithField("order_id", order.ID).Warn("failed to write order audit entry")
	}
}

func (s *OrderService) attachTitles(ctx context.Context, orders []*domain.Order) {
	if len(orders) == 0 {
		return
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.EventID)
	}
	titles, err := s.events.Titles(ctx, ids)
	if err != nil {
		s.log(ctx).WithError(err).Warn("failed to load event titles")
		return
	}
	for _, o := range orders {
		o.EventTitle = titles[o.EventID]
	}
}

func (s *OrderService) log(ctx context.Context) observability.Logger {
	return observability.LoggerFromContext(ctx, s.logger)
}
