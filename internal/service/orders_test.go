package service

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/observability"
	"github.com/robertarktes/event-sphere/internal/service/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderFixture struct {
	svc      *OrderService
	events   *servicetest.Events
	orders   *servicetest.Orders
	ledger   *servicetest.Ledger
	payments *servicetest.Payments
	audit    *servicetest.Audit
	now      time.Time
}

var (
	buyer     = &auth.Principal{UserID: "buyer-1", Email: "buyer@example.com"}
	organizer = &auth.Principal{UserID: "org-1"}
)

func newOrderFixture() *orderFixture {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	f := &orderFixture{
		events: servicetest.NewEvents(
			domain.Event{ID: "paid", Title: "Jazz Night", Price: 25, OrganizerID: "org-1", CategoryID: "music"},
			domain.Event{ID: "free", Title: "Open Mic", IsFree: true, OrganizerID: "org-1"},
		),
		orders:   servicetest.NewOrders(),
		ledger:   servicetest.NewLedger(),
		payments: servicetest.NewPayments(),
		audit:    &servicetest.Audit{},
		now:      now,
	}
	f.svc = NewOrderService(f.events, f.orders, f.ledger, f.payments, f.audit, observability.NewNopLogger(), "usd", "https://app.test/", time.Hour)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *orderFixture) webhook(t *testing.T, id string, session domain.CheckoutSession) error {
	t.Helper()
	f.payments.Events[id] = domain.PaymentEvent{ID: id, Type: domain.PaymentEventCheckoutCompleted, Session: &session}
	return f.svc.HandleWebhook(context.Background(), []byte(id), servicetest.ValidSignature)
}

func TestCheckoutPaidEventCreatesPendingOrder(t *testing.T) {
	f := newOrderFixture()

	res, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderPending, res.Order.Status)
	assert.Equal(t, "paid_buyer-1_"+itoa(f.now.UnixMilli()), res.Order.ID)
	assert.EqualValues(t, 2500, res.Order.Amount)
	assert.NotEmpty(t, res.CheckoutURL)

	stored := f.orders.Items[res.Order.ID]
	assert.Equal(t, res.SessionID, stored.PaymentSessionID)

	require.Len(t, f.payments.Created, 1)
	assert.Equal(t, "https://app.test/profile?session_id={CHECKOUT_SESSION_ID}", f.payments.Created[0].SuccessURL)
	assert.Zero(t, f.ledger.OutboxLen())
}

func TestCheckoutFreeEventCompletesImmediately(t *testing.T) {
	f := newOrderFixture()

	res, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "free"})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderCompleted, res.Order.Status)
	assert.Zero(t, res.Order.Amount)
	assert.Empty(t, res.CheckoutURL)
	assert.Equal(t, domain.FreeSessionID(res.Order.ID), res.SessionID)
	assert.Empty(t, f.payments.Created)

	require.Equal(t, 1, f.ledger.OutboxLen())
	assert.Equal(t, domain.OrderEventCompleted, f.ledger.Outbox[0].Type)
	assert.Equal(t, "org-1", f.ledger.Outbox[0].OrganizerID)

	order, err := f.svc.VerifySession(context.Background(), buyer, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, order.Status)
}

func TestCheckoutRejectsOwnEventAndUnknownEvent(t *testing.T) {
	f := newOrderFixture()

	_, err := f.svc.Checkout(context.Background(), organizer, CheckoutInput{EventID: "paid"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Checkout(context.Background(), buyer, CheckoutInput{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCheckoutCancelsOrderWhenSessionFails(t *testing.T) {
	f := newOrderFixture()
	f.payments.CreateErr = errors.New("stripe down")

	_, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "paid"})
	require.Error(t, err)

	for _, o := range f.orders.Items {
		assert.Equal(t, domain.OrderCancelled, o.Status)
	}
}

func TestWebhookCompletesOrderOnce(t *testing.T) {
	f := newOrderFixture()
	res, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)
	session := f.payments.MarkPaid(res.SessionID)

	require.NoError(t, f.webhook(t, "evt_1", session))
	require.NoError(t, f.webhook(t, "evt_1", session))
	require.NoError(t, f.webhook(t, "evt_2", session))

	order := f.orders.Items[res.Order.ID]
	assert.Equal(t, domain.OrderCompleted, order.Status)
	assert.EqualValues(t, 2500, order.Amount)
	assert.Equal(t, 1, f.ledger.OutboxLen())
	assert.Equal(t, "evt_1", f.ledger.Payments[res.SessionID].ProviderEventID)
	assert.Equal(t, []string{"pending:buyer", "completed:webhook"}, f.audit.Entries)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newOrderFixture()
	err := f.svc.HandleWebhook(context.Background(), []byte("evt"), "forged")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestWebhookIgnoresOtherEventsAndUnknownOrders(t *testing.T) {
	f := newOrderFixture()

	assert.NoError(t, f.svc.HandleWebhook(context.Background(), []byte("evt_other"), servicetest.ValidSignature))
	assert.NoError(t, f.webhook(t, "evt_ghost", domain.CheckoutSession{ID: "cs_ghost", OrderID: "ghost", Paid: true}))
	assert.NoError(t, f.webhook(t, "evt_unpaid", domain.CheckoutSession{ID: "cs_x", OrderID: "x"}))
	assert.Zero(t, f.ledger.OutboxLen())
}

func TestVerifySessionRacesWebhook(t *testing.T) {
	f := newOrderFixture()
	res, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)

	pending, err := f.svc.VerifySession(context.Background(), buyer, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, pending.Status)

	session := f.payments.MarkPaid(res.SessionID)

	order, err := f.svc.VerifySession(context.Background(), buyer, res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, order.Status)
	assert.Equal(t, "Jazz Night", order.EventTitle)

	require.NoError(t, f.webhook(t, "evt_late", session))
	assert.Equal(t, 1, f.ledger.OutboxLen())
}

func TestVerifySessionOnlyForBuyer(t *testing.T) {
	f := newOrderFixture()
	res, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)

	_, err = f.svc.VerifySession(context.Background(), &auth.Principal{UserID: "intruder"}, res.SessionID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.VerifySession(context.Background(), &auth.Principal{UserID: "intruder"}, domain.FreeSessionID(res.Order.ID))
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestGetOrderChecksBuyer(t *testing.T) {
	f := newOrderFixture()
	res, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)

	got, err := f.svc.GetOrder(context.Background(), buyer, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jazz Night", got.EventTitle)

	_, err = f.svc.GetOrder(context.Background(), organizer, res.Order.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestListBuyerOrders(t *testing.T) {
	f := newOrderFixture()
	for i := 0; i < 3; i++ {
		f.now = f.now.Add(time.Second)
		_, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "free"})
		require.NoError(t, err)
	}

	page, err := f.svc.ListBuyerOrders(context.Background(), buyer, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, "Open Mic", page.Data[0].EventTitle)

	empty, err := f.svc.ListBuyerOrders(context.Background(), organizer, 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty.Data)
	assert.Equal(t, domain.DefaultPageSize, empty.Limit)
}

func TestReconcileStale(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()

	paid, err := f.svc.Checkout(ctx, buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)
	f.payments.MarkPaid(paid.SessionID)

	f.now = f.now.Add(time.Second)
	abandoned, err := f.svc.Checkout(ctx, buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)

	f.now = f.now.Add(time.Hour)
	fresh, err := f.svc.Checkout(ctx, buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)

	stats, err := f.svc.ReconcileStale(ctx, f.now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, ReconcileStats{Completed: 1, Cancelled: 1}, stats)

	assert.Equal(t, domain.OrderCompleted, f.orders.Items[paid.Order.ID].Status)
	assert.Equal(t, domain.OrderCancelled, f.orders.Items[abandoned.Order.ID].Status)
	assert.Equal(t, domain.OrderPending, f.orders.Items[fresh.Order.ID].Status)

	require.Equal(t, 2, f.ledger.OutboxLen())
	types := []string{f.ledger.Outbox[0].Type, f.ledger.Outbox[1].Type}
	assert.ElementsMatch(t, []string{domain.OrderEventCompleted, domain.OrderEventCancelled}, types)

	again, err := f.svc.ReconcileStale(ctx, f.now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, ReconcileStats{}, again)
}

func TestCheckoutBoundsSessionLifetime(t *testing.T) {
	f := newOrderFixture()
	_, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)

	require.Len(t, f.payments.Created, 1)
	assert.Equal(t, f.now.Add(time.Hour), f.payments.Created[0].ExpiresAt)
}

func TestReconcileExpiresSessionBeforeCancelling(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	res, err := f.svc.Checkout(ctx, buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)

	f.now = f.now.Add(40 * time.Minute)
	stats, err := f.svc.ReconcileStale(ctx, f.now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, ReconcileStats{Cancelled: 1}, stats)
	assert.Equal(t, []string{res.SessionID}, f.payments.Expired)
	assert.Equal(t, domain.OrderCancelled, f.orders.Items[res.Order.ID].Status)
}

func TestReconcileCompletesSessionPaidWhileExpiring(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	res, err := f.svc.Checkout(ctx, buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)
	f.payments.BeforeExpire = func(id string) { f.payments.MarkPaid(id) }

	f.now = f.now.Add(40 * time.Minute)
	stats, err := f.svc.ReconcileStale(ctx, f.now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, ReconcileStats{Completed: 1}, stats)
	assert.Empty(t, f.payments.Expired)
	assert.Equal(t, domain.OrderCompleted, f.orders.Items[res.Order.ID].Status)
	assert.Contains(t, f.ledger.Payments, res.SessionID)
}

func TestPaymentAfterCancellationCompletesOrder(t *testing.T) {
	f := newOrderFixture()
	ctx := context.Background()
	res, err := f.svc.Checkout(ctx, buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)

	f.now = f.now.Add(40 * time.Minute)
	_, err = f.svc.ReconcileStale(ctx, f.now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Equal(t, domain.OrderCancelled, f.orders.Items[res.Order.ID].Status)

	session := f.payments.MarkPaid(res.SessionID)
	require.NoError(t, f.webhook(t, "evt_late", session))

	order := f.orders.Items[res.Order.ID]
	assert.Equal(t, domain.OrderCompleted, order.Status)
	assert.EqualValues(t, 2500, order.Amount)
	assert.Contains(t, f.ledger.Payments, res.SessionID)

	require.Equal(t, 2, f.ledger.OutboxLen())
	assert.Equal(t, domain.OrderEventCancelled, f.ledger.Outbox[0].Type)
	assert.Equal(t, domain.OrderEventCompleted, f.ledger.Outbox[1].Type)
}

func TestWebhookAcknowledgesBuyerMismatch(t *testing.T) {
	f := newOrderFixture()
	res, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)

	session := f.payments.MarkPaid(res.SessionID)
	session.BuyerID = "someone-else"
	assert.NoError(t, f.webhook(t, "evt_mismatch", session))

	assert.Equal(t, domain.OrderPending, f.orders.Items[res.Order.ID].Status)
	assert.Zero(t, f.ledger.OutboxLen())
}

func TestWebhookFindsOrderBySession(t *testing.T) {
	f := newOrderFixture()
	res, err := f.svc.Checkout(context.Background(), buyer, CheckoutInput{EventID: "paid"})
	require.NoError(t, err)

	session := f.payments.MarkPaid(res.SessionID)
	session.OrderID = ""
	require.NoError(t, f.webhook(t, "evt_nometa", session))

	assert.Equal(t, domain.OrderCompleted, f.orders.Items[res.Order.ID].Status)
	assert.Equal(t, 1, f.ledger.OutboxLen())
}
