// Package servicetest provides in-memory implementations of the service
// ports for unit tests.
package servicetest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-sphere/internal/domain"
)

type Events struct {
	mu       sync.Mutex
	Items    map[string]domain.Event
	QueryErr error
}

func NewEvents(events ...domain.Event) *Events {
	e := &Events{Items: map[string]domain.Event{}}
	for _, ev := range events {
		e.Items[ev.ID] = ev
	}
	return e
}

func (e *Events) Create(_ context.Context, ev domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.Items[ev.ID]; ok {
		return domain.ErrConflict
	}
	e.Items[ev.ID] = ev
	return nil
}

func (e *Events) Get(_ context.Context, id string) (*domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev, ok := e.Items[id]
	if !ok {
		return nil, domain.NotFoundf("event %s not found", id)
	}
	return &ev, nil
}

func (e *Events) Update(_ context.Context, ev domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.Items[ev.ID]
	if !ok || cur.OrganizerID != ev.OrganizerID {
		return domain.NotFoundf("event %s not found", ev.ID)
	}
	e.Items[ev.ID] = ev
	return nil
}

func (e *Events) Delete(_ context.Context, id, organizerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.Items[id]
	if !ok || cur.OrganizerID != organizerID {
		return domain.NotFoundf("event %s not found", id)
	}
	delete(e.Items, id)
	return nil
}

// Query applies the same filters and ordering as the document store and
// pages by offset.
func (e *Events) Query(_ context.Context, q domain.EventQuery) (domain.EventPage, error) {
	if e.QueryErr != nil {
		return domain.EventPage{}, e.QueryErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	q.Normalize()

	var matched []domain.Event
	for _, ev := range e.Items {
		if q.Query != "" && !strings.HasPrefix(ev.Title, q.Query) {
			continue
		}
		if q.CategoryID != "" && ev.CategoryID != q.CategoryID {
			continue
		}
		if q.OrganizerID != "" && ev.OrganizerID != q.OrganizerID {
			continue
		}
		if q.ExcludeID != "" && ev.ID == q.ExcludeID {
			continue
		}
		matched = append(matched, ev)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := int(q.Skip())
	if start > len(matched) {
		start = len(matched)
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page := domain.EventPage{
		Data:       append([]domain.Event{}, matched[start:end]...),
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: domain.TotalPages(total, q.Limit),
	}
	if len(page.Data) == q.Limit {
		page.NextCursor = page.Data[len(page.Data)-1].ID
	}
	return page, nil
}

func (e *Events) Titles(_ context.Context, ids []string) (map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[string]string{}
	for _, id := range ids {
		if ev, ok := e.Items[id]; ok {
			out[id] = ev.Title
		}
	}
	return out, nil
}

type Categories struct {
	mu    sync.Mutex
	Items []domain.Category
	Lists int
}

func NewCategories(items ...domain.Category) *Categories {
	return &Categories{Items: items}
}

func (c *Categories) List(context.Context) ([]domain.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Lists++
	return append([]domain.Category{}, c.Items...), nil
}

func (c *Categories) Get(_ context.Context, id string) (*domain.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cat := range c.Items {
		if cat.ID == id {
			return &cat, nil
		}
	}
	return nil, domain.NotFoundf("category %s not found", id)
}

func (c *Categories) FindOrCreate(_ context.Context, name, createdBy string, now time.Time) (*domain.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name = strings.TrimSpace(name)
	for _, cat := range c.Items {
		if strings.EqualFold(cat.Name, name) {
			return &cat, nil
		}
	}
	cat := domain.Category{ID: uuid.NewString(), Name: name, CreatedBy: createdBy, CreatedAt: now}
	c.Items = append(c.Items, cat)
	return &cat, nil
}

type Users struct {
	mu    sync.Mutex
	Items map[string]domain.UserProfile
}

func NewUsers(users ...domain.UserProfile) *Users {
	u := &Users{Items: map[string]domain.UserProfile{}}
	for _, p := range users {
		u.Items[p.ID] = p
	}
	return u
}

func (u *Users) Ensure(_ context.Context, p domain.UserProfile) (*domain.UserProfile, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	cur, ok := u.Items[p.ID]
	if !ok {
		cur = p
	} else if p.Email != "" {
		cur.Email = p.Email
	}
	u.Items[p.ID] = cur
	return &cur, nil
}

func (u *Users) Get(_ context.Context, id string) (*domain.UserProfile, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	p, ok := u.Items[id]
	if !ok {
		return nil, domain.NotFoundf("user %s not found", id)
	}
	return &p, nil
}

func (u *Users) Update(_ context.Context, p domain.UserProfile) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.Items[p.ID]; !ok {
		return domain.NotFoundf("user %s not found", p.ID)
	}
	u.Items[p.ID] = p
	return nil
}

type Orders struct {
	mu    sync.Mutex
	Items map[string]domain.Order
}

func NewOrders(orders ...domain.Order) *Orders {
	o := &Orders{Items: map[string]domain.Order{}}
	for _, ord := range orders {
		o.Items[ord.ID] = ord
	}
	return o
}

func (o *Orders) Create(_ context.Context, ord domain.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.Items[ord.ID]; ok {
		return domain.ErrConflict
	}
	o.Items[ord.ID] = ord
	return nil
}

func (o *Orders) Get(_ context.Context, id string) (*domain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ord, ok := o.Items[id]
	if !ok {
		return nil, domain.NotFoundf("order %s not found", id)
	}
	return &ord, nil
}

func (o *Orders) GetBySession(_ context.Context, sessionID string) (*domain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ord := range o.Items {
		if ord.PaymentSessionID == sessionID {
			return &ord, nil
		}
	}
	return nil, domain.NotFoundf("order %s not found", sessionID)
}

func (o *Orders) AttachSession(_ context.Context, orderID, sessionID string, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	ord, ok := o.Items[orderID]
	if !ok || ord.Status != domain.OrderPending {
		return domain.NotFoundf("pending order %s not found", orderID)
	}
	ord.PaymentSessionID = sessionID
	ord.UpdatedAt = at
	o.Items[orderID] = ord
	return nil
}

func (o *Orders) Complete(_ context.Context, orderID string, s domain.CheckoutSession, at time.Time) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ord, ok := o.Items[orderID]
	if !ok || !ord.Status.CanTransitionTo(domain.OrderCompleted) {
		return false, nil
	}
	ord.Status = domain.OrderCompleted
	ord.Amount = s.AmountTotal
	ord.Currency = s.Currency
	ord.PaymentSessionID = s.ID
	ord.UpdatedAt = at
	o.Items[orderID] = ord
	return true, nil
}

func (o *Orders) Cancel(_ context.Context, orderID string, at time.Time) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ord, ok := o.Items[orderID]
	if !ok || ord.Status != domain.OrderPending {
		return false, nil
	}
	ord.Status = domain.OrderCancelled
	ord.UpdatedAt = at
	o.Items[orderID] = ord
	return true, nil
}

func (o *Orders) ListByBuyer(_ context.Context, buyerID string, page, limit int) ([]domain.Order, int64, error) {
	all := o.filter(func(ord domain.Order) bool { return ord.BuyerID == buyerID })
	total := int64(len(all))
	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (o *Orders) ListByEvent(_ context.Context, eventID string) ([]domain.Order, error) {
	return o.filter(func(ord domain.Order) bool { return ord.EventID == eventID }), nil
}

func (o *Orders) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	all := o.filter(func(ord domain.Order) bool {
		return ord.Status == domain.OrderPending && ord.CreatedAt.Before(cutoff)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (o *Orders) filter(keep func(domain.Order) bool) []domain.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.Order
	for _, ord := range o.Items {
		if keep(ord) {
			out = append(out, ord)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type Notifications struct {
	mu    sync.Mutex
	Items map[string]domain.Notification
}

func NewNotifications(items ...domain.Notification) *Notifications {
	n := &Notifications{Items: map[string]domain.Notification{}}
	for _, it := range items {
		n.Items[it.ID] = it
	}
	return n
}

func (n *Notifications) Insert(_ context.Context, it domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.Items[it.ID]; !ok {
		n.Items[it.ID] = it
	}
	return nil
}

func (n *Notifications) ListByUser(_ context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Notification
	for _, it := range n.Items {
		if it.UserID == userID && (!unreadOnly || !it.Read) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (n *Notifications) MarkRead(_ context.Context, userID, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	it, ok := n.Items[id]
	if !ok || it.UserID != userID {
		return domain.NotFoundf("notification %s not found", id)
	}
	it.Read = true
	n.Items[id] = it
	return nil
}

func (n *Notifications) Delete(_ context.Context, userID, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	it, ok := n.Items[id]
	if !ok || it.UserID != userID {
		return domain.NotFoundf("notification %s not found", id)
	}
	delete(n.Items, id)
	return nil
}

// Ledger mimics the session-keyed payments table and its outbox.
type Ledger struct {
	mu        sync.Mutex
	Payments  map[string]domain.PaymentRecord
	Cancelled map[string]bool
	Outbox    []domain.OrderEvent
	Err       error
}

func NewLedger() *Ledger {
	return &Ledger{Payments: map[string]domain.PaymentRecord{}, Cancelled: map[string]bool{}}
}

func (l *Ledger) RecordCompletion(_ context.Context, rec domain.PaymentRecord, evt domain.OrderEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return false, l.Err
	}
	if _, ok := l.Payments[rec.SessionID]; ok {
		return false, nil
	}
	l.Payments[rec.SessionID] = rec
	l.Outbox = append(l.Outbox, evt)
	return true, nil
}

func (l *Ledger) RecordCancellation(_ context.Context, evt domain.OrderEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return false, l.Err
	}
	if l.Cancelled[evt.OrderID] {
		return false, nil
	}
	l.Cancelled[evt.OrderID] = true
	l.Outbox = append(l.Outbox, evt)
	return true, nil
}

func (l *Ledger) OutboxLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Outbox)
}

// ErrBadSignature is what Payments.ParseWebhook returns for a signature
// other than ValidSignature.
var ErrBadSignature = errors.Mark(errors.New("bad signature"), domain.ErrInvalidInput)

const ValidSignature = "valid"

type Payments struct {
	mu        sync.Mutex
	Sessions  map[string]domain.CheckoutSession
	Events    map[string]domain.PaymentEvent
	CreateErr error
	Created   []domain.CheckoutRequest
	Expired   []string
	// BeforeExpire runs ahead of ExpireCheckoutSession, letting a test pay
	// the session in between.
	BeforeExpire func(id string)
}

func NewPayments() *Payments {
	return &Payments{Sessions: map[string]domain.CheckoutSession{}, Events: map[string]domain.PaymentEvent{}}
}

func (p *Payments) CreateCheckoutSession(_ context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	p.Created = append(p.Created, req)
	s := domain.CheckoutSession{
		ID:          "cs_" + req.Order.ID,
		URL:         "https://checkout.test/" + req.Order.ID,
		OrderID:     req.Order.ID,
		EventID:     req.Order.EventID,
		BuyerID:     req.Order.BuyerID,
		Open:        true,
		AmountTotal: req.Order.Amount,
		Currency:    req.Order.Currency,
	}
	p.Sessions[s.ID] = s
	return &s, nil
}

func (p *Payments) GetCheckoutSession(_ context.Context, id string) (*domain.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.Sessions[id]
	if !ok {
		return nil, domain.NotFoundf("payment session %s not found", id)
	}
	return &s, nil
}

// MarkPaid flips a session to paid, as if the buyer finished checkout.
func (p *Payments) MarkPaid(id string) domain.CheckoutSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.Sessions[id]
	s.Paid = true
	s.Open = false
	p.Sessions[id] = s
	return s
}

// ExpireCheckoutSession fails for sessions that are no longer open, as
// Stripe does.
func (p *Payments) ExpireCheckoutSession(_ context.Context, id string) (*domain.CheckoutSession, error) {
	if p.BeforeExpire != nil {
		p.BeforeExpire(id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.Sessions[id]
	if !ok {
		return nil, domain.NotFoundf("payment session %s not found", id)
	}
	if !s.Open {
		return nil, errors.Newf("payment session %s is not open", id)
	}
	s.Open = false
	p.Sessions[id] = s
	p.Expired = append(p.Expired, id)
	return &s, nil
}

// ParseWebhook treats the payload as a key into Events.
func (p *Payments) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	if signature != ValidSignature {
		return nil, ErrBadSignature
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	evt, ok := p.Events[string(payload)]
	if !ok {
		return &domain.PaymentEvent{ID: string(payload), Type: "unknown"}, nil
	}
	return &evt, nil
}

type Objects struct {
	mu      sync.Mutex
	Deleted []string
	Signed  []string
}

func (o *Objects) SignUpload(_ context.Context, key, contentType string, ttl time.Duration) (*domain.SignedUpload, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Signed = append(o.Signed, key)
	return &domain.SignedUpload{
		UploadURL: "https://storage.test/upload/" + key,
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": contentType},
		ObjectKey: key,
		PublicURL: o.PublicURL(key),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (o *Objects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Deleted = append(o.Deleted, key)
	return nil
}

func (o *Objects) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

type Cache struct {
	mu    sync.Mutex
	Items map[string][]byte
}

func NewCache() *Cache {
	return &Cache{Items: map[string][]byte{}}
}

func (c *Cache) GetJSON(_ context.Context, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.Items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *Cache) SetJSON(_ context.Context, key string, v interface{}, _ time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Items[key] = raw
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Items, key)
	return nil
}

type Audit struct {
	mu      sync.Mutex
	Entries []string
}

func (a *Audit) LogOrder(_ context.Context, order domain.Order, actor string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Entries = append(a.Entries, string(order.Status)+":"+actor)
	return nil
}

type SentMail struct {
	To, Subject, HTML, Text string
}

type Mailer struct {
	mu   sync.Mutex
	Sent []SentMail
	Err  error
}

func (m *Mailer) Send(_ context.Context, to, subject, html, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, SentMail{To: to, Subject: subject, HTML: html, Text: text})
	return nil
}

func (m *Mailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

type Renderer struct{}

func (Renderer) Render(name string, data interface{}) (string, string, string, error) {
	fields, _ := data.(map[string]string)
	return name + ": " + fields["EventTitle"], "<p>" + fields["OrderID"] + "</p>", fields["Amount"], nil
}
