package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-sphere/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type OrderRepository struct {
	coll *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(OrdersCollection)}
}

type OrderDoc struct {
	ID               string    `bson:"_id"`
	EventID          string    `bson:"event_id"`
	BuyerID          string    `bson:"buyer_id"`
	Amount           int64     `bson:"amount"`
	Currency         string    `bson:"currency"`
	Status           string    `bson:"status"`
	PaymentSessionID *string   `bson:"payment_session_id,omitempty"`
	CreatedAt        time.Time `bson:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func orderToDoc(o domain.Order) OrderDoc {
	doc := OrderDoc{
		ID:        o.ID,
		EventID:   o.EventID,
		BuyerID:   o.BuyerID,
		Amount:    o.Amount,
		Currency:  o.Currency,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	if o.PaymentSessionID != "" {
		sid := o.PaymentSessionID
		doc.PaymentSessionID = &sid
	}
	return doc
}

func (d OrderDoc) toDomain() domain.Order {
	o := domain.Order{
		ID:        d.ID,
		EventID:   d.EventID,
		BuyerID:   d.BuyerID,
		Amount:    d.Amount,
		Currency:  d.Currency,
		Status:    domain.OrderStatus(d.Status),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.PaymentSessionID != nil {
		o.PaymentSessionID = *d.PaymentSessionID
	}
	return o
}

func (r *OrderRepository) Create(ctx context.Context, o domain.Order) error {
	_, err := r.coll.InsertOne(ctx, orderToDoc(o))
	if mongo.IsDuplicateKeyError(err) {
		return errors.Mark(errors.Wrap(err, "insert order"), domain.ErrConflict)
	}
	return errors.Wrap(err, "insert order")
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.findOne(ctx, bson.M{"_id": id}, id)
}

func (r *OrderRepository) GetBySession(ctx context.Context, sessionID string) (*domain.Order, error) {
	return r.findOne(ctx, bson.M{"payment_session_id": sessionID}, sessionID)
}

func (r *OrderRepository) findOne(ctx context.Context, filter bson.M, ref string) (*domain.Order, error) {
	var doc OrderDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFoundf("order %s not found", ref)
	}
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	o := doc.toDomain()
	return &o, nil
}

// AttachSession stores the payment session id on a pending order.
func (r *OrderRepository) AttachSession(ctx context.Context, orderID, sessionID string, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": orderID, "status": string(domain.OrderPending)},
		bson.M{"$set": bson.M{"payment_session_id": sessionID, "updated_at": at}},
	)
	if err != nil {
		return errors.Wrap(err, "attach payment session")
	}
	if res.MatchedCount == 0 {
		return domain.NotFoundf("pending order %s not found", orderID)
	}
	return nil
}

// Complete moves a pending or cancelled order to completed. It reports
// whether this call performed the transition; a false result with a nil
// error means the order was already completed.
func (r *OrderRepository) Complete(ctx context.Context, orderID string, s domain.CheckoutSession, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": orderID, "status": bson.M{"$in": bson.A{string(domain.OrderPending), string(domain.OrderCancelled)}}},
		bson.M{"$set": bson.M{
			"status":             string(domain.OrderCompleted),
			"amount":             s.AmountTotal,
			"currency":           s.Currency,
			"payment_session_id": s.ID,
			"updated_at":         at,
		}},
	)
	if err != nil {
		return false, errors.Wrap(err, "complete order")
	}
	return res.ModifiedCount == 1, nil
}

// Cancel moves a pending order to cancelled and reports whether it did.
func (r *OrderRepository) Cancel(ctx context.Context, orderID string, at time.Time) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": orderID, "status": string(domain.OrderPending)},
		bson.M{"$set": bson.M{"status": string(domain.OrderCancelled), "updated_at": at}},
	)
	if err != nil {
		return false, errors.Wrap(err, "cancel order")
	}
	return res.ModifiedCount == 1, nil
}

// ListByBuyer returns the buyer's orders newest first along with the total
// count.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string, page, limit int) ([]domain.Order, int64, error) {
	filter := bson.M{"buyer_id": buyerID}
	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errors.Wrap(err, "count orders")
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	orders, err := r.find(ctx, filter, opts)
	return orders, total, err
}

func (r *OrderRepository) ListByEvent(ctx context.Context, eventID string) ([]domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.find(ctx, bson.M{"event_id": eventID}, opts)
}

// ListStalePending returns up to limit orders still pending that were
// created before cutoff, oldest first.
func (r *OrderRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Order, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))
	return r.find(ctx, bson.M{
		"status":     string(domain.OrderPending),
		"created_at": bson.M{"$lt": cutoff},
	}, opts)
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Order, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find orders")
	}
	var docs []OrderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	out := make([]domain.Order, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}
