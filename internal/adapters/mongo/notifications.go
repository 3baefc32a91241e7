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

const notificationListLimit = 100

type NotificationRepository struct {
	coll *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{coll: db.Collection(NotificationsCollection)}
}

type NotificationDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Type      string    `bson:"type"`
	Message   string    `bson:"message"`
	Read      bool      `bson:"read"`
	OrderID   string    `bson:"order_id,omitempty"`
	EventID   string    `bson:"event_id,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d NotificationDoc) toDomain() domain.Notification {
	return domain.Notification{
		ID:        d.ID,
		UserID:    d.UserID,
		Type:      domain.NotificationType(d.Type),
		Message:   d.Message,
		Read:      d.Read,
		OrderID:   d.OrderID,
		EventID:   d.EventID,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func (r *NotificationRepository) Insert(ctx context.Context, n domain.Notification) error {
	_, err := r.coll.InsertOne(ctx, NotificationDoc{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      string(n.Type),
		Message:   n.Message,
		Read:      n.Read,
		OrderID:   n.OrderID,
		EventID:   n.EventID,
		CreatedAt: n.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		// Redelivered message; the notification is already there.
		return nil
	}
	return errors.Wrap(err, "insert notification")
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	filter := bson.M{"user_id": userID}
	if unreadOnly {
		filter["read"] = false
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(notificationListLimit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find notifications")
	}
	var docs []NotificationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode notifications")
	}
	out := make([]domain.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// MarkRead and Delete filter on the owner as well as the id, so a foreign
// notification is indistinguishable from a missing one.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return errors.Wrap(err, "mark notification read")
	}
	if res.MatchedCount == 0 {
		return domain.NotFoundf("notification %s not found", id)
	}
	return nil
}

func (r *NotificationRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return errors.Wrap(err, "delete notification")
	}
	if res.DeletedCount == 0 {
		return domain.NotFoundf("notification %s not found", id)
	}
	return nil
}
