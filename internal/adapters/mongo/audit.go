package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger appends order lifecycle entries to the audit_logs collection.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection(AuditCollection),
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    string    `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action, userID string, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Data:      bson.M(data),
	}
	if _, err := a.coll.InsertOne(ctx, log); err != nil {
		a.logger.WithError(err).WithField("action", action).Error("failed to insert audit log")
		return errors.Wrap(err, "insert audit log")
	}
	return nil
}

// LogOrder records an order entering the given status, with the actor that
// caused it (buyer, webhook, verifier or reconciler).
func (a *AuditLogger) LogOrder(ctx context.Context, order domain.Order, actor string) error {
	data := map[string]interface{}{
		"order_id":           order.ID,
		"event_id":           order.EventID,
		"status":             string(order.Status),
		"amount":             order.Amount,
		"currency":           order.Currency,
		"payment_session_id": order.PaymentSessionID,
		"actor":              actor,
	}
	return a.LogEvent(ctx, "order."+string(order.Status), order.BuyerID, data)
}
