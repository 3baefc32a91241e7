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

type UserRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(UsersCollection)}
}

type UserDoc struct {
	ID          string    `bson:"_id"`
	Email       string    `bson:"email,omitempty"`
	DisplayName string    `bson:"display_name"`
	ImageURL    string    `bson:"image_url,omitempty"`
	ImageKey    string    `bson:"image_key,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d UserDoc) toDomain() domain.UserProfile {
	return domain.UserProfile{
		ID:          d.ID,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		ImageURL:    d.ImageURL,
		ImageKey:    d.ImageKey,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// Ensure creates the profile on first sight and otherwise leaves stored
// fields alone, except for a missing email which is filled from the token.
func (r *UserRepository) Ensure(ctx context.Context, p domain.UserProfile) (*domain.UserProfile, error) {
	update := bson.M{
		"$setOnInsert": bson.M{
			"display_name": p.DisplayName,
			"created_at":   p.CreatedAt,
			"updated_at":   p.UpdatedAt,
		},
	}
	if p.Email != "" {
		update["$set"] = bson.M{"email": p.Email}
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc UserDoc
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": p.ID}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		err = r.coll.FindOne(ctx, bson.M{"_id": p.ID}).Decode(&doc)
	}
	if err != nil {
		return nil, errors.Wrap(err, "upsert user")
	}
	u := doc.toDomain()
	return &u, nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.UserProfile, error) {
	var doc UserDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFoundf("user %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user")
	}
	u := doc.toDomain()
	return &u, nil
}

func (r *UserRepository) Update(ctx context.Context, p domain.UserProfile) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"display_name": p.DisplayName,
		"image_url":    p.ImageURL,
		"image_key":    p.ImageKey,
		"updated_at":   p.UpdatedAt,
	}})
	if err != nil {
		return errors.Wrap(err, "update user")
	}
	if res.MatchedCount == 0 {
		return domain.NotFoundf("user %s not found", p.ID)
	}
	return nil
}
