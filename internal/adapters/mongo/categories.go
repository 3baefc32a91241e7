package mongo

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-sphere/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CategoryRepository struct {
	coll *mongo.Collection
}

func NewCategoryRepository(db *mongo.Database) *CategoryRepository {
	return &CategoryRepository{coll: db.Collection(CategoriesCollection)}
}

type CategoryDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	NameLower string    `bson:"name_lower"`
	CreatedBy string    `bson:"created_by,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

func (d CategoryDoc) toDomain() domain.Category {
	return domain.Category{ID: d.ID, Name: d.Name, CreatedBy: d.CreatedBy, CreatedAt: d.CreatedAt.UTC()}
}

func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	cur, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name_lower", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "find categories")
	}
	var docs []CategoryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode categories")
	}
	out := make([]domain.Category, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (r *CategoryRepository) Get(ctx context.Context, id string) (*domain.Category, error) {
	var doc CategoryDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFoundf("category %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "find category")
	}
	c := doc.toDomain()
	return &c, nil
}

// FindOrCreate returns the category with the given name, compared
// case-insensitively, creating it when it does not exist yet.
func (r *CategoryRepository) FindOrCreate(ctx context.Context, name, createdBy string, now time.Time) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	filter := bson.M{"name_lower": strings.ToLower(name)}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"name":       name,
			"created_by": createdBy,
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc CategoryDoc
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// Lost a concurrent upsert race; the winner's document is there now.
		err = r.coll.FindOne(ctx, filter).Decode(&doc)
	}
	if err != nil {
		return nil, errors.Wrap(err, "upsert category")
	}
	c := doc.toDomain()
	return &c, nil
}
