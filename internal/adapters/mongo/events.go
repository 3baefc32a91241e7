package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

// prefixSentinel is appended to a search term to form the upper bound of a
// title prefix range.
const prefixSentinel = "\uf8ff"

type EventRepository struct {
	coll       *mongo.Collection
	categories *mongo.Collection
	users      *mongo.Collection
	logger     observability.Logger
}

func NewEventRepository(db *mongo.Database, logger observability.Logger) *EventRepository {
	return &EventRepository{
		coll:       db.Collection(EventsCollection),
		categories: db.Collection(CategoriesCollection),
		users:      db.Collection(UsersCollection),
		logger:     logger,
	}
}

type EventDoc struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Location    string    `bson:"location"`
	StartAt     time.Time `bson:"start_at"`
	EndAt       time.Time `bson:"end_at"`
	Price       float64   `bson:"price"`
	IsFree      bool      `bson:"is_free"`
	URL         string    `bson:"url,omitempty"`
	CategoryID  string    `bson:"category_id"`
	OrganizerID string    `bson:"organizer_id"`
	ImageURL    string    `bson:"image_url,omitempty"`
	ImageKey    string    `bson:"image_key,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func eventToDoc(e domain.Event) EventDoc {
	return EventDoc{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		StartAt:     e.StartAt,
		EndAt:       e.EndAt,
		Price:       e.Price,
		IsFree:      e.IsFree,
		URL:         e.URL,
		CategoryID:  e.CategoryID,
		OrganizerID: e.OrganizerID,
		ImageURL:    e.ImageURL,
		ImageKey:    e.ImageKey,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (d EventDoc) toDomain() domain.Event {
	return domain.Event{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Location:    d.Location,
		StartAt:     d.StartAt.UTC(),
		EndAt:       d.EndAt.UTC(),
		Price:       d.Price,
		IsFree:      d.IsFree,
		URL:         d.URL,
		CategoryID:  d.CategoryID,
		OrganizerID: d.OrganizerID,
		ImageURL:    d.ImageURL,
		ImageKey:    d.ImageKey,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

func (r *EventRepository) Create(ctx context.Context, event domain.Event) error {
	_, err := r.coll.InsertOne(ctx, eventToDoc(event))
	if mongo.IsDuplicateKeyError(err) {
		return errors.Mark(errors.Wrap(err, "insert event"), domain.ErrConflict)
	}
	return errors.Wrap(err, "insert event")
}

func (r *EventRepository) Get(ctx context.Context, id string) (*domain.Event, error) {
	var doc EventDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFoundf("event %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "find event")
	}
	events := []domain.Event{doc.toDomain()}
	if err := r.denormalize(ctx, events); err != nil {
		return nil, err
	}
	return &events[0], nil
}

// Update replaces the mutable fields of an event. Ownership is checked by the
// caller; the organizer id is part of the filter so a stale check cannot
// overwrite someone else's event.
func (r *EventRepository) Update(ctx context.Context, event domain.Event) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": event.ID, "organizer_id": event.OrganizerID},
		bson.M{"$set": bson.M{
			"title":       event.Title,
			"description": event.Description,
			"location":    event.Location,
			"start_at":    event.StartAt,
			"end_at":      event.EndAt,
			"price":       event.Price,
			"is_free":     event.IsFree,
			"url":         event.URL,
			"category_id": event.CategoryID,
			"image_url":   event.ImageURL,
			"image_key":   event.ImageKey,
			"updated_at":  event.UpdatedAt,
		}},
	)
	if err != nil {
		return errors.Wrap(err, "update event")
	}
	if res.MatchedCount == 0 {
		return domain.NotFoundf("event %s not found", event.ID)
	}
	return nil
}

func (r *EventRepository) Delete(ctx context.Context, id, organizerID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id, "organizer_id": organizerID})
	if err != nil {
		return errors.Wrap(err, "delete event")
	}
	if res.DeletedCount == 0 {
		return domain.NotFoundf("event %s not found", id)
	}
	return nil
}

// Titles returns event titles keyed by id for the given ids.
func (r *EventRepository) Titles(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(bson.M{"title": 1}))
	if err != nil {
		return nil, errors.Wrap(err, "find event titles")
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc struct {
			ID    string `bson:"_id"`
			Title string `bson:"title"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode event title")
		}
		out[doc.ID] = doc.Title
	}
	return out, errors.Wrap(cur.Err(), "event titles cursor")
}

// Query returns one page of events, newest first. Without a cursor the page
// is found by skipping; with a cursor the page starts right after the
// cursor event and the page number only labels the result.
func (r *EventRepository) Query(ctx context.Context, q domain.EventQuery) (domain.EventPage, error) {
	q.Normalize()
	base := buildEventFilter(q)

	pageFilter := base
	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(q.Limit))

	if q.Cursor != "" {
		var anchor EventDoc
		err := r.coll.FindOne(ctx, bson.M{"_id": q.Cursor}, options.FindOne().SetProjection(bson.M{"created_at": 1})).Decode(&anchor)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.EventPage{}, domain.Invalidf("unknown cursor %q", q.Cursor)
		}
		if err != nil {
			return domain.EventPage{}, errors.Wrap(err, "find cursor event")
		}
		pageFilter = afterCursor(base, anchor.ID, anchor.CreatedAt)
	} else {
		findOpts.SetSkip(q.Skip())
	}

	var (
		total int64
		docs  []EventDoc
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := r.coll.CountDocuments(gctx, base)
		if err != nil {
			return errors.Wrap(err, "count events")
		}
		total = n
		return nil
	})
	g.Go(func() error {
		cur, err := r.coll.Find(gctx, pageFilter, findOpts)
		if err != nil {
			return errors.Wrap(err, "find events")
		}
		return errors.Wrap(cur.All(gctx, &docs), "decode events")
	})
	if err := g.Wait(); err != nil {
		return domain.EventPage{}, err
	}

	events := make([]domain.Event, 0, len(docs))
	for _, d := range docs {
		events = append(events, d.toDomain())
	}
	if err := r.denormalize(ctx, events); err != nil {
		return domain.EventPage{}, err
	}

	page := domain.EventPage{
		Data:       events,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: domain.TotalPages(total, q.Limit),
	}
	if len(events) == q.Limit {
		page.NextCursor = events[len(events)-1].ID
	}
	return page, nil
}

func buildEventFilter(q domain.EventQuery) bson.M {
	filter := bson.M{}
	if q.Query != "" {
		filter["title"] = bson.M{"$gte": q.Query, "$lte": q.Query + prefixSentinel}
	}
	if q.CategoryID != "" {
		filter["category_id"] = q.CategoryID
	}
	if q.OrganizerID != "" {
		filter["organizer_id"] = q.OrganizerID
	}
	if q.ExcludeID != "" {
		filter["_id"] = bson.M{"$ne": q.ExcludeID}
	}
	return filter
}

// afterCursor narrows base to the documents sorted after the anchor under
// (created_at desc, _id desc).
func afterCursor(base bson.M, anchorID string, anchorCreatedAt time.Time) bson.M {
	return bson.M{"$and": bson.A{
		base,
		bson.M{"$or": bson.A{
			bson.M{"created_at": bson.M{"$lt": anchorCreatedAt}},
			bson.M{"created_at": anchorCreatedAt, "_id": bson.M{"$lt": anchorID}},
		}},
	}}
}

// denormalize attaches category names and organizer display fields with one
// batched lookup per collection.
func (r *EventRepository) denormalize(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	categoryIDs := uniqueIDs(events, func(e domain.Event) string { return e.CategoryID })
	organizerIDs := uniqueIDs(events, func(e domain.Event) string { return e.OrganizerID })

	categories := make(map[string]CategoryDoc, len(categoryIDs))
	if len(categoryIDs) > 0 {
		cur, err := r.categories.Find(ctx, bson.M{"_id": bson.M{"$in": categoryIDs}})
		if err != nil {
			return errors.Wrap(err, "find categories")
		}
		var docs []CategoryDoc
		if err := cur.All(ctx, &docs); err != nil {
			return errors.Wrap(err, "decode categories")
		}
		for _, d := range docs {
			categories[d.ID] = d
		}
	}

	organizers := make(map[string]UserDoc, len(organizerIDs))
	if len(organizerIDs) > 0 {
		cur, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": organizerIDs}},
			options.Find().SetProjection(bson.M{"display_name": 1, "image_url": 1}))
		if err != nil {
			return errors.Wrap(err, "find organizers")
		}
		var docs []UserDoc
		if err := cur.All(ctx, &docs); err != nil {
			return errors.Wrap(err, "decode organizers")
		}
		for _, d := range docs {
			organizers[d.ID] = d
		}
	}

	for i := range events {
		if c, ok := categories[events[i].CategoryID]; ok {
			events[i].Category = &domain.CategoryRef{ID: c.ID, Name: c.Name}
		}
		if events[i].OrganizerID != "" {
			ref := &domain.OrganizerRef{ID: events[i].OrganizerID}
			if u, ok := organizers[events[i].OrganizerID]; ok {
				ref.DisplayName = u.DisplayName
				ref.ImageURL = u.ImageURL
			}
			events[i].Organizer = ref
		}
	}
	return nil
}

func uniqueIDs(events []domain.Event, key func(domain.Event) string) []string {
	seen := make(map[string]struct{}, len(events))
	out := make([]string, 0, len(events))
	for _, e := range events {
		id := key(e)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
