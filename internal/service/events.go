package service

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/observability"
)

type EventInput struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=5000"`
	Location    string    `json:"location" validate:"max=300"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at" validate:"gtefield=StartAt"`
	Price       float64   `json:"price" validate:"gte=0,lte=100000"`
	IsFree      bool      `json:"is_free"`
	URL         string    `json:"url" validate:"omitempty,url,max=2048"`
	CategoryID  string    `json:"category_id" validate:"required"`
	ImageKey    string    `json:"image_key" validate:"max=512"`
}

// EventPatch carries the fields of a partial update; nil means unchanged.
type EventPatch struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Location    *string    `json:"location" validate:"omitempty,max=300"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	Price       *float64   `json:"price" validate:"omitempty,gte=0,lte=100000"`
	IsFree      *bool      `json:"is_free"`
	URL         *string    `json:"url" validate:"omitempty,url,max=2048"`
	CategoryID  *string    `json:"category_id" validate:"omitempty,min=1"`
	ImageKey    *string    `json:"image_key" validate:"omitempty,max=512"`
}

type EventService struct {
	events     EventStore
	categories CategoryStore
	orders     OrderStore
	objects    ObjectStore
	logger     observability.Logger
	now        func() time.Time
}

func NewEventService(events EventStore, categories CategoryStore, orders OrderStore, objects ObjectStore, logger observability.Logger) *EventService {
	return &EventService{
		events:     events,
		categories: categories,
		orders:     orders,
		objects:    objects,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Query never fails: a store error is logged and answered with an empty
// page.
func (s *EventService) Query(ctx context.Context, q domain.EventQuery) domain.EventPage {
	q.Normalize()
	page, err := s.events.Query(ctx, q)
	if err != nil {
		observability.EventQueryFailures.Inc()
		observability.LoggerFromContext(ctx, s.logger).WithError(err).WithFields(map[string]interface{}{
			"query":    q.Query,
			"category": q.CategoryID,
			"page":     q.Page,
		}).Error("event query failed")
		return domain.EmptyEventPage(q)
	}
	if page.Data == nil {
		page.Data = []domain.Event{}
	}
	return page
}

func (s *EventService) Get(ctx context.Context, id string) (*domain.Event, error) {
	return s.events.Get(ctx, id)
}

// Related lists other events in the same category as id.
func (s *EventService) Related(ctx context.Context, id string, q domain.EventQuery) (domain.EventPage, error) {
	event, err := s.events.Get(ctx, id)
	if err != nil {
		return domain.EventPage{}, err
	}
	q.Normalize()
	if event.CategoryID == "" {
		return domain.EmptyEventPage(q), nil
	}
	q.Query = ""
	q.OrganizerID = ""
	q.CategoryID = event.CategoryID
	q.ExcludeID = event.ID
	return s.Query(ctx, q), nil
}

func (s *EventService) ByOrganizer(ctx context.Context, organizerID string, q domain.EventQuery) domain.EventPage {
	q.Query = ""
	q.CategoryID = ""
	q.ExcludeID = ""
	q.OrganizerID = organizerID
	return s.Query(ctx, q)
}

func (s *EventService) Create(ctx context.Context, p *auth.Principal, in EventInput) (*domain.Event, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.categories.Get(ctx, in.CategoryID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Invalidf("category %s does not exist", in.CategoryID)
		}
		return nil, err
	}

	now := s.now()
	event := domain.Event{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		StartAt:     in.StartAt.UTC(),
		EndAt:       in.EndAt.UTC(),
		Price:       in.Price,
		IsFree:      in.IsFree,
		URL:         in.URL,
		CategoryID:  in.CategoryID,
		OrganizerID: p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.setImage(&event, in.ImageKey, p.UserID); err != nil {
		return nil, err
	}
	event.Normalize()
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, err
	}
	return s.events.Get(ctx, event.ID)
}

func (s *EventService) Update(ctx context.Context, p *auth.Principal, id string, patch EventPatch) (*domain.Event, error) {
	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	event, err := s.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	oldKey := event.ImageKey

	if patch.Title != nil {
		event.Title = *patch.Title
	}
	if patch.Description != nil {
		event.Description = *patch.Description
	}
	if patch.Location != nil {
		event.Location = *patch.Location
	}
	if patch.StartAt != nil {
		event.StartAt = patch.StartAt.UTC()
	}
	if patch.EndAt != nil {
		event.EndAt = patch.EndAt.UTC()
	}
	if patch.Price != nil {
		event.Price = *patch.Price
	}
	if patch.IsFree != nil {
		event.IsFree = *patch.IsFree
	}
	if patch.URL != nil {
		event.URL = *patch.URL
	}
	if patch.CategoryID != nil && *patch.CategoryID != event.CategoryID {
		if _, err := s.categories.Get(ctx, *patch.CategoryID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, domain.Invalidf("category %s does not exist", *patch.CategoryID)
			}
			return nil, err
		}
		event.CategoryID = *patch.CategoryID
	}
	if patch.ImageKey != nil && *patch.ImageKey != oldKey {
		if err := s.setImage(event, *patch.ImageKey, p.UserID); err != nil {
			return nil, err
		}
	}

	event.Normalize()
	if err := event.Validate(); err != nil {
		return nil, err
	}
	event.UpdatedAt = s.now()
	if err := s.events.Update(ctx, *event); err != nil {
		return nil, err
	}
	if oldKey != "" && oldKey != event.ImageKey {
		s.deleteImage(ctx, oldKey)
	}
	return s.events.Get(ctx, event.ID)
}

// Delete removes the event and then its stored image.
func (s *EventService) Delete(ctx context.Context, p *auth.Principal, id string) error {
	event, err := s.owned(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.events.Delete(ctx, event.ID, p.UserID); err != nil {
		return err
	}
	if event.ImageKey != "" {
		s.deleteImage(ctx, event.ImageKey)
	}
	return nil
}

// Orders lists the orders placed for an event the caller organizes.
func (s *EventService) Orders(ctx context.Context, p *auth.Principal, id string) ([]domain.Order, error) {
	event, err := s.owned(ctx, p, id)
	if err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByEvent(ctx, event.ID)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].EventTitle = event.Title
	}
	return orders, nil
}

func (s *EventService) owned(ctx context.Context, p *auth.Principal, id string) (*domain.Event, error) {
	event, err := s.events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !event.OwnedBy(p.UserID) {
		return nil, domain.Forbiddenf("event %s belongs to another organizer", id)
	}
	return event, nil
}

// setImage accepts keys uploaded under the event itself or under the
// organizer's own upload area, which is where images for not yet created
// events go.
func (s *EventService) setImage(event *domain.Event, key, userID string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		event.ImageKey = ""
		event.ImageURL = ""
		return nil
	}
	if !domain.KeyInScope(key, domain.UploadScopeEvent, event.ID) && !domain.KeyInScope(key, domain.UploadScopeUser, userID) {
		return domain.Invalidf("image_key is outside this event's upload area")
	}
	event.ImageKey = key
	event.ImageURL = s.objects.PublicURL(key)
	return nil
}

func (s *EventService) deleteImage(ctx context.Context, key string) {
	if err := s.objects.Delete(ctx, key); err != nil {
		observability.LoggerFromContext(ctx, s.logger).WithError(err).WithField("object_key", key).Warn("failed to delete event image")
	}
}
