package service

import (
	"context"
	"strings"
	"time"

	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/domain"
)

type UploadInput struct {
	Scope       string `json:"scope" validate:"required,oneof=event user"`
	EventID     string `json:"event_id" validate:"required_if=Scope event"`
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required,max=100"`
	Size        int64  `json:"size" validate:"required,gt=0"`
}

type UploadService struct {
	objects  ObjectStore
	events   EventStore
	maxBytes int64
	ttl      time.Duration
	now      func() time.Time
}

func NewUploadService(objects ObjectStore, events EventStore, maxBytes int64, ttl time.Duration) *UploadService {
	return &UploadService{
		objects:  objects,
		events:   events,
		maxBytes: maxBytes,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Sign issues a short-lived URL for uploading one image directly to object
// storage. Event uploads require owning the event.
func (s *UploadService) Sign(ctx context.Context, p *auth.Principal, in UploadInput) (*domain.SignedUpload, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	contentType := strings.ToLower(strings.TrimSpace(in.ContentType))
	if !strings.HasPrefix(contentType, "image/") {
		return nil, domain.Invalidf("only image uploads are allowed")
	}
	if in.Size > s.maxBytes {
		return nil, domain.Invalidf("file is larger than %d bytes", s.maxBytes)
	}

	scope, id := domain.UploadScopeUser, p.UserID
	if in.Scope == "event" {
		event, err := s.events.Get(ctx, in.EventID)
		if err != nil {
			return nil, err
		}
		if !event.OwnedBy(p.UserID) {
			return nil, domain.Forbiddenf("event %s belongs to another organizer", in.EventID)
		}
		scope, id = domain.UploadScopeEvent, event.ID
	}

	key := domain.ObjectKey(scope, id, in.Filename, s.now())
	return s.objects.SignUpload(ctx, key, contentType, s.ttl)
}
