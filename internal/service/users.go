package service

import (
	"context"
	"strings"
	"time"

	"github.com/robertarktes/event-sphere/internal/auth"
	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/observability"
)

type UserPatch struct {
	DisplayName *string `json:"display_name" validate:"omitempty,min=1,max=80"`
	ImageKey    *string `json:"image_key" validate:"omitempty,max=512"`
}

type UserService struct {
	users   UserStore
	objects ObjectStore
	logger  observability.Logger
	now     func() time.Time
}

func NewUserService(users UserStore, objects ObjectStore, logger observability.Logger) *UserService {
	return &UserService{
		users:   users,
		objects: objects,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Me returns the caller's profile, creating it from the token claims on
// first use.
func (s *UserService) Me(ctx context.Context, p *auth.Principal) (*domain.UserProfile, error) {
	now := s.now()
	return s.users.Ensure(ctx, domain.UserProfile{
		ID:          p.UserID,
		Email:       p.Email,
		DisplayName: defaultDisplayName(p),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (s *UserService) Update(ctx context.Context, p *auth.Principal, patch UserPatch) (*domain.UserProfile, error) {
	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	profile, err := s.Me(ctx, p)
	if err != nil {
		return nil, err
	}
	oldKey := profile.ImageKey

	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" {
			return nil, domain.Invalidf("display_name must not be blank")
		}
		profile.DisplayName = name
	}
	if patch.ImageKey != nil {
		key := strings.TrimSpace(*patch.ImageKey)
		switch {
		case key == "":
			profile.ImageKey, profile.ImageURL = "", ""
		case domain.KeyInScope(key, domain.UploadScopeUser, p.UserID):
			profile.ImageKey, profile.ImageURL = key, s.objects.PublicURL(key)
		default:
			return nil, domain.Invalidf("image_key is outside your upload area")
		}
	}
	profile.UpdatedAt = s.now()
	if err := s.users.Update(ctx, *profile); err != nil {
		return nil, err
	}
	if oldKey != "" && oldKey != profile.ImageKey {
		if err := s.objects.Delete(ctx, oldKey); err != nil {
			observability.LoggerFromContext(ctx, s.logger).WithError(err).WithField("object_key", oldKey).Warn("failed to delete profile image")
		}
	}
	return profile, nil
}

func defaultDisplayName(p *auth.Principal) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(p.Email, "@"); ok && local != "" {
		return local
	}
	return "user"
}
