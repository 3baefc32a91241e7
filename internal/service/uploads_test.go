package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/robertarktes/event-sphere/internal/domain"
	"github.com/robertarktes/event-sphere/internal/service/servicetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUploadService() (*UploadService, *servicetest.Objects) {
	objects := &servicetest.Objects{}
	events := servicetest.NewEvents(domain.Event{ID: "ev-1", OrganizerID: "org-1"})
	svc := NewUploadService(objects, events, 4<<20, 15*time.Minute)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return svc, objects
}

func TestSignUpload(t *testing.T) {
	svc, _ := newUploadService()

	up, err := svc.Sign(context.Background(), organizer, UploadInput{
		Scope: "event", EventID: "ev-1", Filename: "../Poster Final.PNG", ContentType: "image/png", Size: 1024,
	})
	require.NoError(t, err)
	assert.Equal(t, "events/ev-1/1700000000000-poster-final.png", up.ObjectKey)
	assert.Equal(t, "image/png", up.Headers["Content-Type"])

	up, err = svc.Sign(context.Background(), buyer, UploadInput{
		Scope: "user", Filename: "me.jpg", ContentType: "image/jpeg", Size: 10,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.ObjectKey, "uploads/buyer-1/"))
}

func TestSignUploadRejections(t *testing.T) {
	svc, objects := newUploadService()
	ctx := context.Background()

	cases := map[string]struct {
		in   UploadInput
		want error
	}{
		"not an image":  {UploadInput{Scope: "user", Filename: "a.pdf", ContentType: "application/pdf", Size: 1}, domain.ErrInvalidInput},
		"too large":     {UploadInput{Scope: "user", Filename: "a.png", ContentType: "image/png", Size: 5 << 20}, domain.ErrInvalidInput},
		"bad scope":     {UploadInput{Scope: "admin", Filename: "a.png", ContentType: "image/png", Size: 1}, domain.ErrInvalidInput},
		"missing event": {UploadInput{Scope: "event", Filename: "a.png", ContentType: "image/png", Size: 1}, domain.ErrInvalidInput},
		"foreign event": {UploadInput{Scope: "event", EventID: "ev-1", Filename: "a.png", ContentType: "image/png", Size: 1}, domain.ErrForbidden},
		"unknown event": {UploadInput{Scope: "event", EventID: "ev-9", Filename: "a.png", ContentType: "image/png", Size: 1}, domain.ErrNotFound},
		"zero size":     {UploadInput{Scope: "user", Filename: "a.png", ContentType: "image/png"}, domain.ErrInvalidInput},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Sign(ctx, buyer, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, objects.Signed)
}
