package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	redisadapter "github.com/robertarktes/event-sphere/internal/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	reserved map[string]bool
	stored   map[string]redisadapter.IdempResponse
}

func newMemStore() *memStore {
	return &memStore{reserved: map[string]bool{}, stored: map[string]redisadapter.IdempResponse{}}
}

func (m *memStore) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserved[key] {
		return false, nil
	}
	if _, ok := m.stored[key]; ok {
		return false, nil
	}
	m.reserved[key] = true
	return true, nil
}

func (m *memStore) Get(_ context.Context, key string) (*redisadapter.IdempResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.stored[key]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memStore) Set(_ context.Context, key string, resp redisadapter.IdempResponse, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, key)
	m.stored[key] = resp
	return nil
}

func (m *memStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, key)
	delete(m.stored, key)
	return nil
}

func TestBeginCompleteReplay(t *testing.T) {
	ctx := context.Background()
	idem := NewIdempotency(newMemStore(), time.Hour)

	stored, err := idem.Begin(ctx, "user-1:key-0000000000000001")
	require.NoError(t, err)
	assert.Nil(t, stored)

	_, err = idem.Begin(ctx, "user-1:key-0000000000000001")
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, idem.Complete(ctx, "user-1:key-0000000000000001", Response{Status: 201, ContentType: "application/json", Result: []byte(`{"ok":true}`)}))

	stored, err = idem.Begin(ctx, "user-1:key-0000000000000001")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 201, stored.Status)
	assert.JSONEq(t, `{"ok":true}`, string(stored.Result))
}

func TestServerErrorReleasesKey(t *testing.T) {
	ctx := context.Background()
	idem := NewIdempotency(newMemStore(), time.Hour)

	_, err := idem.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, idem.Complete(ctx, "k", Response{Status: 502}))

	stored, err := idem.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestValidateKey(t *testing.T) {
	assert.ErrorIs(t, ValidateKey("short"), ErrInvalidKey)
	assert.NoError(t, ValidateKey("0123456789abcdef"))
}
