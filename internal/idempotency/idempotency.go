package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/event-sphere/internal/adapters/redis"
)

const (
	MinKeyLength = 16
	MaxKeyLength = 255
)

var (
	ErrInFlight   = errors.New("request with this idempotency key is in progress")
	ErrInvalidKey = errors.New("invalid Idempotency-Key")
)

// Store persists reservations and responses. The redis adapter implements it.
type Store interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

func ValidateKey(key string) error {
	if len(key) < MinKeyLength || len(key) > MaxKeyLength {
		return errors.Wrapf(ErrInvalidKey, "length must be between %d and %d", MinKeyLength, MaxKeyLength)
	}
	return nil
}

// Begin looks up key. A stored response is returned for replay. Otherwise
// the key is reserved and Begin returns nil; the caller must then finish
// with Complete. ErrInFlight means another request holds the key.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, error) {
	if stored, err := i.lookup(ctx, key); err != nil || stored != nil {
		return stored, err
	}
	ok, err := i.store.Reserve(ctx, key, i.ttl)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	// Lost the reservation; the winner may have finished in the meantime.
	stored, err := i.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, ErrInFlight
	}
	return stored, nil
}

// Complete stores resp for replay. Server errors release the key instead so
// the client can retry.
func (i *Idempotency) Complete(ctx context.Context, key string, resp Response) error {
	if resp.Status >= 500 {
		return i.store.Release(ctx, key)
	}
	return i.store.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
}

func (i *Idempotency) lookup(ctx context.Context, key string) (*Response, error) {
	stored, err := i.store.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, ContentType: stored.ContentType, Result: stored.Result}, nil
}
