package ratelimit

import (
	"context"
	"time"

	"github.com/robertarktes/event-sphere/internal/observability"
)

// Counter is a fixed-window counter; the redis cache implements it.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RateLimiter struct {
	counter Counter
	logger  observability.Logger
}

func NewRateLimiter(counter Counter, logger observability.Logger) *RateLimiter {
	return &RateLimiter{counter: counter, logger: logger}
}

// Allow reports whether key is still under rate requests in the current
// period. It fails open when the counter store is unavailable.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	n, err := rl.counter.Incr(ctx, key, period)
	if err != nil {
		rl.logger.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
		return true
	}
	if n > int64(rate) {
		observability.RateLimitExceeded.Inc()
		return false
	}
	return true
}
