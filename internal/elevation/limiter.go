package elevation

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces out remote lookups.
type Limiter interface {
	Wait(ctx context.Context) error
}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error { return ctx.Err() }

func Unlimited() Limiter { return unlimited{} }

// RateLimiter is a token bucket with optional random spacing between requests.
type RateLimiter struct {
	lim    *rate.Limiter
	jitter time.Duration
}

// NewRateLimiter allows perSecond requests with the given burst. perSecond <= 0
// disables the bucket; jitter > 0 adds a uniform delay in [0, jitter).
func NewRateLimiter(perSecond float64, burst int, jitter time.Duration) *RateLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{lim: rate.NewLimiter(limit, burst), jitter: jitter}
}

func (l *RateLimiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	if l.jitter <= 0 {
		return nil
	}
	return sleep(ctx, rand.N(l.jitter))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
