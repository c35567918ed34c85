package elevation

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Throttle is the single backoff state shared by every in-flight lookup. A
// throttled response opens it for the next backoff interval; any success
// closes it and resets the interval.
type Throttle struct {
	mu    sync.Mutex
	b     *backoff.ExponentialBackOff
	until time.Time
	now   func() time.Time
}

func NewThrottle(initial, max time.Duration) *Throttle {
	b := backoff.NewExponentialBackOff()
	if initial > 0 {
		b.InitialInterval = initial
	}
	if max > 0 {
		b.MaxInterval = max
	}
	if b.InitialInterval > b.MaxInterval {
		b.InitialInterval = b.MaxInterval
	}
	b.Reset()
	return &Throttle{b: b, now: time.Now}
}

// Open pushes the reopen time out by the next backoff interval.
func (t *Throttle) Open() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.b.NextBackOff()
	if u := t.now().Add(d); u.After(t.until) {
		t.until = u
	}
	return d
}

func (t *Throttle) Success() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.b.Reset()
	t.until = time.Time{}
}

// Delay is how long callers must wait before the next attempt.
func (t *Throttle) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d := t.until.Sub(t.now()); d > 0 {
		return d
	}
	return 0
}
