package elevation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/mohammed-shakir/skidata-processor/internal/cache"
	"github.com/mohammed-shakir/skidata-processor/internal/cache/keys"
	"github.com/mohammed-shakir/skidata-processor/internal/core/observability"
)

const (
	DefaultBudget     = 10 * time.Minute
	DefaultMaxBackoff = 30 * time.Second
)

// Resolver turns coordinates into elevations. Unknown elevations are NaN.
type Resolver interface {
	Resolve(ctx context.Context, coords []Coordinate) ([]float64, error)
}

type FetcherOption func(*Fetcher)

func WithCache(c cache.Elevations) FetcherOption { return func(f *Fetcher) { f.cache = c } }

func WithLimiter(l Limiter) FetcherOption { return func(f *Fetcher) { f.limiter = l } }

func WithThrottle(t *Throttle) FetcherOption { return func(f *Fetcher) { f.throttle = t } }

// WithBudget bounds the wall-clock time spent on one coordinate.
func WithBudget(d time.Duration) FetcherOption { return func(f *Fetcher) { f.budget = d } }

func WithProtocol(p Protocol) FetcherOption { return func(f *Fetcher) { f.protocol = p } }

// WithRetryInterval sets the first delay after a failed, non-throttled attempt.
func WithRetryInterval(initial, max time.Duration) FetcherOption {
	return func(f *Fetcher) { f.retryInitial, f.retryMax = initial, max }
}

func WithFetcherLogger(l *slog.Logger) FetcherOption { return func(f *Fetcher) { f.log = l } }

// Fetcher is the request queue in front of the elevation service. Lookups are
// resolved in order, cache first; the limiter and throttle are shared by every
// goroutine using the same Fetcher.
type Fetcher struct {
	client       *Client
	protocol     Protocol
	cache        cache.Elevations
	limiter      Limiter
	throttle     *Throttle
	budget       time.Duration
	retryInitial time.Duration
	retryMax     time.Duration
	log          *slog.Logger
	now          func() time.Time
}

func NewFetcher(client *Client, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:       client,
		protocol:     ProtocolPoint,
		budget:       DefaultBudget,
		retryInitial: 500 * time.Millisecond,
		retryMax:     DefaultMaxBackoff,
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(f)
	}
	if f.cache == nil {
		f.cache = cache.NewMemory(cache.DefaultSize)
	}
	if f.limiter == nil {
		f.limiter = Unlimited()
	}
	if f.throttle == nil {
		f.throttle = NewThrottle(0, DefaultMaxBackoff)
	}
	return f
}

// Resolve returns one elevation per coordinate, NaN where the budget ran out.
// The only error is context cancellation.
func (f *Fetcher) Resolve(ctx context.Context, coords []Coordinate) ([]float64, error) {
	out := make([]float64, len(coords))
	dupOf := make([]int, len(coords))
	first := make(map[string]int, len(coords))
	var (
		uniqIdx, missIdx   []int
		uniqKeys, missKeys []string
	)
	for i, c := range coords {
		key := keys.Elevation(c.Lat, c.Lng)
		if j, ok := first[key]; ok {
			dupOf[i] = j
			continue
		}
		dupOf[i] = -1
		first[key] = i
		uniqIdx = append(uniqIdx, i)
		uniqKeys = append(uniqKeys, key)
	}

	cached := f.cache.GetMany(ctx, uniqKeys)
	for n, i := range uniqIdx {
		if v, ok := cached[uniqKeys[n]]; ok {
			observability.IncElevationLookup("cached")
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missKeys = append(missKeys, uniqKeys[n])
	}

	if len(missIdx) > 0 {
		var (
			values []float64
			err    error
		)
		if f.protocol == ProtocolBatch {
			values, err = f.resolveBatch(ctx, coords, missIdx)
		} else {
			values, err = f.resolvePoints(ctx, coords, missIdx)
		}
		if err != nil {
			return nil, err
		}
		fresh := make(map[string]float64, len(missIdx))
		for n, i := range missIdx {
			out[i] = values[n]
			if !math.IsNaN(values[n]) {
				fresh[missKeys[n]] = values[n]
			}
		}
		f.cache.SetMany(ctx, fresh)
	}

	for i, j := range dupOf {
		if j >= 0 {
			out[i] = out[j]
		}
	}
	return out, nil
}

func (f *Fetcher) resolvePoints(ctx context.Context, coords []Coordinate, idx []int) ([]float64, error) {
	out := make([]float64, len(idx))
	for n, i := range idx {
		c := coords[i]
		v, err := f.withRetry(ctx, func(ctx context.Context) ([]float64, error) {
			v, err := f.client.Point(ctx, c)
			if err != nil {
				return nil, err
			}
			return []float64{v}, nil
		})
		if err != nil {
			return nil, err
		}
		if v == nil {
			out[n] = math.NaN()
			continue
		}
		out[n] = v[0]
	}
	return out, nil
}

func (f *Fetcher) resolveBatch(ctx context.Context, coords []Coordinate, idx []int) ([]float64, error) {
	batch := make([]Coordinate, len(idx))
	for n, i := range idx {
		batch[n] = coords[i]
	}
	v, err := f.withRetry(ctx, func(ctx context.Context) ([]float64, error) {
		return f.client.Batch(ctx, batch)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = make([]float64, len(batch))
		for n := range v {
			v[n] = math.NaN()
		}
	}
	return v, nil
}

// withRetry repeats attempt until it succeeds or the budget is spent, in which
// case it returns (nil, nil). Throttled attempts open the shared throttle; other
// failures back off locally.
func (f *Fetcher) withRetry(ctx context.Context, attempt func(context.Context) ([]float64, error)) ([]float64, error) {
	deadline := f.now().Add(f.budget)
	local := backoff.NewExponentialBackOff()
	local.InitialInterval = f.retryInitial
	local.MaxInterval = f.retryMax
	local.Reset()

	for {
		if d := f.throttle.Delay(); d > 0 {
			if err := sleep(ctx, min(d, f.remaining(deadline))); err != nil {
				return nil, err
			}
		}
		if f.remaining(deadline) <= 0 {
			observability.IncElevationLookup("exhausted")
			return nil, nil
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		v, err := attempt(ctx)
		if err == nil {
			f.throttle.Success()
			observability.IncElevationLookup("ok")
			return v, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var wait time.Duration
		if errors.Is(err, ErrThrottled) {
			observability.IncThrottle()
			observability.IncElevationLookup("throttled")
			wait = f.throttle.Open()
		} else {
			observability.IncElevationLookup("failed")
			wait = local.NextBackOff()
		}
		f.log.DebugContext(ctx, "elevation lookup attempt failed", "error", err, "retry_in", wait)

		if !errors.Is(err, ErrThrottled) {
			if err := sleep(ctx, min(wait, f.remaining(deadline))); err != nil {
				return nil, err
			}
		}
	}
}

func (f *Fetcher) remaining(deadline time.Time) time.Duration {
	return deadline.Sub(f.now())
}
