// Package cache holds the elevation samples shared by every enrichment in a run.
//
// The cache is an explicit resource: the processor builds one and hands it to the
// elevation fetcher. Only successful lookups are stored.
package cache

import (
	"context"
	"log/slog"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/skidata-processor/internal/core/observability"
)

const DefaultSize = 1 << 20

// Elevations is one cache tier. GetMany returns only the keys it holds.
type Elevations interface {
	GetMany(ctx context.Context, keys []string) map[string]float64
	SetMany(ctx context.Context, kv map[string]float64)
}

// Memory is a bounded in-process tier with least-recently-used eviction.
type Memory struct {
	lru *lru.Cache[string, float64]
}

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultSize
	}
	c, _ := lru.New[string, float64](size)
	return &Memory{lru: c}
}

func (m *Memory) GetMany(_ context.Context, keys []string) map[string]float64 {
	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		v, ok := m.lru.Get(k)
		observability.IncElevationCache("memory", ok)
		if ok {
			out[k] = v
		}
	}
	return out
}

func (m *Memory) SetMany(_ context.Context, kv map[string]float64) {
	for k, v := range kv {
		if !math.IsNaN(v) {
			m.lru.Add(k, v)
		}
	}
}

func (m *Memory) Len() int { return m.lru.Len() }

// Store is the subset of redisstore.Client used by the shared tier.
type Store interface {
	Elevations(ctx context.Context, keys []string) (map[string]float64, error)
	SetElevations(ctx context.Context, kv map[string]float64, ttl time.Duration) error
}

// Remote is a tier backed by Redis so repeated runs reuse earlier lookups.
// Each call is one round trip. Redis failures degrade to misses.
type Remote struct {
	store   Store
	ttl     time.Duration
	timeout time.Duration
	log     *slog.Logger
}

func NewRemote(store Store, ttl, timeout time.Duration, log *slog.Logger) *Remote {
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Remote{store: store, ttl: ttl, timeout: timeout, log: log}
}

func (r *Remote) GetMany(ctx context.Context, keys []string) map[string]float64 {
	if len(keys) == 0 {
		return map[string]float64{}
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	got, err := r.store.Elevations(ctx, keys)
	if err != nil {
		r.log.DebugContext(ctx, "elevation cache read failed", "keys", len(keys), "error", err)
		return map[string]float64{}
	}
	for _, k := range keys {
		_, ok := got[k]
		observability.IncElevationCache("redis", ok)
	}
	return got
}

func (r *Remote) SetMany(ctx context.Context, kv map[string]float64) {
	fresh := make(map[string]float64, len(kv))
	for k, v := range kv {
		if !math.IsNaN(v) {
			fresh[k] = v
		}
	}
	if len(fresh) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.SetElevations(ctx, fresh, r.ttl); err != nil {
		r.log.DebugContext(ctx, "elevation cache write failed", "keys", len(fresh), "error", err)
	}
}

// Tiered reads through the tiers in order and promotes hits into faster tiers.
type Tiered struct {
	tiers []Elevations
}

func NewTiered(tiers ...Elevations) *Tiered {
	out := make([]Elevations, 0, len(tiers))
	for _, t := range tiers {
		if t != nil {
			out = append(out, t)
		}
	}
	return &Tiered{tiers: out}
}

func (t *Tiered) GetMany(ctx context.Context, keys []string) map[string]float64 {
	out := make(map[string]float64, len(keys))
	missing := keys
	for i, tier := range t.tiers {
		if len(missing) == 0 {
			break
		}
		hits := tier.GetMany(ctx, missing)
		if len(hits) == 0 {
			continue
		}
		for _, faster := range t.tiers[:i] {
			faster.SetMany(ctx, hits)
		}
		rest := missing[:0:0]
		for _, k := range missing {
			if v, ok := hits[k]; ok {
				out[k] = v
				continue
			}
			rest = append(rest, k)
		}
		missing = rest
	}
	return out
}

func (t *Tiered) SetMany(ctx context.Context, kv map[string]float64) {
	if len(kv) == 0 {
		return
	}
	for _, tier := range t.tiers {
		tier.SetMany(ctx, kv)
	}
}
