package processor

import (
	"context"
	"sync/atomic"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/skidata-processor/internal/aggregate/props"
	"github.com/mohammed-shakir/skidata-processor/internal/aggregate/runs"
	"github.com/mohammed-shakir/skidata-processor/internal/aggregate/skiarea"
	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
	"github.com/mohammed-shakir/skidata-processor/internal/format"
	"github.com/mohammed-shakir/skidata-processor/internal/pipeline"
	"github.com/mohammed-shakir/skidata-processor/internal/sites"
)

// counters are shared between the stage goroutines and the pipeline owner.
type counters struct {
	in      atomic.Int64
	dropped atomic.Int64
}

func (c *counters) fill(r *Result) {
	r.In = int(c.in.Load())
	r.Dropped = int(c.dropped.Load())
}

// formatted reads raw features from path and keeps those fn accepts.
func formatted[T any](ctx context.Context, p *Processor, category, path string, c *counters, fn func(format.Raw) (T, bool)) *pipeline.Pipeline[T] {
	if path == "" {
		return pipeline.FromSlice[T](nil)
	}
	raw := pipeline.Tap(pipeline.ReadFile[geojson.Feature](path), func(context.Context, geojson.Feature) {
		c.in.Add(1)
		p.opts.Observer.FeatureRead(category)
	})
	return pipeline.Map(raw, func(_ context.Context, f geojson.Feature) (T, bool, error) {
		var zero T
		r, err := format.FromGeoJSON(&f)
		if err != nil {
			c.dropped.Add(1)
			p.log.DebugContext(ctx, "skipping unidentified feature", "path", path, "error", err)
			return zero, false, nil
		}
		out, ok := fn(r)
		if !ok {
			c.dropped.Add(1)
		}
		return out, ok, nil
	})
}

func writeTo[T any](ctx context.Context, p *Processor, category, path string, src *pipeline.Pipeline[T]) (int, error) {
	w, err := pipeline.CreateFeatureCollection(path)
	if err != nil {
		return 0, err
	}
	published := false
	defer func() {
		if !published {
			w.Abort()
		}
	}()
	src = pipeline.Tap(src, func(context.Context, T) { p.opts.Observer.FeatureWritten(category) })
	n, err := pipeline.WriteAll(ctx, src, w)
	if err != nil {
		return n, err
	}
	if err := w.Close(); err != nil {
		return n, err
	}
	published = true
	return n, nil
}

func (p *Processor) skiAreas(ctx context.Context, provider *sites.Provider, path string, r *Result) error {
	var c counters
	in := p.opts.Inputs
	merged := pipeline.Accumulate(pipeline.Concat(
		formatted(ctx, p, CategorySkiAreas, in.OSMSkiAreas, &c, format.OSMSkiArea),
		formatted(ctx, p, CategorySkiAreas, in.SkimapSkiAreas, &c, format.SkimapSkiArea),
		pipeline.Tap(pipeline.FromSeq(provider.SeedFeatures()), func(context.Context, model.SkiAreaFeature) {
			c.in.Add(1)
		}),
	), pipeline.Accumulator[model.SkiAreaFeature, model.SkiAreaFeature](skiarea.NewAccumulator()))

	n, err := writeTo(ctx, p, CategorySkiAreas, path, merged)
	c.fill(r)
	r.Out = n
	return err
}

func (p *Processor) runs(ctx context.Context, provider *sites.Provider, path string, r *Result) error {
	var c counters
	acc := runs.NewAccumulator(runs.WithLogger(p.log))
	stream := pipeline.Map(
		formatted(ctx, p, CategoryRuns, p.opts.Inputs.Runs, &c, format.Run),
		func(_ context.Context, f model.RunFeature) (model.RunFeature, bool, error) {
			f.Properties.SkiAreas = props.MergeSkiAreaRefs(f.Properties.SkiAreas, provider.SkiAreasForFeature(f.Properties.ID))
			return f, true, nil
		},
	)
	stream = pipeline.Accumulate(stream, pipeline.Accumulator[model.RunFeature, model.RunFeature](acc))
	if e := p.opts.Enricher; e != nil {
		stream = pipeline.AsyncMap(stream, p.opts.Concurrency, e.TryEnrichRun, func(f model.RunFeature, err error) {
			e.RunFailed(ctx, f, err)
		})
	}

	n, err := writeTo(ctx, p, CategoryRuns, path, stream)
	c.fill(r)
	r.Dropped += acc.Stats().Dropped
	r.Out = n
	return err
}

func (p *Processor) lifts(ctx context.Context, provider *sites.Provider, path string, r *Result) error {
	var c counters
	stream := pipeline.Map(
		formatted(ctx, p, CategoryLifts, p.opts.Inputs.Lifts, &c, format.Lift),
		func(_ context.Context, f model.LiftFeature) (model.LiftFeature, bool, error) {
			f.Properties.SkiAreas = props.MergeSkiAreaRefs(f.Properties.SkiAreas, provider.SkiAreasForFeature(f.Properties.ID))
			return f, true, nil
		},
	)
	if e := p.opts.Enricher; e != nil {
		stream = pipeline.AsyncMap(stream, p.opts.Concurrency, e.TryEnrichLift, func(f model.LiftFeature, err error) {
			e.LiftFailed(ctx, f, err)
		})
	}

	n, err := writeTo(ctx, p, CategoryLifts, path, stream)
	c.fill(r)
	r.Out = n
	return err
}
