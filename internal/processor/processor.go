// Package processor runs the ski area, run and lift pipelines.
//
// Each category is an independent stream:
//
//	read -> format -> attach site membership -> [accumulate] -> [elevation] -> write
//
// The three pipelines run concurrently and share no mutable state apart from
// the elevation cache inside the enricher. A failing pipeline never stops the
// others; its error is reported in its Result.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/skidata-processor/internal/clustering"
	"github.com/mohammed-shakir/skidata-processor/internal/core/observability"
	"github.com/mohammed-shakir/skidata-processor/internal/elevation"
	"github.com/mohammed-shakir/skidata-processor/internal/logger"
	"github.com/mohammed-shakir/skidata-processor/internal/sites"
)

const (
	CategorySkiAreas = "skiAreas"
	CategoryRuns     = "runs"
	CategoryLifts    = "lifts"
)

// Inputs are GeoJSON feature files. SkimapSkiAreas and Sites may be empty.
type Inputs struct {
	OSMSkiAreas    string
	SkimapSkiAreas string
	Runs           string
	Lifts          string
	Sites          string
}

type Result struct {
	Category string
	In       int
	Out      int
	Dropped  int
	Duration time.Duration
	Err      error
}

// Observer follows pipeline progress. Calls may come from several goroutines.
type Observer interface {
	PipelineStarted(category string)
	FeatureRead(category string)
	FeatureWritten(category string)
	PipelineFinished(r Result)
}

type Options struct {
	Inputs Inputs
	// Final is where the run's output must end up.
	Final clustering.Set
	// Intermediate receives pipeline output when a clustering stage follows.
	Intermediate clustering.Set
	Clusterer    clustering.Clusterer
	// Enricher adds elevations to runs and lifts; nil skips enrichment.
	Enricher    *elevation.Enricher
	Concurrency int
	Observer    Observer
	Log         *slog.Logger
}

type Processor struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) *Processor {
	if opts.Clusterer == nil {
		opts.Clusterer = clustering.Noop{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Processor{opts: opts, log: log}
}

// Outputs reports where the pipelines write.
func (p *Processor) Outputs() clustering.Set {
	if clustering.Enabled(p.opts.Clusterer) {
		return p.opts.Intermediate
	}
	return p.opts.Final
}

// Run executes all pipelines and, when they all succeed, the clustering stage.
// The returned error joins every pipeline failure.
func (p *Processor) Run(ctx context.Context) ([]Result, error) {
	if logger.RunID(ctx) == "" {
		ctx = logger.WithRunID(ctx, "")
	}
	provider, err := p.loadSites(ctx)
	if err != nil {
		return nil, err
	}

	out := p.Outputs()
	jobs := []struct {
		category string
		path     string
		run      func(ctx context.Context, path string, r *Result) error
	}{
		{CategorySkiAreas, out.SkiAreas, func(ctx context.Context, path string, r *Result) error {
			return p.skiAreas(ctx, provider, path, r)
		}},
		{CategoryRuns, out.Runs, func(ctx context.Context, path string, r *Result) error {
			return p.runs(ctx, provider, path, r)
		}},
		{CategoryLifts, out.Lifts, func(ctx context.Context, path string, r *Result) error {
			return p.lifts(ctx, provider, path, r)
		}},
	}

	results := make([]Result, len(jobs))
	var g errgroup.Group
	for i, job := range jobs {
		g.Go(func() error {
			ctx := logger.WithCategory(ctx, job.category)
			r := &results[i]
			r.Category = job.category
			p.opts.Observer.PipelineStarted(job.category)

			start := time.Now()
			r.Err = runGuarded(ctx, job.path, r, job.run)
			r.Duration = time.Since(start)
			p.finish(ctx, *r)
			return r.Err
		})
	}
	// failures are carried by the results
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s pipeline: %w", r.Category, r.Err))
		}
	}
	if len(errs) > 0 {
		return results, errors.Join(errs...)
	}

	if clustering.Enabled(p.opts.Clusterer) {
		files := clustering.Files{Intermediate: p.opts.Intermediate, Final: p.opts.Final}
		if err := p.opts.Clusterer.Cluster(ctx, files); err != nil {
			return results, fmt.Errorf("clustering: %w", err)
		}
	}
	return results, nil
}

// runGuarded turns a panic in a pipeline into that pipeline's error.
func runGuarded(ctx context.Context, path string, r *Result, run func(context.Context, string, *Result) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return run(ctx, path, r)
}

func (p *Processor) finish(ctx context.Context, r Result) {
	observability.AddFeatures(r.Category, "in", r.In)
	observability.AddFeatures(r.Category, "out", r.Out)
	observability.AddFeatures(r.Category, "dropped", r.Dropped)
	observability.ObservePipeline(r.Category, r.Err != nil, r.Duration.Seconds())
	p.opts.Observer.PipelineFinished(r)

	if r.Err != nil {
		p.log.ErrorContext(ctx, "pipeline failed", "error", r.Err, "in", r.In, "duration", r.Duration)
		return
	}
	p.log.InfoContext(ctx, "pipeline finished",
		"in", r.In, "out", r.Out, "dropped", r.Dropped, "duration", r.Duration)
}

func (p *Processor) loadSites(ctx context.Context) (*sites.Provider, error) {
	path := p.opts.Inputs.Sites
	if path == "" {
		return sites.Empty(), nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		p.log.WarnContext(ctx, "site relations file missing, continuing without sites", "path", path)
		return sites.Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open sites: %w", err)
	}
	defer func() { _ = f.Close() }()

	provider, err := sites.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load sites %s: %w", path, err)
	}
	p.log.InfoContext(ctx, "site relations loaded", "sites", provider.Len())
	return provider, nil
}

type nopObserver struct{}

func (nopObserver) PipelineStarted(string) {}
func (nopObserver) FeatureRead(string)     {}
func (nopObserver) FeatureWritten(string)  {}
func (nopObserver) PipelineFinished(Result) {}
