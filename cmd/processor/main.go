package main

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/mohammed-shakir/skidata-processor/internal/app/status"
	"github.com/mohammed-shakir/skidata-processor/internal/cache"
	"github.com/mohammed-shakir/skidata-processor/internal/cache/redisstore"
	"github.com/mohammed-shakir/skidata-processor/internal/clustering"
	"github.com/mohammed-shakir/skidata-processor/internal/core/config"
	"github.com/mohammed-shakir/skidata-processor/internal/core/httpclient"
	"github.com/mohammed-shakir/skidata-processor/internal/core/observability"
	"github.com/mohammed-shakir/skidata-processor/internal/elevation"
	"github.com/mohammed-shakir/skidata-processor/internal/logger"
	"github.com/mohammed-shakir/skidata-processor/internal/metrics"
	"github.com/mohammed-shakir/skidata-processor/internal/notify"
	"github.com/mohammed-shakir/skidata-processor/internal/processor"
)

var Version = "dev"

// Options override the environment configuration.
type Options struct {
	EnvFile      string `short:"e" long:"env-file"     description:"Dotenv file loaded before reading the environment" default:".env"`
	Input        string `short:"i" long:"input"        description:"Directory with the raw GeoJSON inputs"`
	Output       string `short:"o" long:"output"       description:"Directory for the processed GeoJSON outputs"`
	Intermediate string `long:"intermediate"           description:"Directory for pipeline output consumed by clustering"`
	ElevationURL string `long:"elevation-url"          description:"Elevation service endpoint; empty disables enrichment"`
	Protocol     string `long:"elevation-protocol"     description:"Elevation call pattern" choice:"point" choice:"batch"`
	Concurrency  int    `short:"p" long:"concurrency"  description:"Features enriched concurrently per pipeline"`
	Cluster      string `long:"cluster-command"        description:"External clustering command"`
	StatusAddr   string `long:"status-addr"            description:"Listen address of the status server"`
	LogLevel     string `short:"l" long:"log-level"    description:"Log level"`
	Console      bool   `long:"console"                description:"Human readable log output"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(opts.EnvFile)
	if err == nil {
		opts.apply(&cfg)
		err = cfg.Validate()
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Service:   "skidata-processor",
		Component: "processor",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)
	if err != nil {
		appLog.Error("invalid configuration", "error", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runID := logger.NewID()
	ctx = logger.WithRunID(ctx, runID)

	prov := metrics.Init(metrics.Config{Build: metrics.BuildInfo{
		Version:   Version,
		Revision:  os.Getenv("BUILD_REVISION"),
		BuildDate: os.Getenv("BUILD_DATE"),
	}})
	if err := observability.Init(prov.Registerer()); err != nil {
		appLog.Error("metrics init failed", "error", err)
		return 1
	}

	tracker := status.NewTracker(runID, processor.CategorySkiAreas, processor.CategoryRuns, processor.CategoryLifts)
	if cfg.StatusAddr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := status.Serve(srvCtx, cfg.StatusAddr, status.NewRouter(tracker, prov.Handler(), appLog), appLog); err != nil {
				appLog.Warn("status server stopped", "error", err)
			}
		}()
	}

	enricher, closeCache := buildEnricher(ctx, cfg, appLog)
	defer closeCache()

	var clusterer clustering.Clusterer = clustering.Noop{}
	if cfg.Clustering() {
		cmd, err := clustering.NewCommand(cfg.ClusterCommand, appLog)
		if err != nil {
			appLog.Error("invalid clustering command", "error", err)
			return 2
		}
		clusterer = cmd
	}

	notifier := buildNotifier(cfg, appLog)
	defer func() {
		if err := notifier.Close(); err != nil {
			appLog.Warn("notifier close failed", "error", err)
		}
	}()

	appLog.InfoContext(ctx, "starting processor",
		"version", Version,
		"input", cfg.InputDir,
		"output", cfg.OutputDir,
		"elevation", cfg.Elevation.URL != "",
		"clustering", cfg.Clustering())

	p := processor.New(processor.Options{
		Inputs:       inputs(cfg),
		Final:        outputs(cfg.OutputDir),
		Intermediate: outputs(cfg.IntermediateDir),
		Clusterer:    clusterer,
		Enricher:     enricher,
		Concurrency:  cfg.Elevation.Concurrency,
		Observer:     tracker,
		Log:          appLog,
	})
	results, runErr := p.Run(ctx)

	if err := notifier.Notify(ctx, completedEvent(runID, results)); err != nil {
		appLog.WarnContext(ctx, "completion event not published", "error", err)
	}
	logSummary(ctx, appLog, prov)
	if runErr != nil {
		appLog.ErrorContext(ctx, "processing failed", "error", runErr)
		return 1
	}
	appLog.InfoContext(ctx, "processing finished", "pipelines", len(results))
	return 0
}

func (o Options) apply(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.InputDir, o.Input)
	set(&cfg.OutputDir, o.Output)
	set(&cfg.IntermediateDir, o.Intermediate)
	set(&cfg.Elevation.URL, o.ElevationURL)
	set(&cfg.Elevation.Protocol, o.Protocol)
	set(&cfg.ClusterCommand, o.Cluster)
	set(&cfg.StatusAddr, o.StatusAddr)
	set(&cfg.LogLevel, o.LogLevel)
	if o.Concurrency > 0 {
		cfg.Elevation.Concurrency = o.Concurrency
	}
	if o.Console {
		cfg.LogConsole = true
	}
}

func inputs(cfg config.Config) processor.Inputs {
	in := func(name string) string { return filepath.Join(cfg.InputDir, name) }
	return processor.Inputs{
		OSMSkiAreas:    in(config.OSMSkiAreasFile),
		SkimapSkiAreas: optional(in(config.SkimapSkiAreasFile)),
		Runs:           in(config.RunsFile),
		Lifts:          in(config.LiftsFile),
		Sites:          in(config.SitesFile),
	}
}

// optional drops inputs that are absent so their pipeline source is empty.
func optional(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return path
}

func outputs(dir string) clustering.Set {
	return clustering.Set{
		SkiAreas: filepath.Join(dir, config.SkiAreasOutFile),
		Runs:     filepath.Join(dir, config.RunsFile),
		Lifts:    filepath.Join(dir, config.LiftsFile),
	}
}

func buildEnricher(ctx context.Context, cfg config.Config, log *slog.Logger) (*elevation.Enricher, func()) {
	ec := cfg.Elevation
	if ec.URL == "" {
		return nil, func() {}
	}

	closer := func() {}
	tiers := []cache.Elevations{cache.NewMemory(ec.CacheSize)}
	if cfg.Cache.RedisAddr != "" {
		store, err := redisstore.New(ctx, cfg.Cache.RedisAddr,
			redisstore.WithPoolSize(ec.Concurrency),
			redisstore.WithReadTimeout(cfg.Cache.OpTimeout),
			redisstore.WithWriteTimeout(cfg.Cache.OpTimeout),
		)
		if err != nil {
			log.WarnContext(ctx, "redis unavailable, using the in-process elevation cache only", "error", err)
		} else {
			tiers = append(tiers, cache.NewRemote(store, cfg.Cache.TTL, cfg.Cache.OpTimeout, log))
			closer = func() { _ = store.Close() }
		}
	}

	var limiter elevation.Limiter = elevation.Unlimited()
	if ec.Rate > 0 || ec.Jitter > 0 {
		limiter = elevation.NewRateLimiter(ec.Rate, ec.Burst, ec.Jitter)
	}

	client := elevation.NewClient(ec.URL, httpclient.NewOutbound(ec.RequestTimeout, ec.Concurrency))
	fetcher := elevation.NewFetcher(client,
		elevation.WithCache(cache.NewTiered(tiers...)),
		elevation.WithLimiter(limiter),
		elevation.WithThrottle(elevation.NewThrottle(ec.InitialBackoff, ec.MaxBackoff)),
		elevation.WithBudget(ec.RetryBudget),
		elevation.WithRetryInterval(ec.InitialBackoff, ec.MaxBackoff),
		elevation.WithProtocol(elevation.Protocol(ec.Protocol)),
		elevation.WithFetcherLogger(log),
	)
	return elevation.NewEnricher(fetcher, ec.ProfileResolution, log), closer
}

// summaryPrefixes selects the run counters worth a final log line.
var summaryPrefixes = []string{"processor_features", "elevation_", "cache_op"}

func logSummary(ctx context.Context, log *slog.Logger, prov *metrics.Provider) {
	sums, err := prov.Gather(summaryPrefixes...)
	if err != nil {
		log.WarnContext(ctx, "metrics summary unavailable", "error", err)
		return
	}
	names := slices.Sorted(maps.Keys(sums))
	attrs := make([]any, 0, 2*len(names))
	for _, n := range names {
		attrs = append(attrs, n, sums[n])
	}
	log.InfoContext(ctx, "run metrics", attrs...)
}

func buildNotifier(cfg config.Config, log *slog.Logger) notify.Notifier {
	if len(cfg.Notify.Brokers) == 0 {
		return notify.Noop{}
	}
	pub, err := notify.NewPublisher(cfg.Notify.Brokers, cfg.Notify.Topic)
	if err != nil {
		log.Warn("kafka unavailable, completion events disabled", "error", err)
		return notify.Noop{}
	}
	return pub
}

func completedEvent(runID string, results []processor.Result) notify.Event {
	cats := make([]notify.CategoryCounts, 0, len(results))
	for _, r := range results {
		c := notify.CategoryCounts{
			Category:   r.Category,
			In:         r.In,
			Out:        r.Out,
			Dropped:    r.Dropped,
			DurationMS: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			c.Error = r.Err.Error()
		}
		cats = append(cats, c)
	}
	return notify.NewCompleted(runID, cats, time.Now())
}
