package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/skidata-processor/internal/core/config"
	"github.com/mohammed-shakir/skidata-processor/internal/metrics"
	"github.com/mohammed-shakir/skidata-processor/internal/processor"
)

func TestOptionsOverrideConfig(t *testing.T) {
	cfg := config.FromEnv()
	Options{Input: "/in", Concurrency: 3, Protocol: "batch", Console: true}.apply(&cfg)
	if cfg.InputDir != "/in" || cfg.Elevation.Concurrency != 3 || cfg.Elevation.Protocol != "batch" || !cfg.LogConsole {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	before := cfg.OutputDir
	Options{}.apply(&cfg)
	if cfg.OutputDir != before {
		t.Fatalf("empty options must not clear config")
	}
}

func TestInputsSkipMissingSkimap(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{InputDir: dir}
	if got := inputs(cfg); got.SkimapSkiAreas != "" {
		t.Fatalf("missing skimap file should be skipped, got %q", got.SkimapSkiAreas)
	}
	if err := os.WriteFile(filepath.Join(dir, config.SkimapSkiAreasFile), nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := inputs(cfg); got.SkimapSkiAreas == "" || got.Runs != filepath.Join(dir, config.RunsFile) {
		t.Fatalf("unexpected inputs %+v", got)
	}
}

func TestCompletedEventCarriesCounts(t *testing.T) {
	ev := completedEvent("run-9", []processor.Result{
		{Category: processor.CategoryRuns, In: 5, Out: 4, Dropped: 1, Duration: 2 * time.Second},
		{Category: processor.CategoryLifts, Err: errors.New("open lifts: missing")},
	})
	if ev.RunID != "run-9" || ev.Success || len(ev.Categories) != 2 {
		t.Fatalf("event=%+v", ev)
	}
	if c := ev.Categories[0]; c.In != 5 || c.DurationMS != 2000 {
		t.Fatalf("runs counts=%+v", c)
	}
}

func TestBuildEnricherDisabledWithoutURL(t *testing.T) {
	e, closeFn := buildEnricher(t.Context(), config.Config{}, nil)
	defer closeFn()
	if e != nil {
		t.Fatalf("enricher should be nil without an elevation url")
	}
}

func TestBuildEnricherWithRedisTier(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := config.FromEnv()
	cfg.Elevation.URL = "http://127.0.0.1:1"
	cfg.Cache.RedisAddr = mr.Addr()
	e, closeFn := buildEnricher(t.Context(), cfg, slog.New(slog.DiscardHandler))
	defer closeFn()
	if e == nil {
		t.Fatalf("expected an enricher")
	}
}

func TestLogSummaryReportsRunCounters(t *testing.T) {
	prov := metrics.Init(metrics.Config{})
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "elevation_lookups_total", Help: "x"})
	prov.Registerer().MustRegister(c)
	c.Add(7)

	var buf bytes.Buffer
	logSummary(t.Context(), slog.New(slog.NewJSONHandler(&buf, nil)), prov)
	out := buf.String()
	if !strings.Contains(out, `"elevation_lookups_total":7`) {
		t.Fatalf("summary missing counter: %s", out)
	}
	if strings.Contains(out, "go_goroutines") {
		t.Fatalf("runtime collectors should be filtered: %s", out)
	}
}
