package logger

import (
	"context"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Service   string
	Component string
}

type ctxKey string

const (
	ctxRunID     ctxKey = "run_id"
	ctxCategory  ctxKey = "category"
	ctxComponent ctxKey = "component"
)

func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		runID = NewID()
	}
	return context.WithValue(ctx, ctxRunID, runID)
}

func RunID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRunID).(string)
	return s
}

// WithCategory tags log lines with the feature pipeline (skiAreas, runs, lifts).
func WithCategory(ctx context.Context, category string) context.Context {
	if category == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxCategory, category)
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxComponent, component)
}

func Component(ctx context.Context) string {
	s, _ := ctx.Value(ctxComponent).(string)
	return s
}

func NewID() string { return uuid.NewString() }

// Build returns the process logger. Level names follow zerolog ("debug",
// "info", "warn", "error"); unknown names fall back to info.
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	base := zerolog.New(out).Level(lvl)
	if cfg.SampleN > 1 && cfg.SampleN <= math.MaxUint32 {
		// warnings and errors are never sampled
		base = base.Sample(zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: uint32(cfg.SampleN)},
			InfoSampler:  &zerolog.BasicSampler{N: uint32(cfg.SampleN)},
		})
	}

	fields := base.With().Timestamp()
	if cfg.Service != "" {
		fields = fields.Str("service", cfg.Service)
	}
	if cfg.Component != "" {
		fields = fields.Str("component", cfg.Component)
	}
	return fields.Logger()
}

// FromContext decorates parent with the run, category and component found in ctx.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	if parent == nil {
		nop := zerolog.Nop()
		parent = &nop
	}
	fields := parent.With()
	for _, k := range []ctxKey{ctxRunID, ctxCategory, ctxComponent} {
		if s, _ := ctx.Value(k).(string); s != "" {
			fields = fields.Str(string(k), s)
		}
	}
	l := fields.Logger()
	return &l
}
