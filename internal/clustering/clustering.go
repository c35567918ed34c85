// Package clustering hands the processed files to the external clustering
// service, which assigns runs and lifts to ski areas.
package clustering

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Set names one GeoJSON file per category.
type Set struct {
	SkiAreas string
	Runs     string
	Lifts    string
}

func (s Set) paths() []string { return []string{s.SkiAreas, s.Runs, s.Lifts} }

// Files are the clustering inputs (Intermediate) and the paths it must produce (Final).
type Files struct {
	Intermediate Set
	Final        Set
}

type Clusterer interface {
	Cluster(ctx context.Context, files Files) error
}

// Noop stands in when no clustering stage is configured. Pipelines then write
// straight to the final paths.
type Noop struct{}

func (Noop) Cluster(context.Context, Files) error { return nil }

// Enabled reports whether c does real work.
func Enabled(c Clusterer) bool {
	if c == nil {
		return false
	}
	_, noop := c.(Noop)
	return !noop
}

// Command runs an external program with the six paths appended to Args:
// intermediate ski areas, runs, lifts, then final ski areas, runs, lifts.
type Command struct {
	Path string
	Args []string
	Log  *slog.Logger
}

// NewCommand splits a whitespace separated command line.
func NewCommand(cmdline string, log *slog.Logger) (*Command, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, errors.New("empty clustering command")
	}
	return &Command{Path: fields[0], Args: fields[1:], Log: log}, nil
}

func (c *Command) Cluster(ctx context.Context, files Files) error {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	for _, p := range files.Intermediate.paths() {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("clustering input: %w", err)
		}
	}

	args := append(append([]string(nil), c.Args...), files.Intermediate.paths()...)
	args = append(args, files.Final.paths()...)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	log.InfoContext(ctx, "clustering started", "command", c.Path)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("clustering command %s: %w: %s", c.Path, err, tail(stderr.String(), 512))
	}
	for _, p := range files.Final.paths() {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("clustering output: %w", err)
		}
	}
	log.InfoContext(ctx, "clustering finished", "duration", time.Since(start))
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
