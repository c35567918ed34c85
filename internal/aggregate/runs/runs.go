// Package runs collapses raw run segments into canonical runs.
//
// The accumulator buffers the whole stream. Segments whose normalized geometry is
// equal are merged first; line segments that share an identity and meet end to
// end at a non-branching point are then chained into one line.
package runs

import (
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/mohammed-shakir/skidata-processor/internal/aggregate/geojsonagg"
	"github.com/mohammed-shakir/skidata-processor/internal/aggregate/props"
	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

type Stats struct {
	In         int
	Duplicates int
	Joined     int
	Dropped    int
	Out        int
}

type Option func(*Accumulator)

func WithLogger(l *slog.Logger) Option {
	return func(a *Accumulator) {
		if l != nil {
			a.log = l
		}
	}
}

func WithPrecision(p int) Option {
	return func(a *Accumulator) {
		if p > 0 {
			a.precision = p
		}
	}
}

type Accumulator struct {
	log       *slog.Logger
	precision int
	runs      []model.RunFeature
	byHash    map[uint64]int
	stats     Stats
}

func NewAccumulator(opts ...Option) *Accumulator {
	a := &Accumulator{
		log:       slog.Default(),
		precision: geojsonagg.DefaultGeomPrecision,
		byHash:    make(map[uint64]int),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Accumulator) Add(f model.RunFeature) {
	a.stats.In++
	g, ok := clean(f.Geometry, a.precision)
	if !ok {
		a.stats.Dropped++
		return
	}
	f.Geometry = g

	h, err := geojsonagg.GeometryHash(g, geojsonagg.HashOptions{
		Precision: a.precision,
		Directed:  isOneway(f.Properties),
	})
	if err != nil {
		if !errors.Is(err, model.ErrEmptyGeometry) {
			a.log.Warn("dropping run with unhashable geometry", "id", f.Properties.ID, "error", err)
		}
		a.stats.Dropped++
		return
	}
	if i, ok := a.byHash[h]; ok {
		a.runs[i].Properties = mergeProperties(a.runs[i].Properties, f.Properties)
		a.stats.Duplicates++
		return
	}
	a.byHash[h] = len(a.runs)
	a.runs = append(a.runs, f)
}

// Flush joins split segments and returns the canonical runs in first-seen order.
// The accumulator is empty afterwards.
func (a *Accumulator) Flush() []model.RunFeature {
	out := a.join(a.runs)
	a.stats.Out = len(out)
	a.log.Debug("runs normalized",
		"in", a.stats.In,
		"duplicates", a.stats.Duplicates,
		"joined", a.stats.Joined,
		"dropped", a.stats.Dropped,
		"out", a.stats.Out,
	)
	a.runs = nil
	a.byHash = make(map[uint64]int)
	return out
}

func (a *Accumulator) Stats() Stats { return a.stats }

// mergeProperties folds d onto acc: first non-empty scalar wins, lists union and
// tri-state flags AND with unset treated as unknown.
func mergeProperties(acc, d model.RunProperties) model.RunProperties {
	acc.Uses = props.Unique(acc.Uses, d.Uses)
	acc.Name = props.FirstNonEmpty(acc.Name, d.Name)
	acc.Ref = props.FirstNonEmpty(acc.Ref, d.Ref)
	acc.Description = props.FirstNonEmpty(acc.Description, d.Description)
	acc.Difficulty = props.FirstNonEmpty(acc.Difficulty, d.Difficulty)
	acc.Grooming = props.FirstNonEmpty(acc.Grooming, d.Grooming)
	acc.Oneway = props.AndTri(acc.Oneway, d.Oneway)
	acc.Lit = props.AndTri(acc.Lit, d.Lit)
	acc.Gladed = props.AndTri(acc.Gladed, d.Gladed)
	acc.Patrolled = props.AndTri(acc.Patrolled, d.Patrolled)
	if acc.Status == "" {
		acc.Status = d.Status
	}
	acc.SkiAreas = props.MergeSkiAreaRefs(acc.SkiAreas, d.SkiAreas)
	acc.Sources = props.MergeSources(acc.Sources, d.Sources)
	acc.Websites = props.Unique(acc.Websites, d.Websites)
	acc.ElevationProfile = props.FirstSet(acc.ElevationProfile, d.ElevationProfile)
	return acc
}

func isOneway(p model.RunProperties) bool { return p.Oneway != nil && *p.Oneway }

// identityKey groups segments that may be pieces of one logical run.
func identityKey(p model.RunProperties) string {
	uses := make([]string, 0, len(p.Uses))
	for _, u := range p.Uses {
		uses = append(uses, string(u))
	}
	slices.Sort(uses)
	oneway := "?"
	if p.Oneway != nil {
		oneway = "n"
		if *p.Oneway {
			oneway = "y"
		}
	}
	return strings.Join([]string{
		strings.Join(uses, ";"),
		deref(p.Name),
		deref(p.Ref),
		deref(p.Difficulty),
		deref(p.Grooming),
		oneway,
		string(p.Status),
	}, "\x1f")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
