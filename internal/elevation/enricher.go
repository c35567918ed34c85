package elevation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
	"github.com/mohammed-shakir/skidata-processor/internal/core/observability"
)

// Enricher adds elevations to feature vertices and elevation profiles to runs.
type Enricher struct {
	resolver   Resolver
	resolution float64
	log        *slog.Logger
}

func NewEnricher(r Resolver, profileResolution float64, log *slog.Logger) *Enricher {
	if profileResolution <= 0 {
		profileResolution = DefaultProfileResolution
	}
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{resolver: r, resolution: profileResolution, log: log}
}

// EnrichRun never fails: on error the input is returned unchanged.
func (e *Enricher) EnrichRun(ctx context.Context, f model.RunFeature) model.RunFeature {
	out, err := e.TryEnrichRun(ctx, f)
	if err != nil {
		e.RunFailed(ctx, f, err)
		return f
	}
	return out
}

func (e *Enricher) EnrichLift(ctx context.Context, f model.LiftFeature) model.LiftFeature {
	out, err := e.TryEnrichLift(ctx, f)
	if err != nil {
		e.LiftFailed(ctx, f, err)
		return f
	}
	return out
}

// ErrResultMismatch reports a resolver that returned the wrong number of elevations.
var ErrResultMismatch = errors.New("elevation result count mismatch")

func (e *Enricher) resolve(ctx context.Context, coords []Coordinate) ([]float64, error) {
	elev, err := e.resolver.Resolve(ctx, coords)
	if err != nil {
		return nil, err
	}
	if len(elev) != len(coords) {
		return nil, fmt.Errorf("%w: got %d for %d coordinates", ErrResultMismatch, len(elev), len(coords))
	}
	return elev, nil
}

// RunFailed logs a run that kept its original geometry.
func (e *Enricher) RunFailed(ctx context.Context, f model.RunFeature, err error) {
	observability.IncEnrich("run", "failed")
	e.log.WarnContext(ctx, "run elevation enrichment failed", "id", f.Properties.ID, "error", err)
}

func (e *Enricher) LiftFailed(ctx context.Context, f model.LiftFeature, err error) {
	observability.IncEnrich("lift", "failed")
	e.log.WarnContext(ctx, "lift elevation enrichment failed", "id", f.Properties.ID, "error", err)
}

func (e *Enricher) TryEnrichRun(ctx context.Context, f model.RunFeature) (model.RunFeature, error) {
	g := f.Geometry.Clone()
	verts, err := collect(&g)
	if err != nil {
		return f, fmt.Errorf("run %s: %w", f.Properties.ID, err)
	}
	coords := verts.coordinates()

	var nProfile int
	if g.Type == model.LineString && f.Properties.ElevationProfile == nil {
		for _, p := range profilePoints(g.Line, e.resolution) {
			coords = append(coords, Coordinate{Lat: p.Lat(), Lng: p.Lon()})
			nProfile++
		}
	}
	if len(coords) == 0 {
		return f, nil
	}

	elev, err := e.resolve(ctx, coords)
	if err != nil {
		return f, fmt.Errorf("run %s: %w", f.Properties.ID, err)
	}
	verts.apply(elev)

	out := f
	out.Geometry = g
	if nProfile > 0 {
		heights := make(model.Heights, nProfile)
		copy(heights, elev[len(elev)-nProfile:])
		out.Properties.ElevationProfile = &model.ElevationProfile{Heights: heights, Resolution: e.resolution}
	}
	observability.IncEnrich("run", "ok")
	return out, nil
}

func (e *Enricher) TryEnrichLift(ctx context.Context, f model.LiftFeature) (model.LiftFeature, error) {
	g := f.Geometry.Clone()
	verts, err := collect(&g)
	if err != nil {
		return f, fmt.Errorf("lift %s: %w", f.Properties.ID, err)
	}
	coords := verts.coordinates()
	if len(coords) == 0 {
		return f, nil
	}
	elev, err := e.resolve(ctx, coords)
	if err != nil {
		return f, fmt.Errorf("lift %s: %w", f.Properties.ID, err)
	}
	verts.apply(elev)

	out := f
	out.Geometry = g
	observability.IncEnrich("lift", "ok")
	return out, nil
}
