package format

import (
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

var (
	japan        = orb.Bound{Min: orb.Point{122, 24}, Max: orb.Point{154, 46}}
	northAmerica = orb.Bound{Min: orb.Point{-170, 7}, Max: orb.Point{-50, 84}}
)

// RunConventionFor picks the difficulty colour convention from the location of
// the geometry's first vertex.
func RunConventionFor(g model.Geometry) model.RunConvention {
	p, ok := firstVertex(g)
	if !ok {
		return model.ConventionEurope
	}
	pt := orb.Point{p.Lng(), p.Lat()}
	switch {
	case japan.Contains(pt):
		return model.ConventionJapan
	case northAmerica.Contains(pt):
		return model.ConventionNorthAmerica
	default:
		return model.ConventionEurope
	}
}

func firstVertex(g model.Geometry) (model.Position, bool) {
	switch {
	case len(g.Point) >= 2:
		return g.Point, true
	case len(g.Line) > 0:
		return g.Line[0], true
	case len(g.Rings) > 0 && len(g.Rings[0]) > 0:
		return g.Rings[0][0], true
	case len(g.Polys) > 0 && len(g.Polys[0]) > 0 && len(g.Polys[0][0]) > 0:
		return g.Polys[0][0][0], true
	}
	return nil, false
}
