package runs

import (
	"github.com/mohammed-shakir/skidata-processor/internal/aggregate/geojsonagg"
	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

// clean returns a copy of g without repeated consecutive vertices and without
// degenerate parts. ok is false when nothing usable remains.
func clean(g model.Geometry, precision int) (model.Geometry, bool) {
	g = g.Clone()
	switch g.Type {
	case model.Point:
		return g, len(g.Point) >= 2
	case model.LineString:
		g.Line = cleanLine(g.Line, precision)
		return g, len(g.Line) >= 2
	case model.MultiLineString:
		parts := make([][]model.Position, 0, len(g.Rings))
		for _, l := range g.Rings {
			if l = cleanLine(l, precision); len(l) >= 2 {
				parts = append(parts, l)
			}
		}
		switch len(parts) {
		case 0:
			return g, false
		case 1:
			return model.NewLineString(parts[0]), true
		}
		g.Rings = parts
		return g, true
	case model.Polygon:
		rings, ok := cleanPolygon(g.Rings, precision)
		g.Rings = rings
		return g, ok
	case model.MultiPolygon:
		polys := make([][][]model.Position, 0, len(g.Polys))
		for _, p := range g.Polys {
			if rings, ok := cleanPolygon(p, precision); ok {
				polys = append(polys, rings)
			}
		}
		switch len(polys) {
		case 0:
			return g, false
		case 1:
			return model.NewPolygon(polys[0]), true
		}
		g.Polys = polys
		return g, true
	default:
		return g, true
	}
}

func cleanLine(l []model.Position, precision int) []model.Position {
	out := make([]model.Position, 0, len(l))
	var prev geojsonagg.Vertex
	for _, p := range l {
		if len(p) < 2 {
			continue
		}
		v := geojsonagg.RoundVertex(p, precision)
		if len(out) > 0 && v == prev {
			continue
		}
		out = append(out, p)
		prev = v
	}
	return out
}

// cleanPolygon drops degenerate holes; a degenerate outer ring drops the polygon.
func cleanPolygon(rings [][]model.Position, precision int) ([][]model.Position, bool) {
	if len(rings) == 0 {
		return rings, false
	}
	out := make([][]model.Position, 0, len(rings))
	for i, r := range rings {
		r = cleanLine(r, precision)
		if len(r) < 4 {
			if i == 0 {
				return rings, false
			}
			continue
		}
		out = append(out, r)
	}
	return out, true
}
