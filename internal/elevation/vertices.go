package elevation

import (
	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

// vertices points at the 2-D positions of a cloned geometry. Ring closing
// positions are not looked up; they copy the elevation of their ring start.
type vertices struct {
	refs    []*model.Position
	closers [][2]*model.Position
}

func collect(g *model.Geometry) (*vertices, error) {
	v := &vertices{}
	switch g.Type {
	case model.Point:
		if g.Point == nil {
			return nil, model.ErrEmptyGeometry
		}
		v.add(&g.Point)
	case model.LineString:
		v.line(g.Line)
	case model.MultiLineString:
		for _, l := range g.Rings {
			v.line(l)
		}
	case model.Polygon:
		for _, r := range g.Rings {
			v.ring(r)
		}
	case model.MultiPolygon:
		for _, p := range g.Polys {
			for _, r := range p {
				v.ring(r)
			}
		}
	default:
		return nil, ErrUnsupportedGeometry
	}
	return v, nil
}

func (v *vertices) add(p *model.Position) {
	if !p.HasElevation() {
		v.refs = append(v.refs, p)
	}
}

func (v *vertices) line(l []model.Position) {
	for i := range l {
		v.add(&l[i])
	}
}

func (v *vertices) ring(r []model.Position) {
	n := len(r)
	if n > 1 && r[0].Equal2D(r[n-1]) {
		v.line(r[:n-1])
		if !r[n-1].HasElevation() {
			v.closers = append(v.closers, [2]*model.Position{&r[n-1], &r[0]})
		}
		return
	}
	v.line(r)
}

func (v *vertices) coordinates() []Coordinate {
	out := make([]Coordinate, len(v.refs))
	for i, p := range v.refs {
		out[i] = Coordinate{Lat: p.Lat(), Lng: p.Lng()}
	}
	return out
}

// apply writes elev[i] into refs[i]; elev holds at least len(refs) values.
func (v *vertices) apply(elev []float64) {
	for i, p := range v.refs {
		*p = append((*p)[:2:2], elev[i])
	}
	for _, c := range v.closers {
		closing, start := c[0], c[1]
		if start.HasElevation() {
			*closing = append((*closing)[:2:2], (*start)[2])
		}
	}
}
