package elevation

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

const DefaultProfileResolution = 25.0

// profilePoints samples a line every resolution meters along its geodesic
// length: the start of each chunk plus the final vertex.
func profilePoints(line []model.Position, resolution float64) []orb.Point {
	if len(line) < 2 || resolution <= 0 {
		return nil
	}
	pts := make([]orb.Point, len(line))
	for i, p := range line {
		pts[i] = orb.Point{p.Lng(), p.Lat()}
	}

	var total float64
	for i := 1; i < len(pts); i++ {
		total += geo.DistanceHaversine(pts[i-1], pts[i])
	}

	out := []orb.Point{pts[0]}
	next, travelled := resolution, 0.0
	for i := 1; i < len(pts) && next < total; i++ {
		a, b := pts[i-1], pts[i]
		seg := geo.DistanceHaversine(a, b)
		if seg == 0 {
			continue
		}
		bearing := geo.Bearing(a, b)
		for next < total && next <= travelled+seg {
			out = append(out, geo.PointAtBearingAndDistance(a, bearing, next-travelled))
			next += resolution
		}
		travelled += seg
	}
	return append(out, pts[len(pts)-1])
}
