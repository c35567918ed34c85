// Package geojsonagg normalizes geometries into comparable digests used to detect
// duplicate features coming from overlapping extracts.
package geojsonagg

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

const DefaultGeomPrecision = 7

var ErrUnsupportedGeometry = errors.New("unsupported geometry")

type HashOptions struct {
	Precision int
	// Directed keeps line direction significant, used for oneway runs.
	Directed bool
}

// Vertex is a 2-D position rounded to the hash precision. Elevation is ignored.
type Vertex [2]float64

func RoundVertex(p model.Position, precision int) Vertex {
	return Vertex{roundFloat(p[0], precision), roundFloat(p[1], precision)}
}

func compareVertex(a, b Vertex) int {
	if c := cmp.Compare(a[0], b[0]); c != 0 {
		return c
	}
	return cmp.Compare(a[1], b[1])
}

// GeometryHash digests the normalized geometry: coordinates are rounded, polygon
// rings oriented and rotated to a canonical start, multi-part members sorted and
// undirected lines flipped so both directions hash the same.
func GeometryHash(g model.Geometry, opts HashOptions) (uint64, error) {
	if opts.Precision <= 0 {
		opts.Precision = DefaultGeomPrecision
	}
	switch g.Type {
	case model.Point, model.LineString, model.MultiLineString, model.Polygon, model.MultiPolygon:
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.Type)
	}
	if g.VertexCount() == 0 {
		return 0, model.ErrEmptyGeometry
	}
	h := hasher{d: xxhash.New()}
	_, _ = h.d.WriteString(string(g.Type))
	switch g.Type {
	case model.Point:
		h.line([]Vertex{RoundVertex(g.Point, opts.Precision)})
	case model.LineString:
		h.line(normalizeLine(g.Line, opts))
	case model.MultiLineString:
		parts := make([][]Vertex, 0, len(g.Rings))
		for _, l := range g.Rings {
			parts = append(parts, normalizeLine(l, opts))
		}
		slices.SortFunc(parts, compareLines)
		h.lines(parts)
	case model.Polygon:
		h.lines(normalizePolygon(g.Rings, opts.Precision))
	case model.MultiPolygon:
		polys := make([][][]Vertex, 0, len(g.Polys))
		for _, p := range g.Polys {
			polys = append(polys, normalizePolygon(p, opts.Precision))
		}
		slices.SortFunc(polys, func(a, b [][]Vertex) int {
			return slices.CompareFunc(a, b, compareLines)
		})
		h.count(len(polys))
		for _, p := range polys {
			h.lines(p)
		}
	}
	return h.d.Sum64(), nil
}

func normalizeLine(l []model.Position, opts HashOptions) []Vertex {
	out := roundLine(l, opts.Precision)
	if !opts.Directed && len(out) > 1 && compareVertex(out[len(out)-1], out[0]) < 0 {
		slices.Reverse(out)
	}
	return out
}

func normalizePolygon(rings [][]model.Position, precision int) [][]Vertex {
	out := make([][]Vertex, len(rings))
	for i, r := range rings {
		v := roundLine(r, precision)
		// outer ring counter-clockwise, holes clockwise
		if isCCW(v) != (i == 0) {
			slices.Reverse(v)
		}
		out[i] = rotateRing(v)
	}
	if len(out) > 1 {
		slices.SortFunc(out[1:], compareLines)
	}
	return out
}

// rotateRing starts a closed ring at its smallest vertex.
func rotateRing(r []Vertex) []Vertex {
	if len(r) < 2 || r[0] != r[len(r)-1] {
		return r
	}
	open := r[:len(r)-1]
	lo := 0
	for i := range open {
		if compareVertex(open[i], open[lo]) < 0 {
			lo = i
		}
	}
	out := make([]Vertex, 0, len(r))
	out = append(out, open[lo:]...)
	out = append(out, open[:lo]...)
	return append(out, out[0])
}

func roundLine(l []model.Position, precision int) []Vertex {
	out := make([]Vertex, len(l))
	for i, p := range l {
		out[i] = RoundVertex(p, precision)
	}
	return out
}

func compareLines(a, b []Vertex) int { return slices.CompareFunc(a, b, compareVertex) }

func roundFloat(x float64, p int) float64 {
	f := math.Pow(10, float64(p))
	r := math.Round(x*f) / f
	if r == 0 {
		// -0 and +0 must hash the same
		r = 0
	}
	return r
}

// returns true if the ring is counter-clockwise
func isCCW(r []Vertex) bool {
	var area float64
	for i := 0; i+1 < len(r); i++ {
		area += (r[i+1][0] - r[i][0]) * (r[i+1][1] + r[i][1])
	}
	return area < 0
}

type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func (h *hasher) count(n int) {
	binary.LittleEndian.PutUint64(h.buf[:], uint64(n))
	_, _ = h.d.Write(h.buf[:])
}

func (h *hasher) line(l []Vertex) {
	h.count(len(l))
	for _, v := range l {
		binary.LittleEndian.PutUint64(h.buf[:], math.Float64bits(v[0]))
		_, _ = h.d.Write(h.buf[:])
		binary.LittleEndian.PutUint64(h.buf[:], math.Float64bits(v[1]))
		_, _ = h.d.Write(h.buf[:])
	}
}

func (h *hasher) lines(ls [][]Vertex) {
	h.count(len(ls))
	for _, l := range ls {
		h.line(l)
	}
}
