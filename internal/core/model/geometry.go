package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

type GeometryType string

const (
	Point           GeometryType = "Point"
	LineString      GeometryType = "LineString"
	Polygon         GeometryType = "Polygon"
	MultiLineString GeometryType = "MultiLineString"
	MultiPolygon    GeometryType = "MultiPolygon"
)

// Position is [lng, lat] or [lng, lat, ele]. A NaN elevation encodes as null.
type Position []float64

func (p Position) Lng() float64 { return p[0] }
func (p Position) Lat() float64 { return p[1] }

func (p Position) HasElevation() bool { return len(p) >= 3 }

func (p Position) Equal2D(o Position) bool {
	return len(p) >= 2 && len(o) >= 2 && p[0] == o[0] && p[1] == o[1]
}

func (p Position) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	b := make([]byte, 0, 16*len(p))
	b = append(b, '[')
	for i, v := range p {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendFloat(b, v)
	}
	return append(b, ']'), nil
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse position: %w", err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("position needs at least 2 values, got %d", len(raw))
	}
	out := make(Position, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	*p = out
	return nil
}

// Geometry holds one GeoJSON geometry. Exactly one coordinate field is populated
// for the supported kinds; other kinds keep their coordinates in Raw.
type Geometry struct {
	Type  GeometryType
	Point Position
	Line  []Position
	// Rings holds Polygon rings or MultiLineString parts.
	Rings [][]Position
	Polys [][][]Position
	Raw   json.RawMessage
}

var ErrEmptyGeometry = errors.New("empty geometry")

func NewPoint(p Position) Geometry               { return Geometry{Type: Point, Point: p} }
func NewLineString(l []Position) Geometry        { return Geometry{Type: LineString, Line: l} }
func NewPolygon(r [][]Position) Geometry         { return Geometry{Type: Polygon, Rings: r} }
func NewMultiLineString(r [][]Position) Geometry { return Geometry{Type: MultiLineString, Rings: r} }
func NewMultiPolygon(p [][][]Position) Geometry  { return Geometry{Type: MultiPolygon, Polys: p} }

func (g Geometry) IsPolygon() bool { return g.Type == Polygon || g.Type == MultiPolygon }

func (g Geometry) IsLine() bool { return g.Type == LineString || g.Type == MultiLineString }

func (g Geometry) coordinates() any {
	switch g.Type {
	case Point:
		return g.Point
	case LineString:
		return g.Line
	case Polygon, MultiLineString:
		return g.Rings
	case MultiPolygon:
		return g.Polys
	default:
		return g.Raw
	}
}

func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.Type == "" {
		return []byte("null"), nil
	}
	out := struct {
		Type        GeometryType `json:"type"`
		Coordinates any          `json:"coordinates"`
	}{Type: g.Type, Coordinates: g.coordinates()}
	return json.Marshal(out)
}

func (g *Geometry) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*g = Geometry{}
		return nil
	}
	var hdr struct {
		Type        GeometryType    `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(data, &hdr); err != nil {
		return fmt.Errorf("parse geometry: %w", err)
	}
	out := Geometry{Type: hdr.Type}
	var target any
	switch hdr.Type {
	case Point:
		target = &out.Point
	case LineString:
		target = &out.Line
	case Polygon, MultiLineString:
		target = &out.Rings
	case MultiPolygon:
		target = &out.Polys
	default:
		out.Raw = append(json.RawMessage(nil), hdr.Coordinates...)
		*g = out
		return nil
	}
	if err := json.Unmarshal(hdr.Coordinates, target); err != nil {
		return fmt.Errorf("parse %s coordinates: %w", hdr.Type, err)
	}
	*g = out
	return nil
}

// Clone deep-copies the coordinate arrays so positions are never shared.
func (g Geometry) Clone() Geometry {
	out := Geometry{Type: g.Type}
	if g.Point != nil {
		out.Point = clonePos(g.Point)
	}
	if g.Line != nil {
		out.Line = cloneLine(g.Line)
	}
	if g.Rings != nil {
		out.Rings = cloneRings(g.Rings)
	}
	if g.Polys != nil {
		out.Polys = make([][][]Position, len(g.Polys))
		for i, p := range g.Polys {
			out.Polys[i] = cloneRings(p)
		}
	}
	if g.Raw != nil {
		out.Raw = append(json.RawMessage(nil), g.Raw...)
	}
	return out
}

func clonePos(p Position) Position { return append(Position(nil), p...) }

func cloneLine(l []Position) []Position {
	out := make([]Position, len(l))
	for i, p := range l {
		out[i] = clonePos(p)
	}
	return out
}

func cloneRings(r [][]Position) [][]Position {
	out := make([][]Position, len(r))
	for i, l := range r {
		out[i] = cloneLine(l)
	}
	return out
}

// VertexCount counts every stored position, closing ring vertices included.
func (g Geometry) VertexCount() int {
	switch g.Type {
	case Point:
		if g.Point == nil {
			return 0
		}
		return 1
	case LineString:
		return len(g.Line)
	case Polygon, MultiLineString:
		n := 0
		for _, r := range g.Rings {
			n += len(r)
		}
		return n
	case MultiPolygon:
		n := 0
		for _, p := range g.Polys {
			for _, r := range p {
				n += len(r)
			}
		}
		return n
	default:
		return 0
	}
}
