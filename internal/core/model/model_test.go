package model

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestPosition_NaNElevationEncodesAsNull(t *testing.T) {
	b, err := json.Marshal(Position{7.5, 46.25, math.NaN()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "[7.5,46.25,null]" {
		t.Fatalf("got %s", b)
	}

	var p Position
	if err := json.Unmarshal(b, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(p) != 3 || !math.IsNaN(p[2]) {
		t.Fatalf("got %v want NaN elevation", p)
	}
}

func TestPosition_RejectsShortArrays(t *testing.T) {
	var p Position
	if err := json.Unmarshal([]byte("[1]"), &p); err == nil {
		t.Fatalf("expected error for one-element position")
	}
}

func TestGeometry_RoundTrip(t *testing.T) {
	cases := []string{
		`{"type":"Point","coordinates":[1,2]}`,
		`{"type":"LineString","coordinates":[[1,2],[3,4,5]]}`,
		`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`,
		`{"type":"MultiLineString","coordinates":[[[0,0],[1,1]],[[2,2],[3,3]]]}`,
		`{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}`,
		`{"type":"MultiPoint","coordinates":[[0,0],[1,1]]}`,
	}
	for _, in := range cases {
		var g Geometry
		if err := json.Unmarshal([]byte(in), &g); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		out, err := json.Marshal(g)
		if err != nil {
			t.Fatalf("marshal %s: %v", in, err)
		}
		if string(out) != in {
			t.Fatalf("round trip\n got %s\nwant %s", out, in)
		}
	}
}

func TestGeometry_CloneDoesNotAlias(t *testing.T) {
	g := NewPolygon([][]Position{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	c := g.Clone()
	c.Rings[0][0][0] = 9
	if g.Rings[0][0][0] != 0 {
		t.Fatalf("clone shares positions with the original")
	}
}

func TestGeometry_VertexCount(t *testing.T) {
	cases := []struct {
		g    Geometry
		want int
	}{
		{NewPoint(Position{0, 0}), 1},
		{NewLineString([]Position{{0, 0}, {1, 1}}), 2},
		{NewPolygon([][]Position{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}), 4},
		{NewMultiPolygon([][][]Position{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, {{{2, 2}, {3, 2}, {3, 3}, {2, 2}}}}), 8},
		{Geometry{}, 0},
	}
	for i, c := range cases {
		if got := c.g.VertexCount(); got != c.want {
			t.Fatalf("case %d: got %d want %d", i, got, c.want)
		}
	}
}

func TestFeature_NullableFieldsEncodeAsNull(t *testing.T) {
	f := NewFeature(NewPoint(Position{1, 2}), RunProperties{
		Type:   KindRun,
		ID:     "way/1",
		Uses:   []RunUse{RunUseDownhill},
		Status: StatusOperating,
		ElevationProfile: &ElevationProfile{
			Heights:    Heights{1200, math.NaN()},
			Resolution: 25,
		},
	})
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"name":null`, `"difficulty":null`, `"heights":[1200,null]`, `"uses":["downhill"]`} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %s in %s", want, s)
		}
	}
}
