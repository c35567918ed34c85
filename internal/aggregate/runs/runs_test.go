package runs

import (
	"reflect"
	"testing"

	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

func run(id string, line []model.Position, mut func(*model.RunProperties)) model.RunFeature {
	p := model.RunProperties{
		Type:    model.KindRun,
		ID:      id,
		Uses:    []model.RunUse{model.RunUseDownhill},
		Status:  model.StatusOperating,
		Sources: []model.Source{{Type: model.SourceOpenStreetMap, ID: id}},
	}
	if mut != nil {
		mut(&p)
	}
	return model.NewFeature(model.NewLineString(line), p)
}

func named(name string) func(*model.RunProperties) {
	return func(p *model.RunProperties) { p.Name = model.Ptr(name) }
}

func flush(t *testing.T, in ...model.RunFeature) []model.RunFeature {
	t.Helper()
	acc := NewAccumulator()
	for _, f := range in {
		acc.Add(f)
	}
	return acc.Flush()
}

func TestAccumulator_CollapsesDuplicateGeometry(t *testing.T) {
	line := []model.Position{{7, 46}, {7.01, 46.01}, {7.02, 46.015}}
	rev := []model.Position{{7.02, 46.015}, {7.01, 46.01}, {7, 46}}

	a := run("way/1", line, func(p *model.RunProperties) {
		p.SkiAreas = []model.SkiAreaRef{{ID: "area-a"}}
		p.Lit = model.Ptr(true)
	})
	b := run("way/2", rev, func(p *model.RunProperties) {
		p.Name = model.Ptr("Blue")
		p.SkiAreas = []model.SkiAreaRef{{ID: "area-b"}}
		p.Lit = model.Ptr(false)
		p.Gladed = model.Ptr(true)
	})

	out := flush(t, a, b)
	if len(out) != 1 {
		t.Fatalf("len=%d want 1", len(out))
	}
	p := out[0].Properties
	if p.ID != "way/1" {
		t.Fatalf("id=%s want first-seen way/1", p.ID)
	}
	if p.Name == nil || *p.Name != "Blue" {
		t.Fatalf("name=%v want Blue", p.Name)
	}
	if got := []string{p.SkiAreas[0].ID, p.SkiAreas[1].ID}; !reflect.DeepEqual(got, []string{"area-a", "area-b"}) {
		t.Fatalf("skiAreas=%v", p.SkiAreas)
	}
	if len(p.Sources) != 2 {
		t.Fatalf("sources=%v", p.Sources)
	}
	if p.Lit == nil || *p.Lit {
		t.Fatalf("lit=%v want false", p.Lit)
	}
	if p.Gladed == nil || !*p.Gladed {
		t.Fatalf("gladed=%v want true (unset on one side is unknown)", p.Gladed)
	}
}

func TestAccumulator_OnewayDirectionMatters(t *testing.T) {
	oneway := func(p *model.RunProperties) { p.Oneway = model.Ptr(true) }
	a := run("way/1", []model.Position{{7, 46}, {7.01, 46.01}}, oneway)
	b := run("way/2", []model.Position{{7.01, 46.01}, {7, 46}}, oneway)

	if out := flush(t, a, b); len(out) != 2 {
		t.Fatalf("len=%d want 2 (opposite oneway runs are distinct)", len(out))
	}
}

func TestAccumulator_JoinsSplitSegments(t *testing.T) {
	a := run("way/1", []model.Position{{0, 0}, {0, 0.01}}, named("Gold"))
	b := run("way/2", []model.Position{{0, 0.02}, {0, 0.01}}, named("Gold"))
	c := run("way/3", []model.Position{{0, 0.02}, {0, 0.03}}, named("Gold"))

	acc := NewAccumulator()
	for _, f := range []model.RunFeature{b, c, a} {
		acc.Add(f)
	}
	out := acc.Flush()
	if len(out) != 1 {
		t.Fatalf("len=%d want 1", len(out))
	}
	if out[0].Properties.ID != "way/2" {
		t.Fatalf("id=%s want way/2", out[0].Properties.ID)
	}
	line := out[0].Geometry.Line
	if len(line) != 4 {
		t.Fatalf("vertices=%d want 4: %v", len(line), line)
	}
	ends := []model.Position{line[0], line[3]}
	if !(ends[0].Equal2D(model.Position{0, 0}) && ends[1].Equal2D(model.Position{0, 0.03})) &&
		!(ends[0].Equal2D(model.Position{0, 0.03}) && ends[1].Equal2D(model.Position{0, 0})) {
		t.Fatalf("unexpected chain endpoints %v", ends)
	}
	if got := acc.Stats().Joined; got != 2 {
		t.Fatalf("joined=%d want 2", got)
	}
}

func TestAccumulator_DistinctRunsStaySeparate(t *testing.T) {
	a := run("way/1", []model.Position{{0, 0}, {0, 0.01}}, named("Gold"))
	b := run("way/2", []model.Position{{0, 0.01}, {0, 0.02}}, named("Silver"))
	if out := flush(t, a, b); len(out) != 2 {
		t.Fatalf("len=%d want 2 (different names)", len(out))
	}
}

func TestAccumulator_BranchingEndpointStopsChaining(t *testing.T) {
	a := run("way/1", []model.Position{{0, 0}, {0, 0.01}}, named("Gold"))
	b := run("way/2", []model.Position{{0, 0.01}, {0, 0.02}}, named("Gold"))
	c := run("way/3", []model.Position{{0, 0.01}, {0.01, 0.02}}, named("Gold"))
	if out := flush(t, a, b, c); len(out) != 3 {
		t.Fatalf("len=%d want 3", len(out))
	}
}

func TestAccumulator_OnewayJoinsOnlyHeadToTail(t *testing.T) {
	oneway := func(p *model.RunProperties) { p.Oneway = model.Ptr(true) }
	a := run("way/1", []model.Position{{0, 0}, {0, 0.01}}, oneway)
	b := run("way/2", []model.Position{{0, 0.02}, {0, 0.01}}, oneway)
	if out := flush(t, a, b); len(out) != 2 {
		t.Fatalf("len=%d want 2 (segments point at each other)", len(out))
	}

	c := run("way/3", []model.Position{{0, 0.01}, {0, 0.02}}, oneway)
	out := flush(t, c, a)
	if len(out) != 1 {
		t.Fatalf("len=%d want 1", len(out))
	}
	want := []model.Position{{0, 0}, {0, 0.01}, {0, 0.02}}
	if !reflect.DeepEqual(out[0].Geometry.Line, want) {
		t.Fatalf("line=%v want %v", out[0].Geometry.Line, want)
	}
}

func TestAccumulator_DropsDegenerateGeometry(t *testing.T) {
	a := run("way/1", []model.Position{{0, 0}, {0, 0}}, nil)
	b := run("way/2", nil, nil)
	poly := run("way/3", nil, nil)
	poly.Geometry = model.NewPolygon([][]model.Position{{{0, 0}, {1, 1}, {0, 0}}})
	ok := run("way/4", []model.Position{{0, 0}, {1, 1}}, nil)

	acc := NewAccumulator()
	for _, f := range []model.RunFeature{a, b, poly, ok} {
		acc.Add(f)
	}
	out := acc.Flush()
	if len(out) != 1 || out[0].Properties.ID != "way/4" {
		t.Fatalf("out=%v want only way/4", out)
	}
	if got := acc.Stats().Dropped; got != 3 {
		t.Fatalf("dropped=%d want 3", got)
	}
}

func TestAccumulator_PolygonsPassThrough(t *testing.T) {
	ring := [][]model.Position{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	a := run("way/1", nil, nil)
	a.Geometry = model.NewPolygon(ring)
	b := run("way/2", []model.Position{{0, 0}, {1, 0}}, nil)

	out := flush(t, a, b)
	if len(out) != 2 || out[0].Geometry.Type != model.Polygon {
		t.Fatalf("out=%v", out)
	}
}

func TestAccumulator_InputIsNotAliased(t *testing.T) {
	line := []model.Position{{0, 0}, {0, 0.01}}
	out := flush(t, run("way/1", line, nil))
	out[0].Geometry.Line[0][0] = 42
	if line[0][0] != 0 {
		t.Fatalf("accumulator output shares positions with its input")
	}
}
