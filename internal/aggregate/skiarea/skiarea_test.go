package skiarea

import (
	"reflect"
	"slices"
	"testing"

	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

func osmObj(id string, mut func(*model.SkiAreaProperties)) Object {
	return obj(id, model.Source{Type: model.SourceOpenStreetMap, ID: id}, mut)
}

func skimapObj(id string, mut func(*model.SkiAreaProperties)) Object {
	return obj(id, model.Source{Type: model.SourceSkimap, ID: id}, mut)
}

func obj(id string, src model.Source, mut func(*model.SkiAreaProperties)) Object {
	p := model.SkiAreaProperties{
		Type:          model.KindSkiArea,
		ID:            id,
		Activities:    []model.Activity{},
		RunConvention: model.ConventionEurope,
		Sources:       []model.Source{src},
		Location:      &model.Location{CountryCode: "CH"},
	}
	if mut != nil {
		mut(&p)
	}
	return FromFeature(model.NewFeature(model.NewPoint(model.Position{7.5, 46.1}), p))
}

func TestMerge_NoDuplicatesIsIdentity(t *testing.T) {
	a := osmObj("way/1", func(p *model.SkiAreaProperties) {
		p.Name = model.Ptr("Alpha")
		p.Websites = []string{"a.com"}
	})
	got := Merge(a, nil)
	if !reflect.DeepEqual(got, a) {
		t.Fatalf("merge with no duplicates changed the record:\n got %+v\nwant %+v", got, a)
	}
}

func TestMerge_ActivitiesAreSetUnionIndependentOfOrder(t *testing.T) {
	a := osmObj("way/1", func(p *model.SkiAreaProperties) { p.Activities = []model.Activity{model.ActivityDownhill} })
	b := skimapObj("10", func(p *model.SkiAreaProperties) { p.Activities = []model.Activity{model.ActivityNordic} })
	c := skimapObj("11", func(p *model.SkiAreaProperties) {
		p.Activities = []model.Activity{model.ActivityNordic, model.ActivityBackcountry}
	})

	m1 := Merge(a, []Object{b, c})
	m2 := Merge(a, []Object{c, b})

	want := []model.Activity{model.ActivityBackcountry, model.ActivityDownhill, model.ActivityNordic}
	for _, m := range []Object{m1, m2} {
		got := slices.Clone(m.Properties.Activities)
		slices.Sort(got)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("activities=%v want %v", got, want)
		}
	}
}

func TestMerge_GeneratedIsLogicalAnd(t *testing.T) {
	gen := func(p *model.SkiAreaProperties) { p.Generated = true }
	a := osmObj("way/1", gen)
	b := skimapObj("10", gen)
	if got := Merge(a, []Object{b}).Properties.Generated; !got {
		t.Fatalf("generated=%v want true", got)
	}
	c := skimapObj("11", nil)
	if got := Merge(a, []Object{b, c}).Properties.Generated; got {
		t.Fatalf("generated=%v want false", got)
	}
}

func TestMerge_IdentityFieldsComeFromPrimary(t *testing.T) {
	a := osmObj("way/1", nil)
	b := skimapObj("10", nil)
	b.Geometry = model.NewPolygon([][]model.Position{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	b.IsPolygon = true
	b.SkiAreas = []model.SkiAreaRef{{ID: "x"}}

	got := Merge(a, []Object{b})
	if got.ID != a.ID || got.Key != a.Key || got.Source != a.Source || got.Type != a.Type {
		t.Fatalf("identity changed: %+v", got)
	}
	if got.IsPolygon || got.Geometry.Type != model.Point || len(got.SkiAreas) != 0 {
		t.Fatalf("geometry/membership must come from primary: %+v", got)
	}
}

func TestMerge_ScalarsAndProvenance(t *testing.T) {
	a := osmObj("way/1", func(p *model.SkiAreaProperties) {
		p.Name = model.Ptr("")
		p.Websites = []string{"https://alpha.ch"}
		p.Statistics = []byte(`{"runs":{}}`)
	})
	b := skimapObj("10", func(p *model.SkiAreaProperties) {
		p.Name = model.Ptr("Alpha")
		p.Status = model.Ptr(model.StatusOperating)
		p.Websites = []string{"http://www.alpha.ch/"}
		p.RunConvention = model.ConventionNorthAmerica
		p.Sources = append(p.Sources, model.Source{Type: model.SourceOpenStreetMap, ID: "way/1"})
	})

	got := Merge(a, []Object{b}).Properties
	if got.Name == nil || *got.Name != "Alpha" {
		t.Fatalf("name=%v want Alpha", got.Name)
	}
	if got.Status == nil || *got.Status != model.StatusOperating {
		t.Fatalf("status=%v want operating", got.Status)
	}
	if !reflect.DeepEqual(got.Websites, []string{"https://alpha.ch"}) {
		t.Fatalf("websites=%v", got.Websites)
	}
	wantSources := []model.Source{
		{Type: model.SourceOpenStreetMap, ID: "way/1"},
		{Type: model.SourceSkimap, ID: "10"},
	}
	if !reflect.DeepEqual(got.Sources, wantSources) {
		t.Fatalf("sources=%v want %v", got.Sources, wantSources)
	}
	if got.RunConvention != model.ConventionEurope {
		t.Fatalf("runConvention=%v want primary's", got.RunConvention)
	}
	if string(got.Statistics) != `{"runs":{}}` {
		t.Fatalf("statistics=%s want primary's", got.Statistics)
	}
	if got.Location != nil {
		t.Fatalf("location must be reset after merge, got %+v", got.Location)
	}
}

func TestMerge_NameAndStatusAreFoldOrderSensitive(t *testing.T) {
	a := skimapObj("10", func(p *model.SkiAreaProperties) { p.Name = model.Ptr("First") })
	b := osmObj("way/1", func(p *model.SkiAreaProperties) {
		p.Name = model.Ptr("Second")
		p.Status = model.Ptr(model.StatusOperating)
	})

	ab := Merge(a, []Object{b}).Properties
	ba := Merge(b, []Object{a}).Properties
	if *ab.Name != "First" || *ba.Name != "Second" {
		t.Fatalf("names ab=%q ba=%q", *ab.Name, *ba.Name)
	}
	if *ab.Status != model.StatusOperating || *ba.Status != model.StatusOperating {
		t.Fatalf("status should be filled either way")
	}
}

func TestSelectPrimary_PrefersOpenStreetMapThenNonGenerated(t *testing.T) {
	objs := []Object{
		skimapObj("10", nil),
		osmObj("way/1", func(p *model.SkiAreaProperties) { p.Generated = true }),
		osmObj("way/2", nil),
	}
	if got := SelectPrimary(objs); got != 2 {
		t.Fatalf("primary=%d want 2", got)
	}
	if got := SelectPrimary(objs[:1]); got != 0 {
		t.Fatalf("primary=%d want 0", got)
	}
}

func TestKeyFor_SanitizesSeparators(t *testing.T) {
	if got := KeyFor("relation/123"); got != "relation-123" {
		t.Fatalf("key=%q", got)
	}
}
