package format

import (
	"strings"

	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/skidata-processor/internal/aggregate/props"
	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

var lifecyclePrefixes = []string{
	"proposed:", "planned:", "construction:", "disused:", "abandoned:",
	"demolished:", "removed:", "razed:", "was:",
}

var runUses = map[string]model.RunUse{
	"downhill":   model.RunUseDownhill,
	"nordic":     model.RunUseNordic,
	"skitour":    model.RunUseSkitour,
	"sled":       model.RunUseSled,
	"hike":       model.RunUseHike,
	"sleigh":     model.RunUseSleigh,
	"ice_skate":  model.RunUseIceSkate,
	"snow_park":  model.RunUseSnowPark,
	"playground": model.RunUsePlayground,
	"fatbike":    model.RunUseFatbike,
	"connection": model.RunUseConnection,
}

// Run formats an OpenStreetMap piste. Abandoned or lifecycle-prefixed pistes,
// unsupported piste types and point geometries are dropped.
func Run(r Raw) (model.RunFeature, bool) {
	if inactivePiste(r.Tags) {
		return model.RunFeature{}, false
	}
	uses := pisteUses(r.Tags.Find("piste:type"))
	if len(uses) == 0 {
		return model.RunFeature{}, false
	}
	g, ok := Geometry(r.Geometry)
	if !ok || g.Type == model.Point {
		return model.RunFeature{}, false
	}

	p := model.RunProperties{
		Type:        model.KindRun,
		ID:          r.ID,
		Uses:        uses,
		Name:        runName(r.Tags),
		Ref:         optString(r.Tags, "piste:ref", "ref"),
		Description: optString(r.Tags, "piste:description", "description"),
		Difficulty:  optString(r.Tags, "piste:difficulty"),
		Grooming:    optString(r.Tags, "piste:grooming"),
		Oneway:      optBool(r.Tags, "piste:oneway", "oneway"),
		Lit:         optBool(r.Tags, "piste:lit", "lit"),
		Gladed:      optBool(r.Tags, "piste:gladed", "gladed"),
		Patrolled:   optBool(r.Tags, "piste:patrolled", "patrolled"),
		Status:      model.StatusOperating,
		SkiAreas:    []model.SkiAreaRef{},
		Sources:     osmSource(r.ID),
		Websites:    websites(r.Tags),
	}
	return model.NewFeature(g, p), true
}

func inactivePiste(tags osm.Tags) bool {
	if strings.EqualFold(tags.Find("piste:abandoned"), "yes") {
		return true
	}
	for _, t := range tags {
		for _, prefix := range lifecyclePrefixes {
			if strings.HasPrefix(t.Key, prefix) && strings.HasPrefix(t.Key[len(prefix):], "piste:") {
				return true
			}
		}
	}
	return false
}

func pisteUses(v string) []model.RunUse {
	out := make([]model.RunUse, 0, 1)
	seen := make(map[model.RunUse]bool)
	for _, part := range strings.Split(v, ";") {
		u, ok := runUses[strings.TrimSpace(part)]
		if !ok || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// runName joins piste:name and its language variants. The generic name tags are
// only used when no piste-specific name exists.
func runName(tags osm.Tags) *string {
	names := make([]string, 0, 2)
	if v := strings.TrimSpace(tags.Find("piste:name")); v != "" {
		names = append(names, v)
	}
	names = append(names, prefixed(tags, "piste:name")...)
	if len(names) == 0 {
		if v := strings.TrimSpace(tags.Find("name")); v != "" {
			names = append(names, v)
		}
		names = append(names, prefixed(tags, "name")...)
	}
	if len(names) == 0 {
		return nil
	}
	s := strings.Join(props.Unique(names), ", ")
	return &s
}
