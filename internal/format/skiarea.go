package format

import (
	"strings"

	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

var skimapStatus = map[string]model.Status{
	"operating":    model.StatusOperating,
	"disused":      model.StatusDisused,
	"closed":       model.StatusDisused,
	"abandoned":    model.StatusAbandoned,
	"proposed":     model.StatusProposed,
	"planned":      model.StatusPlanned,
	"construction": model.StatusConstruction,
}

var activities = map[string]model.Activity{
	"downhill":    model.ActivityDownhill,
	"nordic":      model.ActivityNordic,
	"backcountry": model.ActivityBackcountry,
}

// OSMSkiArea formats a landuse=winter_sports area. Activities are filled in later
// from the runs and lifts the clustering stage assigns to it.
func OSMSkiArea(r Raw) (model.SkiAreaFeature, bool) {
	status := model.StatusOperating
	switch {
	case r.Tags.Find("landuse") == "winter_sports":
	case r.Tags.Find("disused:landuse") == "winter_sports":
		status = model.StatusDisused
	case r.Tags.Find("abandoned:landuse") == "winter_sports":
		status = model.StatusAbandoned
	default:
		return model.SkiAreaFeature{}, false
	}
	g, ok := Geometry(r.Geometry)
	if !ok || !(g.IsPolygon() || g.Type == model.Point) {
		return model.SkiAreaFeature{}, false
	}
	p := model.SkiAreaProperties{
		Type:          model.KindSkiArea,
		ID:            r.ID,
		Name:          optString(r.Tags, "name"),
		Activities:    []model.Activity{},
		RunConvention: RunConventionFor(g),
		Sources:       osmSource(r.ID),
		Status:        &status,
		Websites:      websites(r.Tags),
	}
	return model.NewFeature(g, p), true
}

// SkimapSkiArea formats a Skimap.org ski area record.
func SkimapSkiArea(r Raw) (model.SkiAreaFeature, bool) {
	g, ok := Geometry(r.Geometry)
	if !ok {
		return model.SkiAreaFeature{}, false
	}
	p := model.SkiAreaProperties{
		Type:          model.KindSkiArea,
		ID:            r.ID,
		Name:          optString(r.Tags, "name"),
		Activities:    skimapActivities(r.Props["activities"]),
		RunConvention: RunConventionFor(g),
		Sources:       []model.Source{{Type: model.SourceSkimap, ID: r.ID}},
		Websites:      websites(r.Tags),
	}
	if s, ok := skimapStatus[strings.ToLower(r.Tags.Find("status"))]; ok {
		p.Status = &s
	}
	if w := strings.TrimSpace(r.Tags.Find("official_website")); w != "" {
		p.Websites = append(p.Websites, w)
	}
	return model.NewFeature(g, p), true
}

func skimapActivities(v any) []model.Activity {
	out := make([]model.Activity, 0)
	list, _ := v.([]any)
	for _, item := range list {
		s, _ := item.(string)
		if a, ok := activities[strings.ToLower(s)]; ok {
			out = append(out, a)
		}
	}
	return out
}
