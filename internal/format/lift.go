package format

import (
	"strconv"
	"strings"

	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

var ignoredAerialways = map[string]bool{
	"pylon":   true,
	"station": true,
	"goods":   true,
}

var lifecycleStatus = []struct {
	prefix string
	status model.Status
}{
	{"construction", model.StatusConstruction},
	{"disused", model.StatusDisused},
	{"abandoned", model.StatusAbandoned},
	{"proposed", model.StatusProposed},
	{"planned", model.StatusPlanned},
}

// Lift formats aerialways and funiculars. Lifecycle-prefixed tags set the status;
// demolished or removed lifts are dropped.
func Lift(r Raw) (model.LiftFeature, bool) {
	liftType, status, ok := liftKind(r.Tags)
	if !ok {
		return model.LiftFeature{}, false
	}
	g, ok := Geometry(r.Geometry)
	if !ok || !g.IsLine() {
		return model.LiftFeature{}, false
	}

	p := model.LiftProperties{
		Type:       model.KindLift,
		ID:         r.ID,
		LiftType:   liftType,
		Name:       optString(r.Tags, "name"),
		Ref:        optString(r.Tags, "ref"),
		Status:     status,
		Oneway:     optBool(r.Tags, "oneway"),
		Occupancy:  optInt(r.Tags, "aerialway:occupancy"),
		Capacity:   optInt(r.Tags, "aerialway:capacity"),
		Duration:   duration(r.Tags.Find("aerialway:duration")),
		Bubble:     optBool(r.Tags, "aerialway:bubble"),
		Heating:    optBool(r.Tags, "aerialway:heating"),
		Detachable: optBool(r.Tags, "aerialway:detachable"),
		SkiAreas:   []model.SkiAreaRef{},
		Sources:    osmSource(r.ID),
		Websites:   websites(r.Tags),
	}
	return model.NewFeature(g, p), true
}

func liftKind(tags osm.Tags) (string, model.Status, bool) {
	if t, ok := liftType(tags, ""); ok {
		return t, model.StatusOperating, true
	}
	for _, l := range lifecycleStatus {
		if t, ok := liftType(tags, l.prefix+":"); ok {
			return t, l.status, true
		}
	}
	return "", "", false
}

func liftType(tags osm.Tags, prefix string) (string, bool) {
	if v := strings.TrimSpace(tags.Find(prefix + "aerialway")); v != "" && v != "no" {
		return v, !ignoredAerialways[v]
	}
	if tags.Find(prefix+"railway") == "funicular" {
		return "funicular", true
	}
	return "", false
}

// duration parses aerialway:duration in minutes or mm:ss and returns seconds.
func duration(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if m, s, ok := strings.Cut(v, ":"); ok {
		mi, err1 := strconv.Atoi(m)
		si, err2 := strconv.Atoi(s)
		if err1 != nil || err2 != nil {
			return nil
		}
		return model.Ptr(mi*60 + si)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return model.Ptr(int(f * 60))
}
