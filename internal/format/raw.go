// Package format turns raw provider features into canonical runs, lifts and ski areas.
//
// A formatter returns ok=false when a feature does not qualify. That is a drop,
// not an error.
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

// Raw is one upstream feature. Tags hold OpenStreetMap tags or Skimap.org attributes
// rendered as strings; Props keeps the original property values.
type Raw struct {
	ID       string
	Geometry orb.Geometry
	Tags     osm.Tags
	Props    geojson.Properties
}

// FromGeoJSON accepts both converter layouts: osmtogeojson style properties
// ({"type":"way","id":1,"tags":{...}}) and flat tag properties with the id on the feature.
func FromGeoJSON(f *geojson.Feature) (Raw, error) {
	if f == nil {
		return Raw{}, fmt.Errorf("nil feature")
	}
	r := Raw{Geometry: f.Geometry, Props: f.Properties}

	tagSrc := map[string]any(f.Properties)
	if nested, ok := f.Properties["tags"].(map[string]any); ok {
		tagSrc = nested
	}
	r.Tags = make(osm.Tags, 0, len(tagSrc))
	for k, v := range tagSrc {
		if s, ok := stringify(v); ok {
			r.Tags = append(r.Tags, osm.Tag{Key: k, Value: s})
		}
	}
	r.Tags.SortByKeyValue()

	r.ID = featureID(f)
	if r.ID == "" {
		return Raw{}, fmt.Errorf("feature has no id")
	}
	return r, nil
}

func featureID(f *geojson.Feature) string {
	typ, _ := f.Properties["type"].(string)
	switch osm.Type(typ) {
	case osm.TypeNode, osm.TypeWay, osm.TypeRelation:
		if id, ok := stringify(f.Properties["id"]); ok {
			return typ + "/" + id
		}
	}
	if id, ok := stringify(f.ID); ok {
		return id
	}
	if id, ok := stringify(f.Properties["id"]); ok {
		return id
	}
	return ""
}

func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// Geometry converts an orb geometry into the canonical representation.
func Geometry(g orb.Geometry) (model.Geometry, bool) {
	switch t := g.(type) {
	case orb.Point:
		return model.NewPoint(position(t)), true
	case orb.LineString:
		return model.NewLineString(line(t)), len(t) > 0
	case orb.Polygon:
		return model.NewPolygon(rings(t)), len(t) > 0
	case orb.MultiLineString:
		parts := make([][]model.Position, len(t))
		for i, l := range t {
			parts[i] = line(l)
		}
		return model.NewMultiLineString(parts), len(t) > 0
	case orb.MultiPolygon:
		polys := make([][][]model.Position, len(t))
		for i, p := range t {
			polys[i] = rings(p)
		}
		return model.NewMultiPolygon(polys), len(t) > 0
	default:
		return model.Geometry{}, false
	}
}

func position(p orb.Point) model.Position { return model.Position{p[0], p[1]} }

func line[L ~[]orb.Point](l L) []model.Position {
	out := make([]model.Position, len(l))
	for i, p := range l {
		out[i] = position(p)
	}
	return out
}

func rings(p orb.Polygon) [][]model.Position {
	out := make([][]model.Position, len(p))
	for i, r := range p {
		out[i] = line(r)
	}
	return out
}

func osmSource(id string) []model.Source {
	return []model.Source{{Type: model.SourceOpenStreetMap, ID: id}}
}

func optString(tags osm.Tags, keys ...string) *string {
	for _, k := range keys {
		if v := strings.TrimSpace(tags.Find(k)); v != "" {
			return &v
		}
	}
	return nil
}

// optBool parses yes/no. The first key carrying a recognised value wins.
func optBool(tags osm.Tags, keys ...string) *bool {
	for _, k := range keys {
		switch strings.ToLower(strings.TrimSpace(tags.Find(k))) {
		case "yes", "true", "1":
			return model.Ptr(true)
		case "no", "false", "0":
			return model.Ptr(false)
		}
	}
	return nil
}

func optInt(tags osm.Tags, key string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(tags.Find(key)))
	if err != nil {
		return nil
	}
	return &v
}

func websites(tags osm.Tags) []string {
	out := make([]string, 0)
	for _, k := range []string{"website", "contact:website", "url"} {
		for _, v := range strings.Split(tags.Find(k), ";") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// prefixed collects tags named base:<suffix>, sorted by suffix.
func prefixed(tags osm.Tags, base string) []string {
	var keys []string
	for _, t := range tags {
		if strings.HasPrefix(t.Key, base+":") && strings.TrimSpace(t.Value) != "" {
			keys = append(keys, t.Key)
		}
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimSpace(tags.Find(k)))
	}
	return out
}
