// Package skiarea collapses duplicate ski-area records into one canonical record.
package skiarea

import (
	"strings"

	"github.com/mohammed-shakir/skidata-processor/internal/aggregate/props"
	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

// Object is the unit of ski-area merging. ID and Key never change across merges.
type Object struct {
	ID         string
	Key        string
	Geometry   model.Geometry
	IsPolygon  bool
	SkiAreas   []model.SkiAreaRef
	Source     model.SourceType
	Type       model.FeatureKind
	Activities []model.Activity
	Properties model.SkiAreaProperties
}

func FromFeature(f model.SkiAreaFeature) Object {
	p := f.Properties
	src := model.SourceOpenStreetMap
	if len(p.Sources) > 0 {
		src = p.Sources[0].Type
	}
	return Object{
		ID:         p.ID,
		Key:        KeyFor(p.ID),
		Geometry:   f.Geometry,
		IsPolygon:  f.Geometry.IsPolygon(),
		Source:     src,
		Type:       model.KindSkiArea,
		Activities: p.Activities,
		Properties: p,
	}
}

func (o Object) Feature() model.SkiAreaFeature {
	p := o.Properties
	p.ID = o.ID
	p.Type = o.Type
	p.Activities = o.Activities
	return model.NewFeature(o.Geometry, p)
}

// KeyFor derives a storage-safe key from a ski-area id.
func KeyFor(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range strings.TrimSpace(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Merge left-folds duplicates onto primary in order. Identity fields always come
// from primary; name and status are first-non-empty so fold order matters.
func Merge(primary Object, duplicates []Object) Object {
	if len(duplicates) == 0 {
		return primary
	}
	records := make([]props.WebsiteRecord, 0, len(duplicates)+1)
	records = append(records, websiteRecord(primary))

	out := primary
	for _, d := range duplicates {
		out = mergeOne(out, d)
		records = append(records, websiteRecord(d))
	}
	out.Properties.Websites = props.MergeWebsites(records)
	out.Properties.Location = nil
	return out
}

func mergeOne(acc, d Object) Object {
	acc.Activities = props.Unique(acc.Activities, d.Activities)
	p := acc.Properties
	p.Activities = props.Unique(p.Activities, d.Properties.Activities)
	p.Name = props.FirstNonEmpty(p.Name, d.Properties.Name)
	p.Generated = props.AndBool(p.Generated, d.Properties.Generated)
	p.Sources = props.MergeSources(p.Sources, d.Properties.Sources)
	p.Status = props.FirstSet(p.Status, d.Properties.Status)
	acc.Properties = p
	return acc
}

func websiteRecord(o Object) props.WebsiteRecord {
	return props.WebsiteRecord{Sources: o.Properties.Sources, Websites: o.Properties.Websites}
}

// SelectPrimary picks the fold target of a duplicate group: records sourced only
// from OpenStreetMap first, then non-generated records, then the earliest one.
func SelectPrimary(objs []Object) int {
	best := -1
	bestRank := -1
	for i, o := range objs {
		rank := 0
		if props.AllSourcesOf(o.Properties.Sources, model.SourceOpenStreetMap) {
			rank += 2
		}
		if !o.Properties.Generated {
			rank++
		}
		if rank > bestRank {
			best, bestRank = i, rank
		}
	}
	return best
}
