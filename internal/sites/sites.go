// Package sites exposes OpenStreetMap ski-area site relations as a read-only
// lookup table. A site names its runs and lifts by membership; its boundary is
// only resolved later by the clustering stage.
package sites

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

type memberKey struct {
	typ osm.Type
	ref int64
}

type site struct {
	id       string
	name     *string
	websites []string
}

// Provider is built once before the pipelines start and is safe for concurrent reads.
type Provider struct {
	sites    []site
	byMember map[memberKey][]model.SkiAreaRef
}

func Empty() *Provider {
	return &Provider{byMember: map[memberKey][]model.SkiAreaRef{}}
}

// Load decodes an Overpass JSON document and keeps type=site, site=piste relations.
func Load(r io.Reader) (*Provider, error) {
	var doc osm.OSM
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode site relations: %w", err)
	}
	return New(doc.Relations), nil
}

func New(relations osm.Relations) *Provider {
	p := Empty()
	for _, rel := range relations {
		if rel.Tags.Find("type") != "site" || rel.Tags.Find("site") != "piste" {
			continue
		}
		s := site{
			id:       fmt.Sprintf("%s/%d", osm.TypeRelation, rel.ID),
			websites: make([]string, 0),
		}
		if n := strings.TrimSpace(rel.Tags.Find("name")); n != "" {
			s.name = &n
		}
		if w := strings.TrimSpace(rel.Tags.Find("website")); w != "" {
			s.websites = append(s.websites, w)
		}
		p.sites = append(p.sites, s)

		ref := model.SkiAreaRef{ID: s.id, Name: s.name}
		for _, m := range rel.Members {
			k := memberKey{typ: m.Type, ref: m.Ref}
			if hasRef(p.byMember[k], s.id) {
				continue
			}
			p.byMember[k] = append(p.byMember[k], ref)
		}
	}
	return p
}

func hasRef(refs []model.SkiAreaRef, id string) bool {
	for _, r := range refs {
		if r.ID == id {
			return true
		}
	}
	return false
}

func (p *Provider) Len() int { return len(p.sites) }

// SkiAreasFor returns the sites a member belongs to. The result must not be modified.
func (p *Provider) SkiAreasFor(memberType osm.Type, memberID int64) []model.SkiAreaRef {
	return p.byMember[memberKey{typ: memberType, ref: memberID}]
}

// SkiAreasForFeature resolves a feature id such as "way/123".
func (p *Provider) SkiAreasForFeature(featureID string) []model.SkiAreaRef {
	typ, ref, ok := strings.Cut(featureID, "/")
	if !ok {
		return nil
	}
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return nil
	}
	return p.SkiAreasFor(osm.Type(typ), id)
}

// SeedFeatures lazily yields one placeholder ski area per site. The geometry is a
// point at the origin until clustering replaces it.
func (p *Provider) SeedFeatures() iter.Seq[model.SkiAreaFeature] {
	return func(yield func(model.SkiAreaFeature) bool) {
		for _, s := range p.sites {
			status := model.StatusOperating
			f := model.NewFeature(model.NewPoint(model.Position{0, 0}), model.SkiAreaProperties{
				Type:          model.KindSkiArea,
				ID:            s.id,
				Name:          s.name,
				Activities:    []model.Activity{},
				RunConvention: model.ConventionEurope,
				Sources:       []model.Source{{Type: model.SourceOpenStreetMap, ID: s.id}},
				Status:        &status,
				Websites:      append([]string(nil), s.websites...),
				Placeholder:   true,
			})
			if !yield(f) {
				return
			}
		}
	}
}
