// Package model defines the canonical ski-data types shared across the processor.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

type SourceType string

const (
	SourceOpenStreetMap SourceType = "openstreetmap"
	SourceSkimap        SourceType = "skimap.org"
)

type Source struct {
	Type SourceType `json:"type"`
	ID   string     `json:"id"`
}

type Activity string

const (
	ActivityDownhill    Activity = "downhill"
	ActivityNordic      Activity = "nordic"
	ActivityBackcountry Activity = "backcountry"
)

type Status string

const (
	StatusOperating    Status = "operating"
	StatusDisused      Status = "disused"
	StatusAbandoned    Status = "abandoned"
	StatusProposed     Status = "proposed"
	StatusPlanned      Status = "planned"
	StatusConstruction Status = "construction"
)

type FeatureKind string

const (
	KindRun     FeatureKind = "run"
	KindLift    FeatureKind = "lift"
	KindSkiArea FeatureKind = "skiArea"
)

type RunConvention string

const (
	ConventionEurope       RunConvention = "europe"
	ConventionJapan        RunConvention = "japan"
	ConventionNorthAmerica RunConvention = "north_america"
)

// SkiAreaRef is a membership reference from a run or lift to a ski area.
type SkiAreaRef struct {
	ID   string  `json:"id"`
	Name *string `json:"name,omitempty"`
}

// Heights holds sampled elevations; unknown samples are NaN and encode as null.
type Heights []float64

func (h Heights) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}
	var b bytes.Buffer
	b.WriteByte('[')
	for i, v := range h {
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(appendFloat(nil, v))
	}
	b.WriteByte(']')
	return b.Bytes(), nil
}

func (h *Heights) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse heights: %w", err)
	}
	if raw == nil {
		*h = nil
		return nil
	}
	out := make(Heights, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	*h = out
	return nil
}

type ElevationProfile struct {
	Heights    Heights `json:"heights"`
	Resolution float64 `json:"resolution"`
}

type Location struct {
	CountryCode string `json:"iso3166_1Alpha2,omitempty"`
	RegionCode  string `json:"iso3166_2,omitempty"`
	Locality    string `json:"locality,omitempty"`
}

type RunProperties struct {
	Type             FeatureKind       `json:"type"`
	ID               string            `json:"id"`
	Uses             []RunUse          `json:"uses"`
	Name             *string           `json:"name"`
	Ref              *string           `json:"ref"`
	Description      *string           `json:"description"`
	Difficulty       *string           `json:"difficulty"`
	Grooming         *string           `json:"grooming"`
	Oneway           *bool             `json:"oneway"`
	Lit              *bool             `json:"lit"`
	Gladed           *bool             `json:"gladed"`
	Patrolled        *bool             `json:"patrolled"`
	Status           Status            `json:"status"`
	SkiAreas         []SkiAreaRef      `json:"skiAreas"`
	Sources          []Source          `json:"sources"`
	Websites         []string          `json:"websites"`
	ElevationProfile *ElevationProfile `json:"elevationProfile"`
}

type RunUse string

const (
	RunUseDownhill   RunUse = "downhill"
	RunUseNordic     RunUse = "nordic"
	RunUseSkitour    RunUse = "skitour"
	RunUseSled       RunUse = "sled"
	RunUseHike       RunUse = "hike"
	RunUseSleigh     RunUse = "sleigh"
	RunUseIceSkate   RunUse = "ice_skate"
	RunUseSnowPark   RunUse = "snow_park"
	RunUsePlayground RunUse = "playground"
	RunUseFatbike    RunUse = "fatbike"
	RunUseConnection RunUse = "connection"
)

type LiftProperties struct {
	Type       FeatureKind  `json:"type"`
	ID         string       `json:"id"`
	LiftType   string       `json:"liftType"`
	Name       *string      `json:"name"`
	Ref        *string      `json:"ref"`
	Status     Status       `json:"status"`
	Oneway     *bool        `json:"oneway"`
	Occupancy  *int         `json:"occupancy"`
	Capacity   *int         `json:"capacity"`
	Duration   *int         `json:"duration"`
	Bubble     *bool        `json:"bubble"`
	Heating    *bool        `json:"heating"`
	Detachable *bool        `json:"detachable"`
	SkiAreas   []SkiAreaRef `json:"skiAreas"`
	Sources    []Source     `json:"sources"`
	Websites   []string     `json:"websites"`
}

type SkiAreaProperties struct {
	Type          FeatureKind     `json:"type"`
	ID            string          `json:"id"`
	Name          *string         `json:"name"`
	Activities    []Activity      `json:"activities"`
	Generated     bool            `json:"generated"`
	RunConvention RunConvention   `json:"runConvention"`
	Sources       []Source        `json:"sources"`
	Status        *Status         `json:"status"`
	Websites      []string        `json:"websites"`
	Statistics    json.RawMessage `json:"statistics,omitempty"`
	Location      *Location       `json:"location"`
	// Placeholder marks site seeds whose geometry is resolved by the clustering stage.
	Placeholder bool `json:"placeholder,omitempty"`
}

type Feature[P any] struct {
	Type       string   `json:"type"`
	Geometry   Geometry `json:"geometry"`
	Properties P        `json:"properties"`
}

type (
	RunFeature     = Feature[RunProperties]
	LiftFeature    = Feature[LiftProperties]
	SkiAreaFeature = Feature[SkiAreaProperties]
)

func NewFeature[P any](g Geometry, p P) Feature[P] {
	return Feature[P]{Type: "Feature", Geometry: g, Properties: p}
}

func Ptr[T any](v T) *T { return &v }

func appendFloat(dst []byte, v float64) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return append(dst, "null"...)
	}
	return strconv.AppendFloat(dst, v, 'f', -1, 64)
}
