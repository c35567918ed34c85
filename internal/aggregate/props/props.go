// Package props merges provenance lists and scalar/array properties of canonical records.
package props

import (
	"strings"

	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

// MergeSources concatenates the lists and keeps the first occurrence of each (id, type).
func MergeSources(lists ...[]model.Source) []model.Source {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make([]model.Source, 0, n)
	seen := make(map[model.Source]struct{}, n)
	for _, l := range lists {
		for _, s := range l {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Unique is an order-preserving dedupe over the concatenated lists.
func Unique[T comparable](lists ...[]T) []T {
	out := make([]T, 0)
	seen := make(map[T]struct{})
	for _, l := range lists {
		for _, v := range l {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// FirstNonEmpty returns a unless it is nil or blank.
func FirstNonEmpty(a, b *string) *string {
	if a != nil && strings.TrimSpace(*a) != "" {
		return a
	}
	return b
}

func FirstSet[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}

// AndTri treats nil as unknown: it yields the other side, two known values AND together.
func AndTri(a, b *bool) *bool {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		v := *a && *b
		return &v
	}
}

func AllSourcesOf(sources []model.Source, t model.SourceType) bool {
	if len(sources) == 0 {
		return false
	}
	for _, s := range sources {
		if s.Type != t {
			return false
		}
	}
	return true
}

type WebsiteRecord struct {
	Sources  []model.Source
	Websites []string
}

// MergeWebsites prefers websites of records sourced purely from OpenStreetMap and
// falls back to every record's websites when no such record carries any.
func MergeWebsites(records []WebsiteRecord) []string {
	var preferred [][]string
	for _, r := range records {
		if len(r.Websites) > 0 && AllSourcesOf(r.Sources, model.SourceOpenStreetMap) {
			preferred = append(preferred, r.Websites)
		}
	}
	if out := Unique(preferred...); len(out) > 0 {
		return out
	}
	all := make([][]string, 0, len(records))
	for _, r := range records {
		all = append(all, r.Websites)
	}
	return Unique(all...)
}

// MergeSkiAreaRefs unions memberships by id, keeping the first name seen.
func MergeSkiAreaRefs(lists ...[]model.SkiAreaRef) []model.SkiAreaRef {
	out := make([]model.SkiAreaRef, 0)
	idx := make(map[string]int)
	for _, l := range lists {
		for _, r := range l {
			if i, ok := idx[r.ID]; ok {
				out[i].Name = FirstNonEmpty(out[i].Name, r.Name)
				continue
			}
			idx[r.ID] = len(out)
			out = append(out, r)
		}
	}
	return out
}

func AndBool(a, b bool) bool { return a && b }
