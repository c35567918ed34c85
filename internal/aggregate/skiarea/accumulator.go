package skiarea

import (
	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

// Accumulator buffers every ski area and merges records that share any source.
type Accumulator struct {
	objects  []Object
	parent   []int
	bySource map[model.Source]int
}

func NewAccumulator() *Accumulator {
	return &Accumulator{bySource: make(map[model.Source]int)}
}

func (a *Accumulator) Add(f model.SkiAreaFeature) {
	i := len(a.objects)
	a.objects = append(a.objects, FromFeature(f))
	a.parent = append(a.parent, i)
	for _, s := range f.Properties.Sources {
		if j, ok := a.bySource[s]; ok {
			a.union(j, i)
			continue
		}
		a.bySource[s] = i
	}
}

// Flush emits one record per duplicate group, ordered by each group's first member.
func (a *Accumulator) Flush() []model.SkiAreaFeature {
	groups := make(map[int][]int)
	var order []int
	for i := range a.objects {
		r := a.find(i)
		if _, ok := groups[r]; !ok {
			order = append(order, r)
		}
		groups[r] = append(groups[r], i)
	}

	out := make([]model.SkiAreaFeature, 0, len(order))
	for _, r := range order {
		members := make([]Object, 0, len(groups[r]))
		for _, i := range groups[r] {
			members = append(members, a.objects[i])
		}
		p := SelectPrimary(members)
		dups := make([]Object, 0, len(members)-1)
		for i, m := range members {
			if i != p {
				dups = append(dups, m)
			}
		}
		out = append(out, Merge(members[p], dups).Feature())
	}
	a.objects, a.parent = nil, nil
	a.bySource = make(map[model.Source]int)
	return out
}

func (a *Accumulator) find(i int) int {
	for a.parent[i] != i {
		a.parent[i] = a.parent[a.parent[i]]
		i = a.parent[i]
	}
	return i
}

func (a *Accumulator) union(i, j int) {
	ri, rj := a.find(i), a.find(j)
	if ri == rj {
		return
	}
	// keep the earlier record as root
	if rj < ri {
		ri, rj = rj, ri
	}
	a.parent[rj] = ri
}
