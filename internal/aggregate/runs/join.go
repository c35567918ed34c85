package runs

import (
	"slices"

	"github.com/mohammed-shakir/skidata-processor/internal/aggregate/geojsonagg"
	"github.com/mohammed-shakir/skidata-processor/internal/core/model"
)

type link struct {
	seg      int
	reversed bool
}

type segEnd struct {
	seg     int
	atStart bool
}

// join chains split line segments. Each chain is emitted at the position of its
// earliest segment, with properties folded in stream order.
func (a *Accumulator) join(runs []model.RunFeature) []model.RunFeature {
	groups := make(map[string][]int)
	var order []string
	for i, r := range runs {
		if r.Geometry.Type != model.LineString {
			continue
		}
		k := identityKey(r.Properties)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	replaced := make(map[int]model.RunFeature)
	consumed := make(map[int]bool)
	for _, k := range order {
		idxs := groups[k]
		if len(idxs) < 2 {
			continue
		}
		oneway := isOneway(runs[idxs[0]].Properties)
		for _, chain := range a.chains(runs, idxs, oneway) {
			if len(chain) < 2 {
				continue
			}
			first, merged := mergeChain(runs, chain)
			replaced[first] = merged
			for _, l := range chain {
				if l.seg != first {
					consumed[l.seg] = true
				}
			}
			a.stats.Joined += len(chain) - 1
		}
	}

	out := make([]model.RunFeature, 0, len(runs)-len(consumed))
	for i, r := range runs {
		if consumed[i] {
			continue
		}
		if m, ok := replaced[i]; ok {
			r = m
		}
		out = append(out, r)
	}
	return out
}

func (a *Accumulator) chains(runs []model.RunFeature, idxs []int, oneway bool) [][]link {
	nodes := make(map[geojsonagg.Vertex][]segEnd)
	for _, i := range idxs {
		l := runs[i].Geometry.Line
		nodes[a.vertex(l[0])] = append(nodes[a.vertex(l[0])], segEnd{seg: i, atStart: true})
		nodes[a.vertex(l[len(l)-1])] = append(nodes[a.vertex(l[len(l)-1])], segEnd{seg: i, atStart: false})
	}

	// neighbour returns the other segment end at v when exactly two distinct
	// segments meet there and, for oneway runs, one ends where the other starts.
	neighbour := func(v geojsonagg.Vertex, seg int) (segEnd, bool) {
		es := nodes[v]
		if len(es) != 2 || es[0].seg == es[1].seg {
			return segEnd{}, false
		}
		if oneway && es[0].atStart == es[1].atStart {
			return segEnd{}, false
		}
		if es[0].seg == seg {
			return es[1], true
		}
		return es[0], true
	}

	entry := func(l link) geojsonagg.Vertex {
		line := runs[l.seg].Geometry.Line
		if l.reversed {
			return a.vertex(line[len(line)-1])
		}
		return a.vertex(line[0])
	}
	exit := func(l link) geojsonagg.Vertex {
		line := runs[l.seg].Geometry.Line
		if l.reversed {
			return a.vertex(line[0])
		}
		return a.vertex(line[len(line)-1])
	}

	visited := make(map[int]bool, len(idxs))
	var out [][]link
	for _, s := range idxs {
		if visited[s] {
			continue
		}
		// walk back to the head of the chain containing s
		head := link{seg: s}
		for steps := 0; steps < len(idxs); steps++ {
			e, ok := neighbour(entry(head), head.seg)
			if !ok || e.seg == s || visited[e.seg] {
				break
			}
			// the previous segment runs forward when its end meets our entry
			head = link{seg: e.seg, reversed: e.atStart}
		}

		chain := []link{head}
		visited[head.seg] = true
		cur := head
		for {
			e, ok := neighbour(exit(cur), cur.seg)
			if !ok || visited[e.seg] {
				break
			}
			cur = link{seg: e.seg, reversed: !e.atStart}
			visited[cur.seg] = true
			chain = append(chain, cur)
		}
		out = append(out, chain)
	}
	return out
}

func (a *Accumulator) vertex(p model.Position) geojsonagg.Vertex {
	return geojsonagg.RoundVertex(p, a.precision)
}

func mergeChain(runs []model.RunFeature, chain []link) (int, model.RunFeature) {
	var line []model.Position
	segs := make([]int, 0, len(chain))
	for i, l := range chain {
		part := runs[l.seg].Geometry.Line
		if l.reversed {
			part = slices.Clone(part)
			slices.Reverse(part)
		}
		if i > 0 {
			part = part[1:]
		}
		line = append(line, part...)
		segs = append(segs, l.seg)
	}
	slices.Sort(segs)

	p := runs[segs[0]].Properties
	for _, s := range segs[1:] {
		p = mergeProperties(p, runs[s].Properties)
	}
	return segs[0], model.NewFeature(model.NewLineString(line), p)
}
