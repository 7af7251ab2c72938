package attackgraph

import (
	"sort"

	"github.com/dd0wney/cluso-attackgraph/pkg/model"
)

// Compose joins sub-graphs into one graph and prunes it. The inputs are not
// modified.
func Compose(subgraphs map[string]*Graph) *Graph {
	g := Union(subgraphs)
	g.Prune()
	return g
}

// Union joins sub-graphs without pruning. A full traversal, when present, is
// used as is; otherwise sub-graphs are merged in key order and an edge found
// in several takes the labels of the last one.
func Union(subgraphs map[string]*Graph) *Graph {
	if full, ok := subgraphs[FullKey]; ok {
		return full.Clone()
	}
	g := NewGraph()
	keys := make([]string, 0, len(subgraphs))
	for k := range subgraphs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		g.merge(subgraphs[k])
	}
	return g
}

// Prune repeatedly removes every vertex other than outside that has no
// incoming edges, together with its out-edges. It returns the number of
// removed vertices.
func (g *Graph) Prune() int {
	var work []model.Vertex
	for _, v := range g.Vertices() {
		if v.Service != model.Outside && g.InDegree(v) == 0 {
			work = append(work, v)
		}
	}

	removed := 0
	for len(work) > 0 {
		v := work[len(work)-1]
		work = work[:len(work)-1]
		if !g.HasVertex(v) {
			continue
		}

		successors := g.Successors(v)
		g.RemoveVertex(v)
		removed++

		for _, s := range successors {
			if s.Service != model.Outside && g.InDegree(s) == 0 {
				work = append(work, s)
			}
		}
	}
	return removed
}
