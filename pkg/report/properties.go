package report

import (
	"cmp"
	"slices"

	"github.com/dd0wney/cluso-attackgraph/pkg/algorithms"
	"github.com/dd0wney/cluso-attackgraph/pkg/attackgraph"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/risk"
)

// Properties are structural facts about the composed and merged graphs.
type Properties struct {
	Components       int              `json:"components"`
	LargestComponent []string         `json:"largest_component"`
	Singletons       int              `json:"singletons"`
	Cyclic           bool             `json:"cyclic"`
	Cycles           int              `json:"cycles"`
	AttackDepth      int              `json:"attack_depth"`
	Frontier         map[int][]string `json:"frontier,omitempty"` // hop -> services first reached there
	Chokepoints      []Centrality     `json:"chokepoints,omitempty"`
	Hubs             []Centrality     `json:"hubs,omitempty"`
}

// Centrality is a service and its score.
type Centrality struct {
	Service string  `json:"service"`
	Score   float64 `json:"score"`
}

// maxRanked caps the chokepoint and hub lists.
const maxRanked = 5

func computeProperties(composed *attackgraph.Graph, merged *risk.MergedGraph) Properties {
	var p Properties

	scc := algorithms.StronglyConnectedComponents[string](merged)
	p.Components = len(scc.Components)
	p.Singletons = scc.SingletonCount
	if scc.Largest != nil {
		p.LargestComponent = slices.Sorted(slices.Values(scc.Largest.Nodes))
	}

	cycles := algorithms.DetectCycles[model.Vertex](composed)
	p.Cycles = len(cycles)
	p.Cyclic = len(cycles) > 0

	if composed.HasVertex(model.Root) && composed.Order() > 1 {
		khop, err := algorithms.KHopNeighbours[model.Vertex](composed, model.Root, composed.Order())
		if err == nil {
			p.Frontier = frontier(khop)
			for hop := range khop.ByHop {
				p.AttackDepth = max(p.AttackDepth, hop)
			}
		}
	}

	p.Chokepoints = ranked(algorithms.BetweennessCentrality[string](merged))
	p.Hubs = ranked(algorithms.DegreeCentrality[string](merged))
	return p
}

// frontier lists, per hop, the services whose first vertex appears there.
func frontier(khop *algorithms.KHopResult[model.Vertex]) map[int][]string {
	first := make(map[string]int)
	for v, hop := range khop.Distances {
		if v.Service == model.Outside {
			continue
		}
		if h, ok := first[v.Service]; !ok || hop < h {
			first[v.Service] = hop
		}
	}
	out := make(map[int][]string)
	for s, hop := range first {
		out[hop] = append(out[hop], s)
	}
	for hop := range out {
		slices.Sort(out[hop])
	}
	return out
}

// ranked returns the top non-zero scores, outside excluded.
func ranked(scores map[string]float64) []Centrality {
	var out []Centrality
	for s, v := range scores {
		if s == model.Outside || v <= 0 {
			continue
		}
		out = append(out, Centrality{Service: s, Score: v})
	}
	slices.SortFunc(out, func(a, b Centrality) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Service, b.Service)
	})
	if len(out) > maxRanked {
		out = out[:maxRanked]
	}
	return out
}
