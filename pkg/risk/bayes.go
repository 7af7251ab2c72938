package risk

import (
	"sort"

	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
)

// Reachability maps a service to the estimated probability that an attacker
// starting outside eventually controls it.
type Reachability map[string]float64

// Of returns the probability of name; services never reached have 0.
func (r Reachability) Of(name string) float64 {
	return r[name]
}

// Services returns the services in the table, sorted.
func (r Reachability) Services() []string {
	out := make([]string, 0, len(r))
	for s := range r {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (r Reachability) Clone() Reachability {
	c := make(Reachability, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Propagate walks the topology breadth first from outside and assigns each
// service present in merged a probability the first time it is seen:
//
//	P(n) = P(cur)·p(cur→n) + Σ_k p(cur→k)·p(k→n)
//
// where k ranges over the other non-decoy neighbours of cur. The two-hop sum
// is not scaled by P(cur). Decoys get 0 and only gateways are expanded.
func Propagate(merged *MergedGraph, topo *topology.Topology) (Reachability, error) {
	table := Reachability{model.Outside: 1}
	// Nothing outside can exploit: no attack surface, not an error.
	if !merged.HasService(model.Outside) {
		return table, nil
	}

	queue := []string{model.Outside}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		neighbours, err := topo.Neighbors(cur)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbours {
			if !merged.HasService(n) {
				continue
			}
			if _, done := table[n]; done {
				continue
			}
			// Decoys are never expanded, even as gateways: a decoy grants no
			// foothold, so its neighbours are left to the real services.
			if topo.IsHoneypot(n) {
				table[n] = 0
				continue
			}

			p := table[cur] * merged.Probability(cur, n)
			for _, k := range neighbours {
				if k == n || k == cur || topo.IsHoneypot(k) || !merged.HasService(k) {
					continue
				}
				p += merged.Probability(cur, k) * merged.Probability(k, n)
			}
			table[n] = clamp(p)

			if topo.IsGateway(n) {
				queue = append(queue, n)
			}
		}
	}
	return table, nil
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
