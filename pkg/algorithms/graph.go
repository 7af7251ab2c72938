// Package algorithms holds graph algorithms shared by the attack graph, the
// merged risk graph and reporting. They work on any directed graph exposing
// the small Graph interface.
package algorithms

// Graph is a read-only directed graph. Nodes and Successors must return a
// stable order; results of every algorithm follow that order on ties.
type Graph[N comparable] interface {
	Nodes() []N
	Successors(n N) []N
}

// WeightedGraph is a Graph whose edges carry a non-negative weight.
type WeightedGraph[N comparable] interface {
	Graph[N]
	Weight(from, to N) float64
}

// OutDegree returns the number of successors of every node.
func OutDegree[N comparable](g Graph[N]) map[N]int {
	out := make(map[N]int)
	for _, n := range g.Nodes() {
		out[n] = len(g.Successors(n))
	}
	return out
}

// InDegree returns the number of predecessors of every node.
func InDegree[N comparable](g Graph[N]) map[N]int {
	in := make(map[N]int)
	for _, n := range g.Nodes() {
		if _, ok := in[n]; !ok {
			in[n] = 0
		}
		for _, s := range g.Successors(n) {
			in[s]++
		}
	}
	return in
}

// indexOf maps nodes to their position in g.Nodes().
func indexOf[N comparable](nodes []N) map[N]int {
	idx := make(map[N]int, len(nodes))
	for i, n := range nodes {
		idx[n] = i
	}
	return idx
}
