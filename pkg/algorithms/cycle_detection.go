package algorithms

import "errors"

// ErrCyclic is returned by TopologicalSort when the graph has a cycle.
var ErrCyclic = errors.New("graph contains cycles")

// Cycle is a closed walk; the first node is repeated implicitly.
type Cycle[N comparable] []N

// DetectCycles finds one cycle per back edge using DFS with three-color
// marking. A gray node reached again closes a cycle.
func DetectCycles[N comparable](g Graph[N]) []Cycle[N] {
	const (
		white = iota
		gray
		black
	)

	color := make(map[N]int)
	var path []N
	var cycles []Cycle[N]

	var visit func(n N)
	visit = func(n N) {
		color[n] = gray
		path = append(path, n)
		for _, next := range g.Successors(n) {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				for i := len(path) - 1; i >= 0; i-- {
					if path[i] == next {
						cycles = append(cycles, append(Cycle[N](nil), path[i:]...))
						break
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
	}

	for _, n := range g.Nodes() {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}

// HasCycle reports whether the graph contains a cycle, self-loops included.
func HasCycle[N comparable](g Graph[N]) bool {
	_, err := TopologicalSort(g)
	return err != nil
}

// TopologicalSort orders nodes with Kahn's algorithm so that every edge
// points forward. It returns ErrCyclic when no such order exists.
func TopologicalSort[N comparable](g Graph[N]) ([]N, error) {
	nodes := g.Nodes()
	inDegree := InDegree(g)

	queue := make([]N, 0, len(nodes))
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	sorted := make([]N, 0, len(nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		sorted = append(sorted, current)
		for _, next := range g.Successors(current) {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(sorted) != len(nodes) {
		return nil, ErrCyclic
	}
	return sorted, nil
}
