package algorithms

import "fmt"

// KHopResult holds the BFS neighbourhood of a source node.
type KHopResult[N comparable] struct {
	Source    N
	ByHop     map[int][]N // hop distance -> nodes at that distance
	Distances map[N]int
}

// KHopNeighbours performs a BFS from source up to maxHops levels. The source
// is never included in the result.
func KHopNeighbours[N comparable](g Graph[N], source N, maxHops int) (*KHopResult[N], error) {
	if maxHops < 1 {
		return nil, fmt.Errorf("maxHops must be >= 1, got %d", maxHops)
	}

	result := &KHopResult[N]{
		Source:    source,
		ByHop:     make(map[int][]N),
		Distances: make(map[N]int),
	}
	visited := map[N]bool{source: true}
	frontier := []N{source}
	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []N
		for _, n := range frontier {
			for _, s := range g.Successors(n) {
				if visited[s] {
					continue
				}
				visited[s] = true
				result.Distances[s] = hop
				result.ByHop[hop] = append(result.ByHop[hop], s)
				next = append(next, s)
			}
		}
		frontier = next
	}
	return result, nil
}

// Reachable returns every node reachable from source, source included.
func Reachable[N comparable](g Graph[N], source N) map[N]bool {
	seen := map[N]bool{source: true}
	stack := []N{source}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range g.Successors(n) {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}
