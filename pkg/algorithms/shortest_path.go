package algorithms

// ShortestPath finds a path with the fewest hops using BFS. It returns nil
// when end is unreachable.
func ShortestPath[N comparable](g Graph[N], start, end N) []N {
	if start == end {
		return []N{start}
	}

	parent := map[N]N{start: start}
	queue := []N{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range g.Successors(current) {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			if next == end {
				return tracePath(parent, start, end)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// HopDistances returns the BFS hop count from source to every reachable node.
func HopDistances[N comparable](g Graph[N], source N) map[N]int {
	distances := map[N]int{source: 0}
	queue := []N{source}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.Successors(current) {
			if _, visited := distances[next]; !visited {
				distances[next] = distances[current] + 1
				queue = append(queue, next)
			}
		}
	}
	return distances
}

// WeightedShortestPath finds the path of least total weight using Dijkstra's
// algorithm. ok is false when end is unreachable.
func WeightedShortestPath[N comparable](g WeightedGraph[N], start, end N) (path []N, distance float64, ok bool) {
	type pqItem struct {
		node     N
		distance float64
	}

	distances := map[N]float64{start: 0}
	parent := map[N]N{start: start}
	done := make(map[N]bool)

	// Priority queue using a plain slice; graphs here have tens of nodes.
	pq := []pqItem{{start, 0}}
	for len(pq) > 0 {
		minIdx := 0
		for i := 1; i < len(pq); i++ {
			if pq[i].distance < pq[minIdx].distance {
				minIdx = i
			}
		}
		current := pq[minIdx]
		pq = append(pq[:minIdx], pq[minIdx+1:]...)

		if done[current.node] {
			continue
		}
		done[current.node] = true

		if current.node == end {
			return tracePath(parent, start, end), distances[end], true
		}

		for _, next := range g.Successors(current.node) {
			newDist := current.distance + g.Weight(current.node, next)
			if oldDist, visited := distances[next]; !visited || newDist < oldDist {
				distances[next] = newDist
				parent[next] = current.node
				pq = append(pq, pqItem{next, newDist})
			}
		}
	}
	return nil, 0, false
}

func tracePath[N comparable](parent map[N]N, start, end N) []N {
	path := []N{end}
	for node := end; node != start; {
		node = parent[node]
		path = append(path, node)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
