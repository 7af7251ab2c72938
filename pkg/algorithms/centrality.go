package algorithms

// DegreeCentrality computes (in-degree + out-degree) / (n-1) for every node.
func DegreeCentrality[N comparable](g Graph[N]) map[N]float64 {
	nodes := g.Nodes()
	in := InDegree(g)

	degree := make(map[N]float64, len(nodes))
	for _, n := range nodes {
		if len(nodes) < 2 {
			degree[n] = 0
			continue
		}
		total := in[n] + len(g.Successors(n))
		degree[n] = float64(total) / float64(len(nodes)-1)
	}
	return degree
}

// BetweennessCentrality computes unweighted betweenness with Brandes'
// algorithm. Scores are not normalised.
func BetweennessCentrality[N comparable](g Graph[N]) map[N]float64 {
	nodes := g.Nodes()
	betweenness := make(map[N]float64, len(nodes))
	for _, n := range nodes {
		betweenness[n] = 0
	}

	for _, source := range nodes {
		var stack []N
		predecessors := make(map[N][]N)
		sigma := map[N]float64{source: 1}
		distance := map[N]int{source: 0}

		queue := []N{source}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)

			for _, w := range g.Successors(v) {
				if _, seen := distance[w]; !seen {
					distance[w] = distance[v] + 1
					queue = append(queue, w)
				}
				if distance[w] == distance[v]+1 {
					sigma[w] += sigma[v]
					predecessors[w] = append(predecessors[w], v)
				}
			}
		}

		delta := make(map[N]float64, len(stack))
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range predecessors[w] {
				delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
			}
			if w != source {
				betweenness[w] += delta[w]
			}
		}
	}
	return betweenness
}
