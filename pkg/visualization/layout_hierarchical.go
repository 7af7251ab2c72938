package visualization

import "github.com/dd0wney/cluso-attackgraph/pkg/algorithms"

// Hierarchical arranges nodes in levels by breadth-first distance from the
// nodes without predecessors. Attack graphs are drawn this way so every
// level is one more pivot away from the attacker.
func Hierarchical[N comparable](g algorithms.Graph[N], config LayoutConfig) map[N]Position {
	config = config.withDefaults()
	nodes := g.Nodes()
	positions := make(map[N]Position, len(nodes))
	if len(nodes) == 0 {
		return positions
	}

	in := algorithms.InDegree(g)
	roots := make([]N, 0)
	for _, n := range nodes {
		if in[n] == 0 {
			roots = append(roots, n)
		}
	}
	if len(roots) == 0 {
		// No clear root, use first node
		roots = []N{nodes[0]}
	}

	// Build levels using BFS
	levels := make([][]N, 0)
	visited := make(map[N]bool)
	for _, r := range roots {
		visited[r] = true
	}
	currentLevel := roots
	for len(currentLevel) > 0 {
		levels = append(levels, currentLevel)
		nextLevel := make([]N, 0)
		for _, n := range currentLevel {
			for _, s := range g.Successors(n) {
				if !visited[s] {
					visited[s] = true
					nextLevel = append(nextLevel, s)
				}
			}
		}
		currentLevel = nextLevel
	}

	// Nodes only reachable from a cycle go on the last level
	for _, n := range nodes {
		if !visited[n] {
			levels[len(levels)-1] = append(levels[len(levels)-1], n)
		}
	}

	levelHeight := (config.Height - 2*config.Padding) / float64(len(levels))
	for levelIdx, level := range levels {
		y := config.Padding + float64(levelIdx)*levelHeight + levelHeight/2
		levelWidth := config.Width - 2*config.Padding
		spacing := levelWidth / float64(len(level)+1)

		for nodeIdx, n := range level {
			x := config.Padding + spacing*float64(nodeIdx+1)
			positions[n] = Position{X: x, Y: y}
		}
	}
	return positions
}
