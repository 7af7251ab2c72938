package visualization

import (
	"math"

	"github.com/dd0wney/cluso-attackgraph/pkg/algorithms"
)

// Circular arranges nodes in a circle in graph order. Service graphs are
// small and dense, so a circle keeps every edge visible.
func Circular[N comparable](g algorithms.Graph[N], config LayoutConfig) map[N]Position {
	config = config.withDefaults()
	nodes := g.Nodes()
	positions := make(map[N]Position, len(nodes))

	if len(nodes) == 0 {
		return positions
	}

	centerX := config.Width / 2
	centerY := config.Height / 2
	if len(nodes) == 1 {
		positions[nodes[0]] = Position{X: centerX, Y: centerY}
		return positions
	}
	radius := math.Min(centerX, centerY) - config.Padding

	angleStep := 2 * math.Pi / float64(len(nodes))
	for i, n := range nodes {
		angle := float64(i) * angleStep
		positions[n] = Position{
			X: centerX + radius*math.Cos(angle),
			Y: centerY + radius*math.Sin(angle),
		}
	}
	return positions
}
