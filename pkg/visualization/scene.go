package visualization

import (
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-attackgraph/pkg/attackgraph"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/risk"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
)

// Fill colors, from no risk to certain compromise.
const (
	colorNone     = "white"
	colorLow      = "yellow"
	colorMedium   = "orange"
	colorHigh     = "red"
	colorHoneypot = "lightblue"
	colorAttacker = "gray"
)

// Node is a drawable vertex.
type Node struct {
	ID       string
	Label    string
	Color    string
	Position Position
}

// Edge is a drawable arc. Width grows with the likelihood of the step.
type Edge struct {
	From  string
	To    string
	Label string
	Width float64
}

// Scene is a laid out graph ready to be written.
type Scene struct {
	Name  string
	Nodes []Node
	Edges []Edge
}

// AttackGraphScene draws an attack graph level by level from outside.
// Honeypots are highlighted when topo is given.
func AttackGraphScene(name string, g *attackgraph.Graph, topo *topology.Topology, config LayoutConfig) *Scene {
	config = config.withDefaults()
	positions := normalizePositions(Hierarchical[model.Vertex](g, config),
		config.Width, config.Height, config.Padding)

	sc := &Scene{Name: name}
	for _, v := range g.Vertices() {
		color := colorForPrivilege(v.Privilege)
		switch {
		case v.Service == model.Outside:
			color = colorAttacker
		case topo != nil && topo.IsHoneypot(v.Service):
			color = colorHoneypot
		}
		sc.Nodes = append(sc.Nodes, Node{
			ID:       v.String(),
			Label:    v.Service + "\n" + v.Privilege.String(),
			Color:    color,
			Position: positions[v],
		})
	}
	for _, e := range g.Edges() {
		sc.Edges = append(sc.Edges, Edge{
			From:  e.From.String(),
			To:    e.To.String(),
			Label: strings.Join(e.Labels, "\n"),
			Width: 1 + (1-e.Weight)*3,
		})
	}
	return sc
}

// ServiceGraphScene draws the merged graph on a circle. Nodes are colored by
// reachability and edges labelled with their probability.
func ServiceGraphScene(name string, m *risk.MergedGraph, reach risk.Reachability, topo *topology.Topology, config LayoutConfig) *Scene {
	config = config.withDefaults()
	positions := normalizePositions(Circular[string](m, config),
		config.Width, config.Height, config.Padding)

	sc := &Scene{Name: name}
	for _, s := range m.Services() {
		p := reach.Of(s)
		color := colorForReachability(p)
		switch {
		case s == model.Outside:
			color = colorAttacker
		case topo != nil && topo.IsHoneypot(s):
			color = colorHoneypot
		}
		sc.Nodes = append(sc.Nodes, Node{
			ID:       s,
			Label:    fmt.Sprintf("%s\n%.2f", s, p),
			Color:    color,
			Position: positions[s],
		})
	}
	for _, e := range m.Edges() {
		sc.Edges = append(sc.Edges, Edge{
			From:  e.From,
			To:    e.To,
			Label: fmt.Sprintf("%.2f", e.Probability),
			Width: 1 + e.Probability*3,
		})
	}
	return sc
}

func colorForPrivilege(p model.Privilege) string {
	switch {
	case p >= model.PrivilegeAdmin:
		return colorHigh
	case p >= model.PrivilegeUser:
		return colorMedium
	case p > model.PrivilegeNone:
		return colorLow
	default:
		return colorNone
	}
}

func colorForReachability(p float64) string {
	switch {
	case p >= 0.7:
		return colorHigh
	case p >= 0.4:
		return colorMedium
	case p > 0:
		return colorLow
	default:
		return colorNone
	}
}
