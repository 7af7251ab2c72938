// Package attackgraph builds per-subnet attack graphs over (service,
// privilege) vertices and composes them into one pruned graph.
package attackgraph

import (
	"slices"
	"sort"

	"github.com/dd0wney/cluso-attackgraph/pkg/model"
)

// Edge is an attacker pivot between two footholds. Labels are the
// vulnerability ids that enable it, in discovery order.
type Edge struct {
	From   model.Vertex `json:"from"`
	To     model.Vertex `json:"to"`
	Labels []string     `json:"labels"`
	Weight float64      `json:"weight"`
}

// Key returns the identity of the edge.
func (e Edge) Key() model.EdgeKey {
	return model.EdgeKey{From: e.From, To: e.To}
}

// Graph is a directed attack graph. A Graph is not safe for concurrent
// mutation; builders own theirs until they return it.
type Graph struct {
	vertices map[model.Vertex]struct{}
	edges    map[model.EdgeKey]*Edge
	out      map[model.Vertex]map[model.Vertex]struct{}
	in       map[model.Vertex]map[model.Vertex]struct{}
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		vertices: make(map[model.Vertex]struct{}),
		edges:    make(map[model.EdgeKey]*Edge),
		out:      make(map[model.Vertex]map[model.Vertex]struct{}),
		in:       make(map[model.Vertex]map[model.Vertex]struct{}),
	}
}

// AddVertex adds v if absent.
func (g *Graph) AddVertex(v model.Vertex) {
	g.vertices[v] = struct{}{}
}

// HasVertex reports whether v is in the graph.
func (g *Graph) HasVertex(v model.Vertex) bool {
	_, ok := g.vertices[v]
	return ok
}

// link records label on the edge from -> to. A missing edge is created; an
// existing one gains the label only when multiLabel is set and the label is
// new. It reports whether the graph changed.
func (g *Graph) link(from, to model.Vertex, label string, weight float64, multiLabel bool) bool {
	key := model.EdgeKey{From: from, To: to}
	if e, ok := g.edges[key]; ok {
		if !multiLabel || slices.Contains(e.Labels, label) {
			return false
		}
		e.Labels = append(e.Labels, label)
		e.Weight = weight
		return true
	}
	g.putEdge(&Edge{From: from, To: to, Labels: []string{label}, Weight: weight})
	return true
}

// putEdge inserts or replaces an edge, taking ownership of e.
func (g *Graph) putEdge(e *Edge) {
	g.AddVertex(e.From)
	g.AddVertex(e.To)
	g.edges[e.Key()] = e
	if g.out[e.From] == nil {
		g.out[e.From] = make(map[model.Vertex]struct{})
	}
	g.out[e.From][e.To] = struct{}{}
	if g.in[e.To] == nil {
		g.in[e.To] = make(map[model.Vertex]struct{})
	}
	g.in[e.To][e.From] = struct{}{}
}

// Edge returns a copy of the edge from -> to.
func (g *Graph) Edge(from, to model.Vertex) (Edge, bool) {
	e, ok := g.edges[model.EdgeKey{From: from, To: to}]
	if !ok {
		return Edge{}, false
	}
	return copyEdge(e), true
}

// Vertices returns every vertex, sorted.
func (g *Graph) Vertices() []model.Vertex {
	return sortedVertices(g.vertices)
}

// Nodes returns the vertices so the graph can be handed to pkg/algorithms.
func (g *Graph) Nodes() []model.Vertex {
	return g.Vertices()
}

// Edges returns copies of every edge, sorted by key.
func (g *Graph) Edges() []Edge {
	keys := make([]model.EdgeKey, 0, len(g.edges))
	for k := range g.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	edges := make([]Edge, 0, len(keys))
	for _, k := range keys {
		edges = append(edges, copyEdge(g.edges[k]))
	}
	return edges
}

// Successors returns the direct successors of v, sorted.
func (g *Graph) Successors(v model.Vertex) []model.Vertex {
	return sortedVertices(g.out[v])
}

// Predecessors returns the direct predecessors of v, sorted.
func (g *Graph) Predecessors(v model.Vertex) []model.Vertex {
	return sortedVertices(g.in[v])
}

// InDegree returns the number of edges entering v.
func (g *Graph) InDegree(v model.Vertex) int {
	return len(g.in[v])
}

// OutDegree returns the number of edges leaving v.
func (g *Graph) OutDegree(v model.Vertex) int {
	return len(g.out[v])
}

// Order returns the number of vertices.
func (g *Graph) Order() int {
	return len(g.vertices)
}

// Size returns the number of edges.
func (g *Graph) Size() int {
	return len(g.edges)
}

// Empty reports whether the graph has no edges.
func (g *Graph) Empty() bool {
	return len(g.edges) == 0
}

// Services returns the distinct services of the graph's vertices, sorted.
func (g *Graph) Services() []string {
	seen := make(map[string]struct{})
	for v := range g.vertices {
		seen[v.Service] = struct{}{}
	}
	services := make([]string, 0, len(seen))
	for s := range seen {
		services = append(services, s)
	}
	sort.Strings(services)
	return services
}

// RemoveVertex deletes v and every edge touching it.
func (g *Graph) RemoveVertex(v model.Vertex) {
	for to := range g.out[v] {
		delete(g.edges, model.EdgeKey{From: v, To: to})
		delete(g.in[to], v)
	}
	for from := range g.in[v] {
		delete(g.edges, model.EdgeKey{From: from, To: v})
		delete(g.out[from], v)
	}
	delete(g.out, v)
	delete(g.in, v)
	delete(g.vertices, v)
}

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	c := NewGraph()
	c.merge(g)
	return c
}

// merge copies every vertex and edge of other into g. Edges present in both
// take other's labels.
func (g *Graph) merge(other *Graph) {
	for v := range other.vertices {
		g.AddVertex(v)
	}
	for _, e := range other.edges {
		cp := copyEdge(e)
		g.putEdge(&cp)
	}
}

func copyEdge(e *Edge) Edge {
	cp := *e
	cp.Labels = slices.Clone(e.Labels)
	return cp
}

func sortedVertices(set map[model.Vertex]struct{}) []model.Vertex {
	vs := make([]model.Vertex, 0, len(set))
	for v := range set {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].Less(vs[j]) })
	return vs
}
