// Package risk collapses a composed attack graph into a service graph with
// transition probabilities and propagates reachability from outside.
package risk

import (
	"math"
	"slices"
	"sort"

	"github.com/dd0wney/cluso-attackgraph/pkg/attackgraph"
	"github.com/dd0wney/cluso-attackgraph/pkg/exploit"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
)

const opMerge = "merge"

// Edge is a service-level pivot. Labels are those of the attack edge with
// the lowest weight between the two services.
type Edge struct {
	From        string   `json:"from"`
	To          string   `json:"to"`
	Weight      float64  `json:"weight"`
	Probability float64  `json:"probability"`
	Labels      []string `json:"labels"`
}

// MergedGraph is the attack graph with privileges collapsed. It is immutable
// once returned by Merge.
type MergedGraph struct {
	services map[string]struct{}
	edges    map[model.ServicePair]*Edge
	out      map[string][]string
}

// Merge collapses composed into a service graph. Each attack edge between
// distinct services is weighted decayBase^-score, where score is the highest
// CVSS score among its labels, and only the lowest weight per service pair is
// kept. Outgoing weights are then normalised into probabilities.
func Merge(composed *attackgraph.Graph, profiles map[string]*exploit.Profile, decayBase float64) (*MergedGraph, error) {
	m := &MergedGraph{
		services: make(map[string]struct{}),
		edges:    make(map[model.ServicePair]*Edge),
		out:      make(map[string][]string),
	}
	for _, s := range composed.Services() {
		m.services[s] = struct{}{}
	}

	for _, e := range composed.Edges() {
		if e.Key().SelfLoop() {
			continue
		}
		profile, ok := profiles[e.To.Service]
		if !ok {
			return nil, model.UnknownService(opMerge, e.To.Service)
		}
		score := 0.0
		for _, id := range e.Labels {
			score = math.Max(score, profile.Score(id))
		}
		w := attackgraph.Weight(decayBase, score)

		pair := model.ServicePair{From: e.From.Service, To: e.To.Service}
		if existing, ok := m.edges[pair]; ok {
			if w >= existing.Weight {
				continue
			}
			existing.Weight = w
			existing.Labels = slices.Clone(e.Labels)
			continue
		}
		m.edges[pair] = &Edge{From: pair.From, To: pair.To, Weight: w, Labels: slices.Clone(e.Labels)}
		m.out[pair.From] = append(m.out[pair.From], pair.To)
	}

	for from, targets := range m.out {
		sort.Strings(targets)
		m.normalize(from, targets)
	}
	return m, nil
}

// normalize sets probability = (1-w)/Σ(1-w) on the edges leaving from. When
// every weight is 1 the probability is split equally.
func (m *MergedGraph) normalize(from string, targets []string) {
	total := 0.0
	for _, to := range targets {
		total += 1 - m.edges[model.ServicePair{From: from, To: to}].Weight
	}
	for _, to := range targets {
		e := m.edges[model.ServicePair{From: from, To: to}]
		if total == 0 {
			e.Probability = 1 / float64(len(targets))
		} else {
			e.Probability = (1 - e.Weight) / total
		}
	}
}

// HasService reports whether name is a vertex of the merged graph.
func (m *MergedGraph) HasService(name string) bool {
	_, ok := m.services[name]
	return ok
}

// Services returns every vertex, sorted.
func (m *MergedGraph) Services() []string {
	out := make([]string, 0, len(m.services))
	for s := range m.services {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Edge returns a copy of the edge from -> to.
func (m *MergedGraph) Edge(from, to string) (Edge, bool) {
	e, ok := m.edges[model.ServicePair{From: from, To: to}]
	if !ok {
		return Edge{}, false
	}
	cp := *e
	cp.Labels = slices.Clone(e.Labels)
	return cp, true
}

// Edges returns copies of every edge, sorted by source then destination.
func (m *MergedGraph) Edges() []Edge {
	edges := make([]Edge, 0, len(m.edges))
	for _, from := range m.Services() {
		for _, to := range m.out[from] {
			e, _ := m.Edge(from, to)
			edges = append(edges, e)
		}
	}
	return edges
}

// Probability returns the transition probability from -> to, or 0.
func (m *MergedGraph) Probability(from, to string) float64 {
	if e, ok := m.edges[model.ServicePair{From: from, To: to}]; ok {
		return e.Probability
	}
	return 0
}

// Nodes returns every service, sorted.
func (m *MergedGraph) Nodes() []string { return m.Services() }

// Successors returns the services reachable in one step from name, sorted.
func (m *MergedGraph) Successors(name string) []string { return slices.Clone(m.out[name]) }

// Weight returns the weight of the edge from -> to, or +Inf when absent.
func (m *MergedGraph) Weight(from, to string) float64 {
	if e, ok := m.edges[model.ServicePair{From: from, To: to}]; ok {
		return e.Weight
	}
	return math.Inf(1)
}

// Order returns the number of services.
func (m *MergedGraph) Order() int { return len(m.services) }

// Size returns the number of edges.
func (m *MergedGraph) Size() int { return len(m.edges) }
