// Package analysis runs the attack graph pipeline and keeps its results
// current while the topology changes.
package analysis

import (
	"maps"

	"github.com/dd0wney/cluso-attackgraph/pkg/attackgraph"
	"github.com/dd0wney/cluso-attackgraph/pkg/exploit"
	"github.com/dd0wney/cluso-attackgraph/pkg/risk"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
)

// State is one snapshot of the pipeline. A State is never modified after it
// is published; every operation derives a new one.
type State struct {
	Topology     *topology.Topology
	Profiles     map[string]*exploit.Profile
	Subgraphs    map[string]*attackgraph.Graph
	Composed     *attackgraph.Graph
	Merged       *risk.MergedGraph
	Reachability risk.Reachability
}

// NewState returns the initial snapshot of a topology. profiles may be nil.
func NewState(topo *topology.Topology, profiles map[string]*exploit.Profile) *State {
	return &State{
		Topology: topo,
		Profiles: profiles,
	}
}

// derive returns a shallow copy with fresh top-level maps.
func (s *State) derive() *State {
	next := *s
	next.Profiles = maps.Clone(s.Profiles)
	next.Subgraphs = maps.Clone(s.Subgraphs)
	return &next
}

// Built reports whether the attack graph has been generated.
func (s *State) Built() bool {
	return s.Composed != nil
}

// HasRisk reports whether the risk graph and reachability table are current.
func (s *State) HasRisk() bool {
	return s.Merged != nil && s.Reachability != nil
}
