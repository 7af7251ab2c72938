// Package defense ranks services for decoy placement and plans honeypots.
package defense

import (
	"fmt"
	"slices"
	"sort"

	"github.com/dd0wney/cluso-attackgraph/pkg/algorithms"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/risk"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
)

const (
	// HoneypotImage is the low-value image every decoy runs.
	HoneypotImage = "nginx"
	// HoneypotPrefix starts the name of every decoy.
	HoneypotPrefix = "honey-"

	opDefenceList = "gen_defence_list"
)

// PathCount is one entry of a ranked defence list.
type PathCount struct {
	Service string `json:"service"`
	Count   int    `json:"count"`
}

// PathCounts scores services by how much attack traffic they see.
type PathCounts map[string]int

// Ordered returns the entries by descending count, ties by name.
func (c PathCounts) Ordered() []PathCount {
	out := make([]PathCount, 0, len(c))
	for s, n := range c {
		out = append(out, PathCount{Service: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Service < out[j].Service
	})
	return out
}

// GenDefenceList seeds every gateway with its degree in the topology graph,
// then adds one to each service on the lightest path from -> to in the
// merged graph. An empty to skips the path step.
func GenDefenceList(merged *risk.MergedGraph, topo *topology.Topology, from, to string) (PathCounts, error) {
	if !merged.HasService(from) {
		return nil, model.UnreachableService(opDefenceList, from)
	}
	if to != "" && !merged.HasService(to) {
		return nil, model.UnreachableService(opDefenceList, to)
	}

	connectivity, err := topo.ConnectivityGraph()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", opDefenceList, err)
	}
	counts := make(PathCounts)
	for _, gw := range topo.GatewayServices() {
		degree, err := connectivity.Degree(gw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opDefenceList, err)
		}
		counts[gw] = degree
	}

	if to == "" {
		return counts, nil
	}
	path, _, ok := algorithms.WeightedShortestPath[string](merged, from, to)
	if !ok {
		return nil, model.NewError(opDefenceList).Unreachable().Service(to).
			Cause(fmt.Errorf("no path from %s", from)).Err()
	}
	for _, s := range path {
		counts[s]++
	}
	return counts, nil
}

// HoneypotPlacement is a decoy to add next to Target.
type HoneypotPlacement struct {
	Name     string   `json:"name"`
	Target   string   `json:"target"`
	Image    string   `json:"image"`
	Networks []string `json:"networks"`
	Exposed  bool     `json:"exposed"` // joins the exposed subnet with its target
}

// Service returns the topology entry of the decoy.
func (p HoneypotPlacement) Service() topology.Service {
	return topology.Service{
		Name:     p.Name,
		Image:    p.Image,
		Networks: slices.Clone(p.Networks),
		Exposed:  p.Exposed,
		Honeypot: true,
	}
}

// PlanHoneypots walks counts in order and places a decoy on the subnets of
// each service, exposed included, until a count drops below minimum. outside and existing
// decoys are skipped. Names continue after decoys already in topo.
func PlanHoneypots(counts PathCounts, topo *topology.Topology, minimum int) []HoneypotPlacement {
	var plan []HoneypotPlacement
	next := 0
	for _, entry := range counts.Ordered() {
		if entry.Service == model.Outside {
			continue
		}
		if entry.Count < minimum {
			break
		}
		svc, ok := topo.Service(entry.Service)
		if !ok || svc.Honeypot {
			continue
		}

		name := fmt.Sprintf("%s%d", HoneypotPrefix, next)
		for taken(topo, name) {
			next++
			name = fmt.Sprintf("%s%d", HoneypotPrefix, next)
		}
		next++

		plan = append(plan, HoneypotPlacement{
			Name:     name,
			Target:   entry.Service,
			Image:    HoneypotImage,
			Networks: slices.Clone(svc.Networks),
			Exposed:  svc.Exposed,
		})
	}
	return plan
}

func taken(topo *topology.Topology, name string) bool {
	_, ok := topo.Service(name)
	return ok
}
