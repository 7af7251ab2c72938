// Package report summarises an analysis state for terminals and files.
package report

import (
	"cmp"
	"errors"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-attackgraph/pkg/algorithms"
	"github.com/dd0wney/cluso-attackgraph/pkg/analysis"
	"github.com/dd0wney/cluso-attackgraph/pkg/attackgraph"
	"github.com/dd0wney/cluso-attackgraph/pkg/defense"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/risk"
)

// ErrIncomplete is returned for a state that has not been merged yet.
var ErrIncomplete = errors.New("analysis state has no risk results")

// Report is everything worth keeping from one run.
type Report struct {
	RunID       string               `json:"run_id"`
	GeneratedAt time.Time            `json:"generated_at"`
	Summary     Summary              `json:"summary"`
	Services    []ServiceRow         `json:"services"`
	AttackEdges []attackgraph.Edge   `json:"attack_edges"`
	MergedEdges []risk.Edge          `json:"merged_edges"`
	Properties  Properties           `json:"properties"`
	DefenceList []defense.PathCount  `json:"defence_list,omitempty"`
	Deployment  *analysis.Deployment `json:"deployment,omitempty"`
}

// Summary holds the headline counts.
type Summary struct {
	Services         int     `json:"services"`
	Subnets          int     `json:"subnets"`
	Gateways         int     `json:"gateways"`
	Honeypots        int     `json:"honeypots"`
	Vulnerabilities  int     `json:"vulnerabilities"`
	Subgraphs        int     `json:"subgraphs"`
	AttackVertices   int     `json:"attack_vertices"`
	AttackEdges      int     `json:"attack_edges"`
	MergedServices   int     `json:"merged_services"`
	MergedEdges      int     `json:"merged_edges"`
	Compromisable    int     `json:"compromisable"`
	MeanReachability float64 `json:"mean_reachability"`
}

// ServiceRow describes one service.
type ServiceRow struct {
	Name            string   `json:"name"`
	Image           string   `json:"image"`
	Subnets         []string `json:"subnets"`
	Gateway         bool     `json:"gateway"`
	Honeypot        bool     `json:"honeypot"`
	Vulnerabilities int      `json:"vulnerabilities"`
	MaxPrivilege    string   `json:"max_privilege,omitempty"`
	Reachability    float64  `json:"reachability"`
	Hops            int      `json:"hops"`        // -1 when unreachable
	PathWeight      float64  `json:"path_weight"` // lightest total weight from outside, -1 when unreachable
	Betweenness     float64  `json:"betweenness"`
}

// Build creates a report from a merged state.
func Build(s *analysis.State) (*Report, error) {
	if s == nil || !s.HasRisk() {
		return nil, ErrIncomplete
	}

	r := &Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		AttackEdges: s.Composed.Edges(),
		MergedEdges: s.Merged.Edges(),
		Properties:  computeProperties(s.Composed, s.Merged),
	}
	r.Services = serviceRows(s)
	r.Summary = summarize(s, r.Services)
	return r, nil
}

// WithDefenceList attaches a ranked defence list.
func (r *Report) WithDefenceList(counts defense.PathCounts) *Report {
	r.DefenceList = counts.Ordered()
	return r
}

// WithDeployment attaches the outcome of a honeypot deployment.
func (r *Report) WithDeployment(d *analysis.Deployment) *Report {
	r.Deployment = d
	return r
}

func serviceRows(s *analysis.State) []ServiceRow {
	maxPriv := make(map[string]model.Privilege)
	for _, v := range s.Composed.Vertices() {
		if p, ok := maxPriv[v.Service]; !ok || v.Privilege > p {
			maxPriv[v.Service] = v.Privilege
		}
	}

	hops := algorithms.HopDistances[string](s.Merged, model.Outside)
	betweenness := algorithms.BetweennessCentrality[string](s.Merged)

	rows := make([]ServiceRow, 0, len(s.Topology.ServiceNames()))
	for _, name := range s.Topology.ServiceNames() {
		svc, _ := s.Topology.Service(name)
		row := ServiceRow{
			Name:         name,
			Image:        svc.Image,
			Subnets:      s.Topology.SubnetsOf(name),
			Gateway:      s.Topology.IsGateway(name),
			Honeypot:     svc.Honeypot,
			Reachability: s.Reachability.Of(name),
			Hops:         -1,
			PathWeight:   math.Inf(1),
			Betweenness:  betweenness[name],
		}
		if p, ok := s.Profiles[name]; ok {
			row.Vulnerabilities = p.Len()
		}
		if p, ok := maxPriv[name]; ok {
			row.MaxPrivilege = p.String()
		}
		if h, ok := hops[name]; ok {
			row.Hops = h
			if s.Merged.HasService(model.Outside) {
				if _, w, ok := algorithms.WeightedShortestPath[string](s.Merged, model.Outside, name); ok {
					row.PathWeight = w
				}
			}
		}
		rows = append(rows, row)
	}
	// JSON cannot carry infinities
	for i := range rows {
		if math.IsInf(rows[i].PathWeight, 1) {
			rows[i].PathWeight = -1
		}
	}
	return rows
}

func summarize(s *analysis.State, rows []ServiceRow) Summary {
	sum := Summary{
		Services:       len(rows),
		Subnets:        len(s.Topology.SubnetNames()),
		Gateways:       len(s.Topology.GatewayServices()),
		Subgraphs:      len(s.Subgraphs),
		AttackVertices: s.Composed.Order(),
		AttackEdges:    s.Composed.Size(),
		MergedServices: s.Merged.Order(),
		MergedEdges:    s.Merged.Size(),
	}
	total, counted := 0.0, 0
	for _, row := range rows {
		sum.Vulnerabilities += row.Vulnerabilities
		if row.Honeypot {
			sum.Honeypots++
			continue
		}
		if row.Reachability > 0 {
			sum.Compromisable++
		}
		total += row.Reachability
		counted++
	}
	if counted > 0 {
		sum.MeanReachability = total / float64(counted)
	}
	return sum
}

// TopRisks returns the n non-honeypot services with the highest
// reachability, ties by name.
func (r *Report) TopRisks(n int) []ServiceRow {
	rows := make([]ServiceRow, 0, len(r.Services))
	for _, row := range r.Services {
		if !row.Honeypot && row.Reachability > 0 {
			rows = append(rows, row)
		}
	}
	slices.SortStableFunc(rows, func(a, b ServiceRow) int {
		return cmp.Compare(b.Reachability, a.Reachability)
	})
	if n >= 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// PathCountView is a defence list entry with the reachability of its service.
type PathCountView struct {
	defense.PathCount
	Reachability float64
}

// DefenceView returns the defence list in rank order with reachability.
func (r *Report) DefenceView() []PathCountView {
	reach := make(map[string]float64, len(r.Services))
	for _, s := range r.Services {
		reach[s.Name] = s.Reachability
	}
	out := make([]PathCountView, 0, len(r.DefenceList))
	for _, pc := range r.DefenceList {
		out = append(out, PathCountView{PathCount: pc, Reachability: reach[pc.Service]})
	}
	return out
}
