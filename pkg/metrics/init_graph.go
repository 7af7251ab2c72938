package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initGraphMetrics() {
	r.AttackGraphVertices = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "attackgraph_composed_vertices",
			Help: "Vertices of the composed attack graph",
		},
	)

	r.AttackGraphEdges = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "attackgraph_composed_edges",
			Help: "Edges of the composed attack graph",
		},
	)

	r.PrunedVertices = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "attackgraph_pruned_vertices_total",
			Help: "Total number of unreachable vertices pruned during composition",
		},
	)

	r.MergedGraphServices = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "attackgraph_merged_services",
			Help: "Services of the merged risk graph",
		},
	)

	r.MergedGraphEdges = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "attackgraph_merged_edges",
			Help: "Edges of the merged risk graph",
		},
	)

	r.Reachability = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "attackgraph_reachability",
			Help: "Probability that an outside attacker controls the service",
		},
		[]string{"service"},
	)
}

func (r *Registry) initDefenseMetrics() {
	r.HoneypotsDeployedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "attackgraph_honeypots_deployed_total",
			Help: "Total number of honeypots deployed",
		},
	)

	r.ReachabilityReduction = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "attackgraph_reachability_mean_reduction",
			Help: "Mean relative reachability reduction of the last deployment",
		},
	)
}
