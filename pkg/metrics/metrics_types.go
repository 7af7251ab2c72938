// Package metrics exposes pipeline metrics through a Prometheus registry.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// Pipeline Metrics
	StageDuration        *prometheus.HistogramVec
	StageRunsTotal       *prometheus.CounterVec
	SubnetBuildsTotal    *prometheus.CounterVec
	ProfilesTotal        prometheus.Gauge
	VulnerabilitiesTotal prometheus.Gauge

	// Graph Metrics
	AttackGraphVertices prometheus.Gauge
	AttackGraphEdges    prometheus.Gauge
	PrunedVertices      prometheus.Counter
	MergedGraphServices prometheus.Gauge
	MergedGraphEdges    prometheus.Gauge
	Reachability        *prometheus.GaugeVec

	// Defense Metrics
	HoneypotsDeployedTotal prometheus.Counter
	ReachabilityReduction  prometheus.Gauge

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initPipelineMetrics()
	r.initGraphMetrics()
	r.initDefenseMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
