package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Build modes reported by RecordSubnetBuild.
const (
	ModeSequential = "sequential"
	ModePool       = "pool"
	ModeFull       = "full"
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStage records one pipeline stage run with its duration
func (r *Registry) RecordStage(stage string, duration time.Duration, err error) {
	r.StageRunsTotal.WithLabelValues(stage, status(err)).Inc()
	r.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSubnetBuild counts sub-graph builds of one dispatch
func (r *Registry) RecordSubnetBuild(mode string, subnets int, err error) {
	r.SubnetBuildsTotal.WithLabelValues(mode, status(err)).Add(float64(subnets))
}

// SetProfiles records the size of the classified profile set
func (r *Registry) SetProfiles(services, vulnerabilities int) {
	r.ProfilesTotal.Set(float64(services))
	r.VulnerabilitiesTotal.Set(float64(vulnerabilities))
}

// RecordComposition records the composed graph size and pruned vertices
func (r *Registry) RecordComposition(vertices, edges, pruned int) {
	r.AttackGraphVertices.Set(float64(vertices))
	r.AttackGraphEdges.Set(float64(edges))
	r.PrunedVertices.Add(float64(pruned))
}

// RecordMerge records the merged graph size and the reachability table
func (r *Registry) RecordMerge(services, edges int, reachability map[string]float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.MergedGraphServices.Set(float64(services))
	r.MergedGraphEdges.Set(float64(edges))

	// Services removed since the last merge must not keep stale values
	r.Reachability.Reset()
	for service, p := range reachability {
		r.Reachability.WithLabelValues(service).Set(p)
	}
}

// RecordDeployment records deployed honeypots and the resulting reduction
func (r *Registry) RecordDeployment(honeypots int, meanReduction float64) {
	r.HoneypotsDeployedTotal.Add(float64(honeypots))
	r.ReachabilityReduction.Set(meanReduction)
}

// UpdateSystemMetrics samples runtime statistics
func (r *Registry) UpdateSystemMetrics(startTime time.Time) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.UptimeSeconds.Set(time.Since(startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
	r.MemorySysBytes.Set(float64(m.Sys))
}

// WriteTextfile writes every metric in the Prometheus text format, for the
// node exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
