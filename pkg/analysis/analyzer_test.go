package analysis

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-attackgraph/internal/fixture"
	"github.com/dd0wney/cluso-attackgraph/pkg/attackgraph"
	"github.com/dd0wney/cluso-attackgraph/pkg/defense"
	"github.com/dd0wney/cluso-attackgraph/pkg/exploit"
	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/metrics"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/parallel"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
)

type staticSource map[string][]model.Vulnerability

func (s staticSource) Load(ctx context.Context, images []string) (map[string][]model.Vulnerability, error) {
	out := make(map[string][]model.Vulnerability, len(images))
	for _, image := range images {
		out[image] = s[image]
	}
	return out, ctx.Err()
}

type failingSource struct{}

func (failingSource) Load(context.Context, []string) (map[string][]model.Vulnerability, error) {
	return nil, errors.New("reports unavailable")
}

// remote returns a network-exploitable vulnerability. Without rules it needs
// no privileges and grants ADMIN.
func remote(id string, score float64) model.Vulnerability {
	return model.Vulnerability{
		ID:          id,
		Description: "remote code execution",
		Vector: &model.AttackVector{
			AccessVector: "N", AccessComplexity: "L", Authentication: "N",
			Confidentiality: "C", Integrity: "C", Availability: "C",
		},
		Score: score,
		CPE:   model.CPEApplication,
	}
}

func newAnalyzer(t *testing.T, s fixture.Scenario, source VulnerabilitySource, opts ...Option) (*Analyzer, *metrics.Registry) {
	t.Helper()
	reg := metrics.NewRegistry()
	base := []Option{
		WithLogger(logging.NewNopLogger()),
		WithMetrics(reg),
		WithProfiles(s.Profiles),
	}
	return New(s.Topology, source, append(base, opts...)...), reg
}

func withPool(t *testing.T) Option {
	t.Helper()
	pool, err := parallel.NewWorkerPool(4, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return WithPool(pool)
}

func run(t *testing.T, a *Analyzer) *State {
	t.Helper()
	s, err := a.Run(context.Background())
	require.NoError(t, err)
	return s
}

func TestRunWebDB(t *testing.T) {
	a, reg := newAnalyzer(t, fixture.WebDB(), nil)
	s := run(t, a)

	assert.Equal(t, []string{attackgraph.FullKey}, keys(s.Subgraphs))
	assert.Equal(t, []string{"db", "outside", "web"}, s.Merged.Services())
	assert.Equal(t, 1.0, s.Reachability.Of(model.Outside))
	assert.Equal(t, 1.0, s.Reachability.Of("web"))
	assert.Greater(t, s.Reachability.Of("db"), 0.0)
	assert.Same(t, s, a.State())

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.StageRunsTotal.WithLabelValues(StageMerge, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.SubnetBuildsTotal.WithLabelValues(metrics.ModeFull, "ok")))
	assert.Equal(t, float64(s.Composed.Order()), testutil.ToFloat64(reg.AttackGraphVertices))
}

func TestRunPoolMatchesSequential(t *testing.T) {
	sequential, _ := newAnalyzer(t, fixture.ThreeTier(), nil)
	pooled, reg := newAnalyzer(t, fixture.ThreeTier(), nil, withPool(t))

	want := run(t, sequential)
	got := run(t, pooled)

	assert.NotContains(t, got.Subgraphs, attackgraph.FullKey)
	assert.Equal(t, want.Composed.Vertices(), got.Composed.Vertices())
	assert.Equal(t, want.Composed.Edges(), got.Composed.Edges())
	assert.Equal(t, want.Reachability, got.Reachability)
	assert.Equal(t, want.Merged.Edges(), got.Merged.Edges())
	assert.Greater(t, testutil.ToFloat64(reg.SubnetBuildsTotal.WithLabelValues(metrics.ModePool, "ok")), 0.0)
}

func TestBuildProfilesFromSource(t *testing.T) {
	topo, err := topology.New([]topology.Service{
		{Name: "web", Image: "nginx:1.19", Networks: []string{"default"}, Exposed: true},
		{Name: "db", Image: "postgres:13", Networks: []string{"default"}},
	})
	require.NoError(t, err)

	noVector := remote("CVE-NOVEC", 5)
	noVector.Vector = nil
	source := staticSource{"nginx:1.19": {remote("CVE-WEB", 10), noVector}}

	reg := metrics.NewRegistry()
	a := New(topo, source, WithLogger(logging.NewNopLogger()), WithMetrics(reg))
	s := run(t, a)

	require.Contains(t, s.Profiles, "web")
	web := s.Profiles["web"]
	assert.Equal(t, 1, web.Len())
	assert.Equal(t, model.PrivilegeNone, web.Pre["CVE-WEB"])
	assert.Equal(t, model.PrivilegeAdmin, web.Post["CVE-WEB"])
	assert.Equal(t, 0, s.Profiles["db"].Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.VulnerabilitiesTotal))
	assert.Equal(t, 1.0, s.Reachability.Of("web"))
}

func TestBuildProfilesFailures(t *testing.T) {
	s := fixture.WebDB()

	a := New(s.Topology, failingSource{}, WithLogger(logging.NewNopLogger()), WithMetrics(metrics.NewRegistry()))
	err := a.BuildProfiles(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), StageProfiles)
	assert.Nil(t, a.State().Profiles)

	partial := remote("CVE-PARTIAL", 5)
	partial.Vector.AccessVector = ""
	rules := exploit.RuleSet{Pre: []exploit.PreconditionRule{{
		Name: "remote", CPE: "?", AccessVector: "NETWORK", AccessComplexity: "?", Authentication: "?",
	}}}
	a = New(s.Topology, staticSource{"nginx:1.19": {partial}},
		WithRules(rules), WithLogger(logging.NewNopLogger()), WithMetrics(metrics.NewRegistry()))
	err = a.BuildProfiles(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsConfiguration(err))
}

func TestOperationsNeedEarlierStages(t *testing.T) {
	a, _ := newAnalyzer(t, fixture.WebDB(), nil)

	err := a.Merge(context.Background())
	assert.ErrorIs(t, err, ErrNoAttackGraph)

	_, err = a.GenDefenceList(model.Outside, "db")
	assert.ErrorIs(t, err, ErrNoRisk)

	_, err = a.DeployHoneypots(context.Background(), defense.PathCounts{"web": 3}, 1)
	assert.ErrorIs(t, err, ErrNoRisk)

	unprofiled := New(fixture.WebDB().Topology, nil, WithLogger(logging.NewNopLogger()), WithMetrics(metrics.NewRegistry()))
	err = unprofiled.BuildAttackGraph(context.Background())
	assert.True(t, model.IsConfiguration(err))
}

func TestCancelledContextKeepsState(t *testing.T) {
	a, _ := newAnalyzer(t, fixture.ThreeTier(), nil)
	before := run(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.BuildAttackGraph(ctx), context.Canceled)
	assert.ErrorIs(t, a.UpdateSubnets(ctx, []string{"back"}), context.Canceled)
	assert.Same(t, before, a.State())
}

func TestAddServiceRebuildsFullGraph(t *testing.T) {
	a, _ := newAnalyzer(t, fixture.WebDB(), staticSource{"redis:6": {remote("CVE-CACHE", 5)}})
	before := run(t, a)
	require.NotContains(t, before.Reachability, "cache")

	err := a.AddService(context.Background(), topology.Service{
		Name: "cache", Image: "redis:6", Networks: []string{"default"},
	})
	require.NoError(t, err)
	after := a.State()

	assert.Equal(t, []string{attackgraph.FullKey}, keys(after.Subgraphs))
	assert.True(t, after.Composed.HasVertex(model.Vertex{Service: "cache", Privilege: model.PrivilegeAdmin}))
	assert.Greater(t, after.Reachability.Of("cache"), 0.0)

	// the earlier snapshot is untouched
	assert.False(t, before.Composed.HasVertex(model.Vertex{Service: "cache", Privilege: model.PrivilegeAdmin}))
	assert.NotContains(t, before.Profiles, "cache")
}

func TestRemoveService(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []Option
	}{
		{"sequential", nil},
		{"pool", []Option{withPool(t)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newAnalyzer(t, fixture.ThreeTier(), nil, tc.opts...)
			before := run(t, a)
			require.Greater(t, before.Reachability.Of("db"), 0.0)

			require.NoError(t, a.RemoveService(context.Background(), "api"))
			after := a.State()

			assert.NotContains(t, after.Composed.Services(), "api")
			assert.NotContains(t, after.Composed.Services(), "db")
			assert.Equal(t, 0.0, after.Reachability.Of("db"))
			assert.NotContains(t, after.Profiles, "api")
			assert.Contains(t, before.Profiles, "api")

			err := a.RemoveService(context.Background(), "api")
			assert.True(t, model.IsReference(err))
		})
	}
}

func TestUpdateUnchangedSubnetIsStable(t *testing.T) {
	a, _ := newAnalyzer(t, fixture.ThreeTier(), nil, withPool(t))
	before := run(t, a)

	require.NoError(t, a.UpdateSubnets(context.Background(), []string{"front", "back"}))
	after := a.State()

	assert.NotSame(t, before, after)
	assert.Equal(t, before.Composed.Edges(), after.Composed.Edges())
	assert.Equal(t, before.Reachability, after.Reachability)
}

func TestGenDefenceList(t *testing.T) {
	a, _ := newAnalyzer(t, fixture.WebDB(), nil)
	run(t, a)

	counts, err := a.GenDefenceList(model.Outside, "db")
	require.NoError(t, err)
	assert.Equal(t, defense.PathCounts{"web": 3, model.Outside: 1, "db": 1}, counts)

	_, err = a.GenDefenceList(model.Outside, "nowhere")
	assert.True(t, model.IsUnreachableTarget(err))
}

func TestDeployHoneypots(t *testing.T) {
	source := staticSource{defense.HoneypotImage: {remote("CVE-DECOY", 9)}}
	a, reg := newAnalyzer(t, fixture.WebDB(), source)
	before := run(t, a)

	counts, err := a.GenDefenceList(model.Outside, "db")
	require.NoError(t, err)

	d, err := a.DeployHoneypots(context.Background(), counts, 2)
	require.NoError(t, err)
	after := a.State()

	require.Len(t, d.Placements, 1)
	p := d.Placements[0]
	assert.Equal(t, "honey-0", p.Name)
	assert.Equal(t, "web", p.Target)
	assert.Equal(t, []string{"default"}, p.Networks)
	assert.True(t, p.Exposed)

	assert.True(t, after.Topology.IsHoneypot("honey-0"))
	assert.Equal(t, []string{"default", model.Exposed}, after.Topology.SubnetsOf("honey-0"))
	assert.Equal(t, 1, after.Profiles["honey-0"].Len())
	assert.Equal(t, 0.0, after.Reachability.Of("honey-0"))
	assert.Less(t, after.Reachability.Of("db"), before.Reachability.Of("db"))
	assert.Equal(t, before.Reachability, d.Before)
	assert.Equal(t, after.Reachability, d.After)

	assert.Len(t, d.Comparison.Changes, 3)
	assert.Greater(t, d.Comparison.MeanReduction, 0.0)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.HoneypotsDeployedTotal))

	// decoys are not decoyed again
	again, err := a.DeployHoneypots(context.Background(), defense.PathCounts{"honey-0": 9}, 1)
	require.NoError(t, err)
	assert.Empty(t, again.Placements)
	assert.Equal(t, 0.0, again.Comparison.MeanReduction)
}

func TestDecoyOfExposedServiceFacesOutside(t *testing.T) {
	for _, mode := range []struct {
		name string
		opts []Option
	}{
		{"sequential", nil},
		{"pool", []Option{withPool(t)}},
	} {
		t.Run(mode.name, func(t *testing.T) {
			source := staticSource{defense.HoneypotImage: {remote("CVE-DECOY", 9)}}
			a, _ := newAnalyzer(t, fixture.WebDB(), source, mode.opts...)
			before := run(t, a)
			require.Equal(t, 1.0, before.Reachability.Of("web"))

			d, err := a.DeployHoneypots(context.Background(), defense.PathCounts{"web": 3}, 1)
			require.NoError(t, err)
			require.Len(t, d.Placements, 1)
			after := a.State()

			neighbours, err := after.Topology.Neighbors(model.Outside)
			require.NoError(t, err)
			assert.Equal(t, []string{"honey-0", model.Outside, "web"}, neighbours)

			_, ok := after.Merged.Edge(model.Outside, "honey-0")
			assert.True(t, ok, "outside attacks the decoy directly")
			assert.Greater(t, after.Merged.Probability(model.Outside, "honey-0"), 0.0)
			assert.Zero(t, after.Reachability.Of("honey-0"))
			assert.Less(t, after.Reachability.Of("web"), before.Reachability.Of("web"))
			assert.Less(t, after.Reachability.Of("db"), before.Reachability.Of("db"))
		})
	}
}

func TestDeployHoneypotsBelowMinimum(t *testing.T) {
	a, _ := newAnalyzer(t, fixture.WebDB(), nil)
	before := run(t, a)

	d, err := a.DeployHoneypots(context.Background(), defense.PathCounts{"web": 3, "db": 1}, 5)
	require.NoError(t, err)
	assert.Empty(t, d.Placements)
	assert.Equal(t, before.Reachability, a.State().Reachability)
	assert.Equal(t, before.Topology.ServiceNames(), a.State().Topology.ServiceNames())
}

func TestConcurrentReaders(t *testing.T) {
	a, _ := newAnalyzer(t, fixture.ThreeTier(), nil, withPool(t))
	run(t, a)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			s := a.State()
			assert.NotNil(t, s.Reachability)
		}
	}()
	for i := 0; i < 10; i++ {
		require.NoError(t, a.UpdateSubnets(context.Background(), []string{"back"}))
	}
	<-done
}

func TestHoneypotsNeverRaiseReachability(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("deploying decoys never increases any reachability", prop.ForAll(
		func(seed int64, decoyScore float64) bool {
			s := fixture.Random(seed)
			source := staticSource{defense.HoneypotImage: {remote("CVE-DECOY", decoyScore)}}
			a := New(s.Topology, source,
				WithProfiles(s.Profiles),
				WithLogger(logging.NewNopLogger()),
				WithMetrics(metrics.NewRegistry()))
			before, err := a.Run(context.Background())
			if err != nil {
				return false
			}
			if !before.Merged.HasService(model.Outside) {
				return true
			}
			counts, err := a.GenDefenceList(model.Outside, "")
			if err != nil {
				return false
			}
			d, err := a.DeployHoneypots(context.Background(), counts, 0)
			if err != nil {
				return false
			}
			for service, p := range before.Reachability {
				if d.After.Of(service) > p+1e-12 {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.Float64Range(0, 10),
	))

	properties.TestingRun(t)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
