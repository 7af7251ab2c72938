package attackgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-attackgraph/internal/fixture"
	"github.com/dd0wney/cluso-attackgraph/pkg/exploit"
	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/parallel"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
)

func v(service string, p model.Privilege) model.Vertex {
	return model.Vertex{Service: service, Privilege: p}
}

func newPool(t *testing.T, workers int) *parallel.WorkerPool {
	t.Helper()
	pool, err := parallel.NewWorkerPool(workers, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func builderFor(s fixture.Scenario, opts ...Option) *Builder {
	opts = append([]Option{WithLogger(logging.NewNopLogger())}, opts...)
	return NewBuilder(s.Topology, s.Profiles, opts...)
}

func TestWebDBScenario(t *testing.T) {
	s := fixture.WebDB()

	for _, mode := range []struct {
		name string
		opts []Option
	}{
		{"full traversal", nil},
		{"per subnet on pool", []Option{WithPool(newPool(t, 2))}},
	} {
		t.Run(mode.name, func(t *testing.T) {
			subgraphs, err := builderFor(s, mode.opts...).Build(context.Background(), s.Topology.SubnetNames())
			require.NoError(t, err)
			g := Compose(subgraphs)

			entry, ok := g.Edge(model.Root, v("web", model.PrivilegeAdmin))
			require.True(t, ok, "outside must reach web as ADMIN")
			assert.Equal(t, []string{"CVE-1"}, entry.Labels)
			assert.InDelta(t, Weight(DefaultDecayBase, 10), entry.Weight, 1e-12)

			pivot, ok := g.Edge(v("web", model.PrivilegeAdmin), v("db", model.PrivilegeUser))
			require.True(t, ok, "ADMIN on web satisfies the USER precondition of CVE-2")
			assert.Equal(t, []string{"CVE-2"}, pivot.Labels)
		})
	}
}

func TestBuildModes(t *testing.T) {
	s := fixture.ThreeTier()

	full, err := builderFor(s).Build(context.Background(), s.Topology.SubnetNames())
	require.NoError(t, err)
	assert.Equal(t, []string{FullKey}, keys(full))

	pooled, err := builderFor(s, WithPool(newPool(t, 3))).Build(context.Background(), s.Topology.SubnetNames())
	require.NoError(t, err)
	assert.Equal(t, []string{"back", "exposed", "front"}, keys(pooled))

	sequential, err := builderFor(s).Build(context.Background(), []string{"front", "back", "front"})
	require.NoError(t, err)
	assert.Equal(t, []string{"back", "front"}, keys(sequential))
}

func TestPoolMatchesSequential(t *testing.T) {
	s := fixture.ThreeTier()
	subnets := []string{"back", "front"}

	sequential, err := builderFor(s).Build(context.Background(), subnets)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		pooled, err := builderFor(s, WithPool(newPool(t, 4))).Build(context.Background(), subnets)
		require.NoError(t, err)
		require.Equal(t, keys(sequential), keys(pooled))
		for name := range sequential {
			assert.Equal(t, sequential[name].Edges(), pooled[name].Edges(), "subnet %s", name)
		}
	}
}

func TestSingleExploitVersusLabels(t *testing.T) {
	topo, err := topology.New([]topology.Service{
		{Name: "web", Networks: []string{"front"}, Exposed: true},
	})
	require.NoError(t, err)
	s := fixture.Scenario{Topology: topo, Profiles: map[string]*exploit.Profile{
		"web": fixture.Profile(
			fixture.Vuln{ID: "CVE-A", Pre: model.PrivilegeNone, Post: model.PrivilegeUser, Score: 5},
			fixture.Vuln{ID: "CVE-B", Pre: model.PrivilegeNone, Post: model.PrivilegeUser, Score: 7},
		),
	}}
	target := v("web", model.PrivilegeUser)

	tests := []struct {
		name   string
		flags  Flags
		labels []string
	}{
		{"single exploit", Flags{SingleExploitPerService: true}, []string{"CVE-A"}},
		{"multi label", Flags{}, []string{"CVE-A", "CVE-B"}},
		{"single label", Flags{SingleEdgeLabel: true}, []string{"CVE-A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := builderFor(s, WithFlags(tt.flags)).BuildFull()
			require.NoError(t, err)

			edge, ok := g.Edge(model.Root, target)
			require.True(t, ok)
			assert.Equal(t, tt.labels, edge.Labels)
			assert.Equal(t, 1, g.OutDegree(model.Root), "one edge, never one per vulnerability")
		})
	}
}

func TestSelfEscalation(t *testing.T) {
	topo, err := topology.New([]topology.Service{
		{Name: "web", Networks: []string{"front"}, Exposed: true},
	})
	require.NoError(t, err)
	s := fixture.Scenario{Topology: topo, Profiles: map[string]*exploit.Profile{
		"web": fixture.Profile(
			fixture.Vuln{ID: "CVE-entry", Pre: model.PrivilegeNone, Post: model.PrivilegeLowUser, Score: 5},
			fixture.Vuln{ID: "CVE-root", Pre: model.PrivilegeLowUser, Post: model.PrivilegeAdmin, Score: 7.2},
		),
	}}

	g, err := builderFor(s).BuildFull()
	require.NoError(t, err)

	_, ok := g.Edge(v("web", model.PrivilegeLowUser), v("web", model.PrivilegeAdmin))
	assert.True(t, ok, "escalation on the same service")
	_, ok = g.Edge(v("web", model.PrivilegeAdmin), v("web", model.PrivilegeLowUser))
	assert.False(t, ok, "no self-edge towards a lower privilege")
	_, ok = g.Edge(v("web", model.PrivilegeAdmin), v("web", model.PrivilegeAdmin))
	assert.False(t, ok, "no self-edge at the same privilege")
}

func TestHoneypotIsDeadEnd(t *testing.T) {
	s, _ := fixture.WebDB().WithHoneypot("honey-0", "web", fixture.Profile(
		fixture.Vuln{ID: "CVE-decoy", Pre: model.PrivilegeNone, Post: model.PrivilegeAdmin, Score: 9},
	))

	g := Compose(mustBuild(t, builderFor(s, WithPool(newPool(t, 2))), s.Topology.SubnetNames()))

	decoy := v("honey-0", model.PrivilegeAdmin)
	require.True(t, g.HasVertex(decoy), "attackers can be lured onto the decoy")
	assert.Zero(t, g.OutDegree(decoy), "a decoy grants no foothold")
}

func TestZeroVulnerabilityGatewayBlocksPath(t *testing.T) {
	topo, err := topology.New([]topology.Service{
		{Name: "proxy", Networks: []string{"front", "back"}, Exposed: true},
		{Name: "db", Networks: []string{"back"}},
	})
	require.NoError(t, err)
	s := fixture.Scenario{Topology: topo, Profiles: map[string]*exploit.Profile{
		"proxy": exploit.EmptyProfile(),
		"db":    fixture.Profile(fixture.Vuln{ID: "CVE-db", Pre: model.PrivilegeNone, Post: model.PrivilegeAdmin, Score: 9}),
	}}

	for _, opts := range [][]Option{nil, {WithPool(newPool(t, 2))}} {
		subgraphs, err := builderFor(s, opts...).Build(context.Background(), topo.SubnetNames())
		require.NoError(t, err)
		g := Compose(subgraphs)
		assert.Zero(t, g.OutDegree(model.Root))
		for _, vx := range g.Vertices() {
			assert.NotEqual(t, "proxy", vx.Service)
			assert.NotEqual(t, "db", vx.Service)
		}
	}
}

func TestEmptySubgraphsDropped(t *testing.T) {
	s := fixture.ThreeTier()
	s.Profiles["web"] = exploit.EmptyProfile()

	subgraphs, err := builderFor(s, WithPool(newPool(t, 2))).Build(context.Background(), []string{"back", "exposed", "front"})
	require.NoError(t, err)
	assert.NotContains(t, subgraphs, "exposed", "outside cannot exploit web, nothing else is exposed")
	assert.NotContains(t, subgraphs, "front", "api only escalates to USER which it starts at")
	assert.Contains(t, subgraphs, "back")
}

func TestBuildFailures(t *testing.T) {
	s := fixture.ThreeTier()
	delete(s.Profiles, "db")

	for _, mode := range []struct {
		name string
		opts []Option
	}{
		{"sequential", nil},
		{"pool", []Option{WithPool(newPool(t, 4))}},
	} {
		t.Run(mode.name, func(t *testing.T) {
			_, err := builderFor(s, mode.opts...).Build(context.Background(), []string{"back", "front"})
			require.Error(t, err)
			assert.True(t, model.IsReference(err))
			assert.Contains(t, err.Error(), "service db")
		})
	}

	_, err := builderFor(fixture.ThreeTier()).BuildSubnet("nope")
	assert.True(t, model.IsReference(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = builderFor(fixture.ThreeTier()).Build(ctx, []string{"front"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWeight(t *testing.T) {
	assert.Equal(t, 1.0, Weight(1.2, 0))
	assert.InDelta(t, 1/1.2, Weight(1.2, 1), 1e-12)
	assert.InDelta(t, 1e-10, Weight(10, 10), 1e-20)
	assert.Equal(t, DefaultDecayBase, builderFor(fixture.WebDB(), WithDecayBase(0.5)).decayBase, "bases <= 1 are ignored")
}

func TestBuilderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Every edge carries only labels whose precondition the source holds and
	// whose postcondition is the destination privilege.
	properties.Property("edges respect pre and postconditions", prop.ForAll(
		func(seed int64, single bool) bool {
			s := fixture.Random(seed)
			b := builderFor(s, WithFlags(Flags{SingleExploitPerService: single}))
			g, err := b.BuildFull()
			if err != nil {
				return false
			}
			for _, e := range g.Edges() {
				profile := s.Profiles[e.To.Service]
				for _, id := range e.Labels {
					if profile.Pre[id] > e.From.Privilege || profile.Post[id] != e.To.Privilege {
						return false
					}
				}
				if e.From.Service == e.To.Service && e.To.Privilege <= e.From.Privilege {
					return false
				}
				if e.To.Service == model.Outside {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.Bool(),
	))

	// Pool and sequential builds of the same subnets agree.
	properties.Property("execution mode does not change sub-graphs", prop.ForAll(
		func(seed int64) bool {
			s := fixture.Random(seed)
			var subnets []string
			for _, name := range s.Topology.SubnetNames() {
				if name != model.Exposed {
					subnets = append(subnets, name)
				}
			}
			pool, err := parallel.NewWorkerPool(3, logging.NewNopLogger())
			if err != nil {
				return false
			}
			defer pool.Close()

			seq, err1 := builderFor(s).Build(context.Background(), subnets)
			par, err2 := builderFor(s, WithPool(pool)).Build(context.Background(), subnets)
			if err1 != nil || err2 != nil || len(seq) != len(par) {
				return false
			}
			return graphsEqual(Compose(seq), Compose(par))
		},
		gen.Int64(),
	))

	properties.TestingRun(t)
}

func mustBuild(t *testing.T, b *Builder, subnets []string) map[string]*Graph {
	t.Helper()
	subgraphs, err := b.Build(context.Background(), subnets)
	require.NoError(t, err)
	return subgraphs
}
