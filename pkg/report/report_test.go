package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-attackgraph/internal/fixture"
	"github.com/dd0wney/cluso-attackgraph/pkg/analysis"
	"github.com/dd0wney/cluso-attackgraph/pkg/defense"
	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/metrics"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
)

func webDBAnalyzer(t *testing.T) *analysis.Analyzer {
	t.Helper()
	s := fixture.WebDB()
	a := analysis.New(s.Topology, nil,
		analysis.WithLogger(logging.NewNopLogger()),
		analysis.WithMetrics(metrics.NewRegistry()),
		analysis.WithProfiles(s.Profiles),
	)
	_, err := a.Run(context.Background())
	require.NoError(t, err)
	return a
}

func webDBReport(t *testing.T) *Report {
	t.Helper()
	r, err := Build(webDBAnalyzer(t).State())
	require.NoError(t, err)
	return r
}

func TestBuildRequiresRisk(t *testing.T) {
	s := fixture.WebDB()
	_, err := Build(analysis.NewState(s.Topology, s.Profiles))
	assert.ErrorIs(t, err, ErrIncomplete)

	_, err = Build(nil)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestBuildWebDB(t *testing.T) {
	r := webDBReport(t)

	_, err := uuid.Parse(r.RunID)
	assert.NoError(t, err)
	assert.False(t, r.GeneratedAt.IsZero())

	assert.Equal(t, 2, r.Summary.Services)
	assert.Equal(t, 2, r.Summary.Subnets)
	assert.Equal(t, 2, r.Summary.Vulnerabilities)
	assert.Equal(t, 2, r.Summary.Compromisable)
	assert.Equal(t, 0, r.Summary.Honeypots)
	assert.InDelta(t, 1.0, r.Summary.MeanReachability, 1e-9)
	assert.Len(t, r.AttackEdges, r.Summary.AttackEdges)
	assert.Len(t, r.MergedEdges, r.Summary.MergedEdges)

	require.Len(t, r.Services, 2)
	db, web := r.Services[0], r.Services[1]
	assert.Equal(t, "db", db.Name)
	assert.Equal(t, "web", web.Name)

	assert.True(t, web.Gateway)
	assert.Equal(t, []string{"default", model.Exposed}, web.Subnets)
	assert.Equal(t, "ADMIN", web.MaxPrivilege)
	assert.Equal(t, 1, web.Hops)
	assert.GreaterOrEqual(t, web.PathWeight, 0.0)

	assert.False(t, db.Gateway)
	assert.Equal(t, "USER", db.MaxPrivilege)
	assert.Equal(t, 2, db.Hops)
	assert.Greater(t, db.PathWeight, web.PathWeight)
}

func TestProperties(t *testing.T) {
	r := webDBReport(t)
	p := r.Properties

	assert.GreaterOrEqual(t, p.AttackDepth, 2)
	assert.Equal(t, []string{"web"}, p.Frontier[1])
	assert.Equal(t, []string{"db"}, p.Frontier[2])
	assert.Positive(t, p.Components)
	assert.NotEmpty(t, p.LargestComponent)

	require.NotEmpty(t, p.Chokepoints)
	assert.Equal(t, "web", p.Chokepoints[0].Service)
	for _, c := range append(p.Chokepoints, p.Hubs...) {
		assert.NotEqual(t, model.Outside, c.Service)
	}
}

func TestTopRisks(t *testing.T) {
	r := &Report{Services: []ServiceRow{
		{Name: "a", Reachability: 0.2},
		{Name: "b", Reachability: 0.9},
		{Name: "c", Reachability: 0.9},
		{Name: "d", Reachability: 0},
		{Name: "honey-0", Reachability: 1, Honeypot: true},
	}}

	top := r.TopRisks(2)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].Name)
	assert.Equal(t, "c", top[1].Name)

	assert.Len(t, r.TopRisks(-1), 3)
}

func TestDefenceAndDeployment(t *testing.T) {
	a := webDBAnalyzer(t)
	counts, err := a.GenDefenceList(model.Outside, "db")
	require.NoError(t, err)
	d, err := a.DeployHoneypots(context.Background(), counts, 2)
	require.NoError(t, err)

	r, err := Build(a.State())
	require.NoError(t, err)
	r.WithDefenceList(counts).WithDeployment(d)

	require.NotEmpty(t, r.DefenceList)
	assert.Equal(t, defense.PathCount{Service: "web", Count: 3}, r.DefenceList[0])
	assert.Equal(t, 1, r.Summary.Honeypots)

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	out := buf.String()
	for _, want := range []string{"Attack graph report", "SERVICE", "honey-0", "Defence list", "Honeypots deployed: 1", "REDUCTION"} {
		assert.Contains(t, out, want)
	}
}

func TestWriteWithoutExtras(t *testing.T) {
	r := webDBReport(t)
	assert.Empty(t, r.DefenceTable())
	assert.Empty(t, r.DeploymentTable())

	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	assert.NotContains(t, buf.String(), "Defence list")
	assert.Contains(t, r.ServiceTable(), "postgres:13")
}

func TestSaveLoad(t *testing.T) {
	r := webDBReport(t)
	dir := t.TempDir()

	for _, name := range []string{"report.json", "nested/report.json" + CompressedExt} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, r.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, r.RunID, loaded.RunID)
			assert.True(t, r.GeneratedAt.Equal(loaded.GeneratedAt))
			assert.Equal(t, r.Summary, loaded.Summary)
			assert.Equal(t, r.Services, loaded.Services)
			assert.Equal(t, r.Properties, loaded.Properties)
			assert.Equal(t, r.AttackEdges, loaded.AttackEdges)

			_, err = os.Stat(path + ".tmp")
			assert.True(t, os.IsNotExist(err))
		})
	}
}

func TestCompressedFileIsSnappy(t *testing.T) {
	r := webDBReport(t)
	path := filepath.Join(t.TempDir(), "report.json"+CompressedExt)
	require.NoError(t, r.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = Unmarshal(raw)
	assert.Error(t, err, "compressed bytes should not decode as JSON")

	plain, err := r.Marshal()
	require.NoError(t, err)
	assert.Less(t, len(raw), len(plain))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json"+CompressedExt)
	require.NoError(t, os.WriteFile(bad, []byte("not snappy"), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "decompress")
}
