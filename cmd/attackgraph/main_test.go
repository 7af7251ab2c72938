package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-attackgraph/pkg/report"
	"github.com/dd0wney/cluso-attackgraph/pkg/vulndb"
)

const composeYAML = `services:
  web:
    image: nginx:1.19
    ports:
      - "80:80"
    networks: [front]
  db:
    image: postgres:13
    networks: [front]
networks:
  front: {}
`

func clairReport(id string) string {
	return `{"Layers": [{"Layer": {"Features": [{"Name": "pkg", "Vulnerabilities": [
  {"Name": "` + id + `", "Description": "remote attackers run code",
   "Metadata": {"NVD": {"CVSSv2": {"Vectors": "AV:N/AC:L/Au:N/C:C/I:C/A:C", "Score": 10}}}}
]}]}}]}`
}

// project lays out a deployment, its reports and a configuration in a
// temporary directory and returns the directory and the config path.
func project(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	write("docker-compose.yml", composeYAML)
	write(filepath.Join("reports", vulndb.ReportFileName("nginx:1.19")), clairReport("CVE-2021-1000"))
	write(filepath.Join("reports", vulndb.ReportFileName("postgres:13")), clairReport("CVE-2021-2000"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "feeds"), 0o755))

	cfg := "nvd-feed-path: " + filepath.Join(dir, "feeds") + "\n" +
		"reports-path: " + filepath.Join(dir, "reports") + "\n" +
		"results-path: " + filepath.Join(dir, "results") + "\n" +
		"log-level: error\n" + extra
	write("config.yml", cfg)
	return dir, filepath.Join(dir, "config.yml")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAnalyze(t *testing.T) {
	dir, cfg := project(t, "export-report: true\ndraw-graphs: true\n")
	metricsPath := filepath.Join(dir, "metrics.prom")

	out, err := execute(t, "analyze", dir, "--config", cfg, "--metrics", metricsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Attack graph report")
	assert.Contains(t, out, "postgres:13")

	r, err := report.Load(filepath.Join(dir, "results", reportFileName))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Summary.Services)
	assert.Equal(t, 2, r.Summary.Compromisable)
	assert.Nil(t, r.Deployment)

	for _, name := range []string{"attack-graph.dot", "merged-graph.dot"} {
		assert.FileExists(t, filepath.Join(dir, "results", name))
	}
	assert.NoFileExists(t, filepath.Join(dir, "results", "attack-graph.png"))

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "attackgraph_")
}

func TestAnalyzeWithPoolAndHoneypots(t *testing.T) {
	dir, cfg := project(t, "export-report: true\ndeploy-honeypots: true\nhoneypot-destination: db\nhoneypot-minimum: 2\n")

	out, err := execute(t, "analyze", dir, "--config", cfg, "-j", "4", "--compress", "--quiet")
	require.NoError(t, err)
	assert.Empty(t, out)

	r, err := report.Load(filepath.Join(dir, "results", reportFileName+report.CompressedExt))
	require.NoError(t, err)
	require.NotNil(t, r.Deployment)
	require.NotEmpty(t, r.Deployment.Placements)
	assert.Equal(t, "honey-0", r.Deployment.Placements[0].Name)
	assert.Equal(t, "web", r.Deployment.Placements[0].Target)
	assert.NotEmpty(t, r.DefenceList)
	assert.Equal(t, 1, r.Summary.Honeypots)
}

func TestProfilesJSON(t *testing.T) {
	dir, cfg := project(t, "")

	out, err := execute(t, "profiles", dir, "--config", cfg, "--json")
	require.NoError(t, err)

	var entries []profileEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, profileEntry{
		Service:       "db",
		Vulnerability: "CVE-2021-2000",
		Precondition:  "NONE",
		Postcondition: "ADMIN",
		Score:         10,
	}, entries[0])
	assert.Equal(t, "web", entries[1].Service)
}

func TestProfilesTable(t *testing.T) {
	dir, cfg := project(t, "")
	out, err := execute(t, "profiles", dir, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "CVE-2021-1000")
	assert.Contains(t, out, "GRANTS")
}

func TestDefend(t *testing.T) {
	dir, cfg := project(t, "")

	out, err := execute(t, "defend", dir, "--config", cfg, "--to", "db", "--minimum", "2", "--deploy")
	require.NoError(t, err)
	assert.Contains(t, out, "PATHS")
	assert.Contains(t, out, "honey-0 (nginx) placed next to web")
	assert.Contains(t, out, "mean reduction")

	_, err = execute(t, "defend", dir, "--config", cfg, "--to", "nowhere")
	assert.Error(t, err)
}

func TestConfigErrors(t *testing.T) {
	dir, cfg := project(t, "decay-base: 0.5\n")
	_, err := execute(t, "analyze", dir, "--config", cfg)
	assert.ErrorContains(t, err, "DecayBase")

	_, err = execute(t, "analyze", dir, "--config", filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)

	good, cfg := project(t, "")
	_, err = execute(t, "analyze", good, "--config", cfg, "-j", "1000")
	assert.Error(t, err)
}

func TestMissingCompose(t *testing.T) {
	_, cfg := project(t, "")
	_, err := execute(t, "analyze", t.TempDir(), "--config", cfg)
	assert.ErrorContains(t, err, "compose")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "attackgraph dev")
}

func TestCheck(t *testing.T) {
	dir, cfg := project(t, "export-report: true\n")

	out, err := execute(t, "check", dir, "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "compose")
	assert.Contains(t, out, "results")
	// the feeds directory is empty
	assert.Contains(t, out, "overall: degraded")

	_, err = execute(t, "check", t.TempDir(), "--config", cfg)
	assert.ErrorIs(t, err, errNotReady)
}
