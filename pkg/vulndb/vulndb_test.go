package vulndb

import (
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/parallel"
)

const (
	feedsDir   = "testdata/feeds"
	reportsDir = "testdata/reports"
	nginx      = "library/nginx:1.19"
)

func TestParseNVDFile(t *testing.T) {
	feed, err := ParseNVDFile(filepath.Join(feedsDir, "nvdcve-1.1-2021.json"))
	require.NoError(t, err)
	require.Len(t, feed, 2, "items without CVSS v2 are skipped")

	rce := feed["CVE-2021-0001"]
	assert.Equal(t, "AV:N/AC:L/Au:N/C:P/I:P/A:P", rce.Vector)
	assert.Equal(t, 7.5, rce.Score)
	assert.Equal(t, model.CPEApplication, rce.CPE)
	assert.Contains(t, rce.Description, "execute arbitrary code")

	kernel := feed["CVE-2021-0002"]
	assert.Equal(t, model.CPEOS, kernel.CPE, "cpe from children")
	assert.Zero(t, kernel.Score)
}

func TestParseNVDLegacyCPE(t *testing.T) {
	feed, err := ParseNVDFile(filepath.Join(feedsDir, "nvdcve-1.1-legacy.json"))
	require.NoError(t, err)
	assert.Equal(t, model.CPEHardware, feed["CVE-2010-0100"].CPE)
}

func TestParseNVDGzip(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join(feedsDir, "nvdcve-1.1-legacy.json"))
	require.NoError(t, err)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err = gz.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "nvdcve-1.1-legacy.json.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	feed, err := ParseNVDFile(path)
	require.NoError(t, err)
	assert.Contains(t, feed, "CVE-2010-0100")
}

func TestParseNVDMalformed(t *testing.T) {
	_, err := ParseNVD(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestFeedFiles(t *testing.T) {
	files, err := FeedFiles(feedsDir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(feedsDir, "nvdcve-1.1-2021.json"),
		filepath.Join(feedsDir, "nvdcve-1.1-legacy.json"),
	}, files)

	_, err = FeedFiles(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoadFeeds(t *testing.T) {
	pool, err := parallel.NewWorkerPool(2, logging.NewNopLogger())
	require.NoError(t, err)
	defer pool.Close()

	concurrent, err := LoadFeeds(context.Background(), feedsDir, pool, logging.NewNopLogger())
	require.NoError(t, err)
	sequential, err := LoadFeeds(context.Background(), feedsDir, nil, logging.NewNopLogger())
	require.NoError(t, err)

	assert.Len(t, concurrent, 3)
	assert.Equal(t, sequential, concurrent)
}

func TestLoadFeedsFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nvdcve-bad.json"), []byte("]"), 0o644))

	pool, err := parallel.NewWorkerPool(2, logging.NewNopLogger())
	require.NoError(t, err)
	defer pool.Close()

	_, err = LoadFeeds(context.Background(), dir, pool, logging.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nvdcve-bad.json")
}

func TestReportFileName(t *testing.T) {
	assert.Equal(t, "library_nginx_1.19.json", ReportFileName("library/nginx:1.19"))
	assert.Equal(t, "redis.json", ReportFileName("redis"))
}

func TestParseClair(t *testing.T) {
	entries, found, err := ReadClairReport(reportsDir, nginx)
	require.NoError(t, err)
	require.True(t, found)

	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"CVE-2021-0001", "CVE-2021-0500", "CVE-2021-0700", "CVE-2021-0800"}, ids)
	assert.Empty(t, entries[2].Vector, "no metadata keeps the entry without a vector")

	_, found, err = ReadClairReport(reportsDir, "unknown:latest")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolve(t *testing.T) {
	feed, err := ParseNVDFile(filepath.Join(feedsDir, "nvdcve-1.1-2021.json"))
	require.NoError(t, err)
	entries, _, err := ReadClairReport(reportsDir, nginx)
	require.NoError(t, err)

	vulns, warnings := Resolve(entries, feed)
	require.Error(t, warnings)
	assert.Contains(t, warnings.Error(), "CVE-2021-0800")
	require.Len(t, vulns, 4)

	byID := make(map[string]model.Vulnerability)
	for _, v := range vulns {
		byID[v.ID] = v
	}

	rce := byID["CVE-2021-0001"]
	require.NotNil(t, rce.Vector)
	assert.Equal(t, "L", rce.Vector.AccessComplexity, "feed vector overrides report")
	assert.Equal(t, 7.5, rce.Score)
	assert.Equal(t, model.CPEApplication, rce.CPE)
	assert.Contains(t, rce.Description, "execute arbitrary code")

	computed := byID["CVE-2021-0500"]
	require.NotNil(t, computed.Vector)
	assert.InDelta(t, 10.0, computed.Score, 1e-9)
	assert.Equal(t, model.CPEUnknown, computed.CPE)

	assert.False(t, byID["CVE-2021-0700"].Usable())
	assert.False(t, byID["CVE-2021-0800"].Usable())
}

func TestDatabaseLoad(t *testing.T) {
	feed, err := LoadFeeds(context.Background(), feedsDir, nil, logging.NewNopLogger())
	require.NoError(t, err)

	var logs bytes.Buffer
	db := NewDatabase(feed, reportsDir, logging.NewJSONLogger(&logs, logging.WarnLevel))

	out, err := db.Load(context.Background(), []string{nginx, "postgres:13", nginx})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Len(t, out[nginx], 4)
	assert.NotNil(t, out["postgres:13"])
	assert.Empty(t, out["postgres:13"])
	assert.Contains(t, logs.String(), "no vulnerability report for image")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = db.Load(ctx, []string{nginx})
	assert.ErrorIs(t, err, context.Canceled)
}
