// Package vulndb reads vulnerability data: NVD JSON feeds and clairctl image
// reports, merged into model.Vulnerability values per image.
package vulndb

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/parallel"
)

// FeedPrefix is the file name prefix of NVD JSON feeds.
const FeedPrefix = "nvdcve"

// Entry is the raw data known about one CVE before its vector is parsed.
type Entry struct {
	ID          string
	Description string
	Vector      string
	Score       float64
	CPE         string
}

// Feed maps CVE ids to NVD entries.
type Feed map[string]Entry

type nvdFeed struct {
	Items []nvdItem `json:"CVE_Items"`
}

type nvdItem struct {
	CVE struct {
		Meta struct {
			ID string `json:"ID"`
		} `json:"CVE_data_meta"`
		Description struct {
			Data []struct {
				Value string `json:"value"`
			} `json:"description_data"`
		} `json:"description"`
	} `json:"cve"`
	Impact struct {
		V2 *struct {
			CVSS struct {
				VectorString string  `json:"vectorString"`
				BaseScore    float64 `json:"baseScore"`
			} `json:"cvssV2"`
		} `json:"baseMetricV2"`
	} `json:"impact"`
	Configurations struct {
		Nodes []nvdNode `json:"nodes"`
	} `json:"configurations"`
}

type nvdNode struct {
	CPEMatch []struct {
		URI string `json:"cpe23Uri"`
	} `json:"cpe_match"`
	CPE []struct {
		URI string `json:"cpe22Uri"`
	} `json:"cpe"`
	Children []nvdNode `json:"children"`
}

// cpeURI returns the first CPE URI of a node, looking one level into its
// children when the node itself has none.
func (n nvdNode) cpeURI() string {
	if len(n.CPEMatch) > 0 {
		return n.CPEMatch[0].URI
	}
	if len(n.CPE) > 0 {
		return n.CPE[0].URI
	}
	if len(n.Children) > 0 {
		child := n.Children[0]
		if len(child.CPEMatch) > 0 {
			return child.CPEMatch[0].URI
		}
		if len(child.CPE) > 0 {
			return child.CPE[0].URI
		}
	}
	return ""
}

// ParseNVD decodes one NVD JSON 1.1 feed. Items without CVSS v2 metrics are skipped.
func ParseNVD(r io.Reader) (Feed, error) {
	var doc nvdFeed
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode nvd feed: %w", err)
	}

	feed := make(Feed, len(doc.Items))
	for _, item := range doc.Items {
		if item.Impact.V2 == nil || item.CVE.Meta.ID == "" {
			continue
		}
		e := Entry{
			ID:     item.CVE.Meta.ID,
			Vector: item.Impact.V2.CVSS.VectorString,
			Score:  item.Impact.V2.CVSS.BaseScore,
			CPE:    model.CPEUnknown,
		}
		if data := item.CVE.Description.Data; len(data) > 0 {
			e.Description = data[0].Value
		}
		if nodes := item.Configurations.Nodes; len(nodes) > 0 {
			if uri := nodes[0].cpeURI(); uri != "" {
				e.CPE = model.CPEType(uri)
			}
		}
		feed[e.ID] = e
	}
	return feed, nil
}

// ParseNVDFile reads a feed from disk, transparently decompressing .gz files.
func ParseNVDFile(path string) (Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open nvd feed: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip feed %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	feed, err := ParseNVD(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return feed, nil
}

// FeedFiles lists the NVD feed files of dir, sorted.
func FeedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list nvd feeds: %w", err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, FeedPrefix) {
			continue
		}
		if strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadFeeds parses every feed of dir, on pool when one is given. Files are
// merged in name order, so later feeds win on duplicate ids.
func LoadFeeds(ctx context.Context, dir string, pool *parallel.WorkerPool, logger logging.Logger) (Feed, error) {
	logger = logging.OrDefault(logger).With(logging.Component("vulndb"))
	op := logging.StartTimer(logger, "nvd feeds loaded", logging.Path(dir))

	files, err := FeedFiles(dir)
	if err != nil {
		op.EndError(err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed := make([]Feed, len(files))
	if pool == nil {
		for i, path := range files {
			if parsed[i], err = ParseNVDFile(path); err != nil {
				op.EndError(err)
				return nil, err
			}
		}
	} else {
		var mu sync.Mutex
		batch := pool.NewBatch()
		for i, path := range files {
			if err := batch.Go(filepath.Base(path), func() error {
				feed, err := ParseNVDFile(path)
				if err != nil {
					return err
				}
				mu.Lock()
				parsed[i] = feed
				mu.Unlock()
				return nil
			}); err != nil {
				_ = batch.Wait()
				return nil, err
			}
		}
		if err := batch.Wait(); err != nil {
			op.EndError(err)
			return nil, err
		}
	}

	feed := make(Feed)
	for _, f := range parsed {
		for id, e := range f {
			feed[id] = e
		}
	}
	op.End(logging.Count(len(feed)), logging.Int("files", len(files)))
	return feed, nil
}
