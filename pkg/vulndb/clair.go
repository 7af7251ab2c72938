package vulndb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dd0wney/cluso-attackgraph/pkg/model"
)

type clairReport struct {
	Layers []struct {
		Layer struct {
			Features []struct {
				Name            string      `json:"Name"`
				Vulnerabilities []clairVuln `json:"Vulnerabilities"`
			} `json:"Features"`
		} `json:"Layer"`
	} `json:"Layers"`
}

type clairVuln struct {
	Name        string         `json:"Name"`
	Description string         `json:"Description"`
	Metadata    *clairMetadata `json:"Metadata"`
}

type clairMetadata struct {
	NVD *struct {
		CVSSv2 *struct {
			Vectors string  `json:"Vectors"`
			Score   float64 `json:"Score"`
		} `json:"CVSSv2"`
	} `json:"NVD"`
}

// ReportFileName is the clairctl report file for an image: path and tag
// separators become underscores.
func ReportFileName(image string) string {
	return strings.NewReplacer("/", "_", ":", "_").Replace(image) + ".json"
}

// ParseClair decodes a clairctl JSON report. Vulnerabilities whose metadata
// lacks NVD CVSS v2 data are dropped; ones without metadata are kept without
// a vector. Entries are returned sorted by id, one per id.
func ParseClair(r io.Reader) ([]Entry, error) {
	var report clairReport
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode clair report: %w", err)
	}

	byID := make(map[string]Entry)
	for _, layer := range report.Layers {
		for _, feature := range layer.Layer.Features {
			for _, v := range feature.Vulnerabilities {
				if v.Name == "" {
					continue
				}
				e := Entry{ID: v.Name, Description: v.Description, CPE: model.CPEUnknown}
				if v.Metadata != nil {
					if v.Metadata.NVD == nil || v.Metadata.NVD.CVSSv2 == nil {
						continue
					}
					e.Vector = v.Metadata.NVD.CVSSv2.Vectors
					e.Score = v.Metadata.NVD.CVSSv2.Score
				}
				byID[e.ID] = e
			}
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, byID[id])
	}
	return entries, nil
}

// ReadClairReport reads the report of image from dir. A missing report is not
// an error: found is false and the entry list is empty.
func ReadClairReport(dir, image string) (entries []Entry, found bool, err error) {
	path := filepath.Join(dir, ReportFileName(image))
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to open clair report: %w", err)
	}
	defer f.Close()

	entries, err = ParseClair(f)
	if err != nil {
		return nil, true, fmt.Errorf("%s: %w", path, err)
	}
	return entries, true, nil
}
