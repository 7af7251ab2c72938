package vulndb

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
)

// Resolve merges reported entries with the feed. Feed data replaces the
// report's description, vector and CPE type. Missing scores are computed from
// the vector. Malformed vectors leave the vulnerability without one and are
// returned as warnings alongside the result.
func Resolve(reported []Entry, feed Feed) ([]model.Vulnerability, error) {
	var warnings *multierror.Error
	vulns := make([]model.Vulnerability, 0, len(reported))

	for _, r := range reported {
		e := r
		if known, ok := feed[r.ID]; ok {
			e = known
			if e.Description == "" {
				e.Description = r.Description
			}
			if e.Vector == "" {
				e.Vector = r.Vector
			}
			if e.Score == 0 {
				e.Score = r.Score
			}
		}

		v := model.Vulnerability{ID: e.ID, Description: e.Description, Score: e.Score, CPE: e.CPE}
		if v.CPE == "" {
			v.CPE = model.CPEUnknown
		}

		if e.Vector != "" && e.Vector != "?" {
			av, err := model.ParseAttackVector(e.Vector)
			if err != nil {
				warnings = multierror.Append(warnings, fmt.Errorf("%s: %w", e.ID, err))
			} else {
				v.Vector = av
				if v.Score == 0 {
					score, err := model.BaseScore(e.Vector)
					if err != nil {
						warnings = multierror.Append(warnings, fmt.Errorf("%s: %w", e.ID, err))
					}
					v.Score = score
				}
			}
		}
		vulns = append(vulns, v)
	}

	sort.Slice(vulns, func(i, j int) bool { return vulns[i].ID < vulns[j].ID })
	return vulns, warnings.ErrorOrNil()
}

// Database resolves image vulnerabilities from a reports directory and an
// NVD feed.
type Database struct {
	feed       Feed
	reportsDir string
	logger     logging.Logger
}

// NewDatabase creates a database. feed may be nil.
func NewDatabase(feed Feed, reportsDir string, logger logging.Logger) *Database {
	if feed == nil {
		feed = Feed{}
	}
	return &Database{
		feed:       feed,
		reportsDir: reportsDir,
		logger:     logging.OrDefault(logger).With(logging.Component("vulndb")),
	}
}

// ForImage returns the resolved vulnerabilities of one image. A missing report
// yields an empty list.
func (db *Database) ForImage(image string) ([]model.Vulnerability, error) {
	entries, found, err := ReadClairReport(db.reportsDir, image)
	if err != nil {
		return nil, err
	}
	if !found {
		db.logger.Warn("no vulnerability report for image", logging.Image(image),
			logging.Path(ReportFileName(image)))
		return []model.Vulnerability{}, nil
	}

	vulns, warnings := Resolve(entries, db.feed)
	if warnings != nil {
		db.logger.Warn("malformed vulnerability data skipped", logging.Image(image), logging.Error(warnings))
	}
	return vulns, nil
}

// Load resolves every distinct image.
func (db *Database) Load(ctx context.Context, images []string) (map[string][]model.Vulnerability, error) {
	op := logging.StartTimer(db.logger, "vulnerabilities resolved")

	out := make(map[string][]model.Vulnerability, len(images))
	total := 0
	for _, image := range images {
		if _, done := out[image]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vulns, err := db.ForImage(image)
		if err != nil {
			op.EndError(err)
			return nil, err
		}
		out[image] = vulns
		total += len(vulns)
	}
	op.End(logging.Int("images", len(out)), logging.Count(total))
	return out, nil
}
