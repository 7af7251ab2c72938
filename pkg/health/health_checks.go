package health

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
	"github.com/dd0wney/cluso-attackgraph/pkg/vulndb"
)

// Common checks for analysis inputs

// ComposeCheck parses the compose file of dir.
func ComposeCheck(dir string) CheckFunc {
	return func() Check {
		check := Check{Details: make(map[string]any)}

		topo, err := topology.LoadCompose(dir)
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}

		check.Details["services"] = len(topo.ServiceNames())
		check.Details["subnets"] = len(topo.SubnetNames())
		check.Details["gateways"] = len(topo.GatewayServices())
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("%d services", len(topo.ServiceNames()))
		return check
	}
}

// FeedsCheck looks for NVD feeds in dir. Without feeds the reports' own data
// is used, so an empty directory is degraded rather than unhealthy.
func FeedsCheck(dir string) CheckFunc {
	return func() Check {
		check := Check{Details: make(map[string]any)}

		files, err := vulndb.FeedFiles(dir)
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}

		check.Details["feeds"] = len(files)
		if len(files) == 0 {
			check.Status = StatusDegraded
			check.Message = "No NVD feeds, using report data only"
		} else {
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("%d feeds", len(files))
		}
		return check
	}
}

// ReportsCheck looks for a clairctl report for every image. Images without a
// report are analysed as having no vulnerabilities.
func ReportsCheck(dir string, images []string) CheckFunc {
	return func() Check {
		check := Check{Details: make(map[string]any)}

		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("Reports directory %s not found", dir)
			return check
		}

		var missing []string
		seen := make(map[string]bool)
		for _, image := range images {
			if seen[image] {
				continue
			}
			seen[image] = true
			if _, err := os.Stat(filepath.Join(dir, vulndb.ReportFileName(image))); err != nil {
				missing = append(missing, image)
			}
		}

		check.Details["images"] = len(seen)
		check.Details["missing"] = missing
		switch {
		case len(missing) == 0:
			check.Status = StatusHealthy
			check.Message = "All images scanned"
		case len(missing) == len(seen):
			check.Status = StatusUnhealthy
			check.Message = "No image has a report"
		default:
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("%d of %d images without a report", len(missing), len(seen))
		}
		return check
	}
}

// ResultsCheck verifies that results can be written to dir.
func ResultsCheck(dir string) CheckFunc {
	return func() Check {
		check := Check{}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}
		f, err := os.CreateTemp(dir, ".write-check-*")
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
			return check
		}
		f.Close()
		os.Remove(f.Name())

		check.Status = StatusHealthy
		check.Message = "Writable"
		return check
	}
}
