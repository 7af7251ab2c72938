// Package health checks that the inputs of an analysis run are in place
// before it starts: the compose file, the NVD feeds, the vulnerability
// reports and the results directory.
package health

import (
	"sort"
	"time"
)

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]CheckFunc),
	}
}

// RegisterCheck registers a check under name, replacing any previous one
func (hc *HealthChecker) RegisterCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// Check performs all checks. The overall status is the worst one.
func (hc *HealthChecker) Check() Response {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	response := Response{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(hc.checks)),
	}

	for name, checkFunc := range hc.checks {
		start := time.Now()
		check := checkFunc()
		check.Name = name
		check.Duration = time.Since(start)
		check.LastChecked = start

		response.Checks[name] = check

		if check.Status.severity() > response.Status.severity() {
			response.Status = check.Status
		}
	}

	return response
}

// Names returns the names of the checks in the response, sorted.
func (r Response) Names() []string {
	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Healthy reports whether no check failed. Degraded checks are tolerated.
func (r Response) Healthy() bool {
	return r.Status != StatusUnhealthy
}
