package risk

import "github.com/dd0wney/cluso-attackgraph/pkg/model"

// RateChange is the reachability of one service before and after a change.
type RateChange struct {
	Service   string  `json:"service"`
	Before    float64 `json:"before"`
	After     float64 `json:"after"`
	Reduction float64 `json:"reduction"`
}

// Comparison summarises how a change moved reachability.
type Comparison struct {
	Changes       []RateChange `json:"changes"`
	MeanReduction float64      `json:"mean_reduction"`
}

// CompareRates compares two reachability tables. With a target only that
// service is compared and it must appear in before. Reduction is relative:
// (before-after)/before, and 0 when before is 0. Services only present in
// after, such as decoys, are ignored.
func CompareRates(before, after Reachability, target string) (Comparison, error) {
	services := before.Services()
	if target != "" {
		if _, ok := before[target]; !ok {
			return Comparison{}, model.UnreachableService("compare_rates", target)
		}
		services = []string{target}
	}

	var cmp Comparison
	total := 0.0
	for _, s := range services {
		change := RateChange{Service: s, Before: before[s], After: after[s]}
		if change.Before != 0 {
			change.Reduction = (change.Before - change.After) / change.Before
		}
		total += change.Reduction
		cmp.Changes = append(cmp.Changes, change)
	}
	if len(cmp.Changes) > 0 {
		cmp.MeanReduction = total / float64(len(cmp.Changes))
	}
	return cmp, nil
}
