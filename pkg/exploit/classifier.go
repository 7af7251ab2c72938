package exploit

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
)

const (
	accessLocal  = "LOCAL"
	authNone     = "NONE"
	opClassify   = "classify"
	opBuildProfs = "build_profiles"
)

// Classify assigns a pre- and postcondition to every vulnerability carrying an
// attack vector. Preconditions keep the highest matching rule, postconditions
// the lowest. The result does not depend on rule or vulnerability order.
func Classify(vulns []model.Vulnerability, rules RuleSet) (*Profile, error) {
	pre := make(map[string]model.Privilege)
	post := make(map[string]model.Privilege)
	scores := make(map[string]float64)

	for _, v := range vulns {
		if !v.Usable() {
			continue
		}

		required := model.PrivilegeNone
		for _, rule := range rules.Pre {
			hit, err := matchPrecondition(rule, v)
			if err != nil {
				return nil, err
			}
			if hit && rule.Precondition > required {
				required = rule.Precondition
			}
		}

		gained := model.PrivilegeAdmin
		for _, rule := range rules.Post {
			if matchPostcondition(rule, v) && rule.Postcondition < gained {
				gained = rule.Postcondition
			}
		}

		pre[v.ID] = required
		post[v.ID] = gained
		scores[v.ID] = v.Score
	}

	return NewProfile(pre, post, scores), nil
}

func matchPrecondition(rule PreconditionRule, v model.Vulnerability) (bool, error) {
	if !cpeCompatible(rule.CPE, v.CPE) {
		return false, nil
	}
	if rule.IsVocabulary() {
		return hitsVocabulary(rule.Vocabulary, v.Description), nil
	}

	av := v.Vector
	if !av.HasAccessMetrics() {
		return false, model.NewError(opClassify).
			Configuration().
			Vulnerability(v.ID).
			Cause(fmt.Errorf("rule %s needs AV, AC and Au but vector is %q", rule.Name, av.String())).
			Err()
	}

	return accessVectorMatches(rule.AccessVector, av.AccessVector) &&
		authenticationMatches(rule.Authentication, av.Authentication) &&
		accessComplexityMatches(rule.AccessComplexity, av.AccessComplexity), nil
}

func accessVectorMatches(rule, av string) bool {
	switch {
	case wildcard(rule):
		return true
	case rule == accessLocal:
		return av == "L"
	default:
		return av == "A" || av == "N"
	}
}

func authenticationMatches(rule, au string) bool {
	switch {
	case wildcard(rule):
		return true
	case rule == authNone:
		return au == "N"
	default:
		return au == "S" || au == "M"
	}
}

// accessComplexityMatches compares the first letter of LOW/MEDIUM/HIGH.
func accessComplexityMatches(rule, ac string) bool {
	return wildcard(rule) || strings.EqualFold(rule[:1], ac)
}

func matchPostcondition(rule PostconditionRule, v model.Vulnerability) bool {
	if !cpeCompatible(rule.CPE, v.CPE) || !hitsVocabulary(rule.Vocabulary, v.Description) {
		return false
	}
	c, i := v.Vector.Confidentiality, v.Vector.Integrity
	switch rule.Impacts {
	case ImpactsAllComplete:
		return c == "C" && i == "C"
	case ImpactsPartial:
		// Partial impact rules apply whether or not C or I is "P".
		return true
	case ImpactsAnyNone:
		return c == "N" || i == "N"
	default:
		return false
	}
}

func wildcard(field string) bool {
	return field == "" || field == Wildcard
}

// ClassifyService classifies the vulnerabilities of one service image.
func ClassifyService(svc topology.Service, vulnsByImage map[string][]model.Vulnerability, rules RuleSet) (*Profile, error) {
	profile, err := Classify(vulnsByImage[svc.Image], rules)
	if err != nil {
		return nil, fmt.Errorf("service %s (%s): %w", svc.Name, svc.Image, err)
	}
	return profile, nil
}

// BuildProfiles classifies every service of the topology. Every failing
// service is reported; any failure fails the call.
func BuildProfiles(ctx context.Context, topo *topology.Topology, vulnsByImage map[string][]model.Vulnerability, rules RuleSet, logger logging.Logger) (map[string]*Profile, error) {
	logger = logging.OrDefault(logger).With(logging.Component("exploit"))
	op := logging.StartTimer(logger, "profiles built")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	profiles := make(map[string]*Profile)
	var errs *multierror.Error
	for _, name := range topo.ServiceNames() {
		svc, _ := topo.Service(name)
		profile, err := ClassifyService(svc, vulnsByImage, rules)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if profile.Len() == 0 {
			logger.Debug("service has no usable vulnerabilities", logging.Service(name), logging.Image(svc.Image))
		}
		profiles[name] = profile
	}

	if err := errs.ErrorOrNil(); err != nil {
		op.EndError(err)
		return nil, fmt.Errorf("%s: %w", opBuildProfs, err)
	}
	op.End(logging.Count(len(profiles)))
	return profiles, nil
}
