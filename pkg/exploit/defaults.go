package exploit

import (
	_ "embed"
	"sync"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

var (
	defaultRulesOnce sync.Once
	defaultRules     RuleSet
	defaultRulesErr  error
)

// DefaultRules returns the embedded rule set.
func DefaultRules() (RuleSet, error) {
	defaultRulesOnce.Do(func() {
		defaultRules, defaultRulesErr = ParseRules(defaultRulesYAML)
	})
	return defaultRules, defaultRulesErr
}
