// Package exploit classifies vulnerabilities into privilege pre- and
// postconditions and builds per-service exploitability profiles.
package exploit

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/validation"
)

// Impacts narrows a postcondition rule by the confidentiality and integrity
// impact of a vulnerability.
type Impacts string

const (
	ImpactsAllComplete Impacts = "ALL_COMPLETE"
	ImpactsPartial     Impacts = "PARTIAL"
	ImpactsAnyNone     Impacts = "ANY_NONE"
)

// Wildcard matches any value in a rule field.
const Wildcard = "?"

// PreconditionRule assigns the privilege an attacker needs on a service to use
// a vulnerability. A rule with a vocabulary matches on the description,
// otherwise on the access metrics of the attack vector.
type PreconditionRule struct {
	Name             string          `yaml:"-"`
	CPE              string          `yaml:"cpe" validate:"required,oneof=? a o h"`
	Vocabulary       []string        `yaml:"vocabulary,omitempty"`
	AccessVector     string          `yaml:"accessVector,omitempty"`
	AccessComplexity string          `yaml:"accessComplexity,omitempty"`
	Authentication   string          `yaml:"authentication,omitempty"`
	Precondition     model.Privilege `yaml:"precondition"`
}

// IsVocabulary reports whether the rule matches on descriptions.
func (r PreconditionRule) IsVocabulary() bool {
	return len(r.Vocabulary) > 0
}

// PostconditionRule assigns the privilege an attacker gains by exploiting a
// vulnerability whose description hits the vocabulary.
type PostconditionRule struct {
	Name          string          `yaml:"-"`
	CPE           string          `yaml:"cpe" validate:"required,oneof=? a o h"`
	Vocabulary    []string        `yaml:"vocabulary" validate:"required,min=1"`
	Impacts       Impacts         `yaml:"impacts" validate:"required,oneof=ALL_COMPLETE PARTIAL ANY_NONE"`
	Postcondition model.Privilege `yaml:"postcondition"`
}

// RuleSet is an ordered collection of rules. Classification does not depend
// on the order.
type RuleSet struct {
	Pre  []PreconditionRule
	Post []PostconditionRule
}

// RuleFile is the on-disk form of a RuleSet: named rules under the
// preconditions-rules and postconditions-rules keys. It is inlined into the
// application config.
type RuleFile struct {
	Preconditions  map[string]PreconditionRule  `yaml:"preconditions-rules,omitempty"`
	Postconditions map[string]PostconditionRule `yaml:"postconditions-rules,omitempty"`
}

// Empty reports whether the file defines no rules at all.
func (f RuleFile) Empty() bool {
	return len(f.Preconditions) == 0 && len(f.Postconditions) == 0
}

// RuleSet returns the rules sorted by name.
func (f RuleFile) RuleSet() RuleSet {
	var rs RuleSet
	for _, name := range sortedNames(f.Preconditions) {
		r := f.Preconditions[name]
		r.Name = name
		rs.Pre = append(rs.Pre, r)
	}
	for _, name := range sortedNames(f.Postconditions) {
		r := f.Postconditions[name]
		r.Name = name
		rs.Post = append(rs.Post, r)
	}
	return rs
}

// Validate checks every rule of the file.
func (f RuleFile) Validate() error {
	cv := validation.NewConfigValidator("rules")
	for _, name := range sortedNames(f.Preconditions) {
		r := f.Preconditions[name]
		field := "preconditions-rules." + name
		cv.Custom(field, func() error { return validation.Struct(r) })
		cv.Check(field, r.Precondition.Valid(), "invalid privilege %d", int(r.Precondition))
		cv.When(!r.IsVocabulary(), func(v *validation.ConfigValidator) {
			v.Required(field+".accessVector", r.AccessVector).
				Required(field+".accessComplexity", r.AccessComplexity).
				Required(field+".authentication", r.Authentication)
		})
	}
	for _, name := range sortedNames(f.Postconditions) {
		r := f.Postconditions[name]
		field := "postconditions-rules." + name
		cv.Custom(field, func() error { return validation.Struct(r) })
		cv.Check(field, r.Postcondition.Valid(), "invalid privilege %d", int(r.Postcondition))
	}
	return cv.Validate()
}

// ParseRules decodes a YAML rule document.
func ParseRules(data []byte) (RuleSet, error) {
	var f RuleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return RuleSet{}, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := f.Validate(); err != nil {
		return RuleSet{}, model.NewError("parse_rules").Configuration().Cause(err).Err()
	}
	return f.RuleSet(), nil
}

// LoadRules reads a YAML rule document from disk.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("failed to read rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// hitsVocabulary reports whether any entry matches description. "a...b"
// requires both parts, "?" always matches.
func hitsVocabulary(vocabulary []string, description string) bool {
	for _, sentence := range vocabulary {
		if first, second, ok := strings.Cut(sentence, "..."); ok {
			if strings.Contains(description, first) && strings.Contains(description, second) {
				return true
			}
			continue
		}
		if sentence == Wildcard || strings.Contains(description, sentence) {
			return true
		}
	}
	return false
}

// cpeCompatible applies the CPE constraint shared by both rule kinds. An "h"
// rule also accepts application vulnerabilities.
func cpeCompatible(ruleCPE, vulnCPE string) bool {
	switch ruleCPE {
	case model.CPEOS:
		return vulnCPE == model.CPEOS
	case model.CPEHardware:
		return vulnCPE == model.CPEHardware || vulnCPE == model.CPEApplication
	default:
		return true
	}
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
