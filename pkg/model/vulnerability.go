package model

import (
	"fmt"
	"strings"

	"github.com/goark/go-cvss/v2/metric"
)

// CPE platform types as they appear in the fifth character of a cpe22 URI.
const (
	CPEApplication = "a"
	CPEOS          = "o"
	CPEHardware    = "h"
	CPEUnknown     = "?"
)

// AttackVector holds the CVSS v2 base metrics as single-letter codes.
type AttackVector struct {
	AccessVector     string `json:"AV,omitempty"`
	AccessComplexity string `json:"AC,omitempty"`
	Authentication   string `json:"Au,omitempty"`
	Confidentiality  string `json:"C,omitempty"`
	Integrity        string `json:"I,omitempty"`
	Availability     string `json:"A,omitempty"`
}

// Vulnerability is one CVE found in a service image.
type Vulnerability struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Vector      *AttackVector `json:"vector,omitempty"`
	Score       float64       `json:"score"`
	CPE         string        `json:"cpe"`
}

// Usable reports whether the vulnerability carries an attack vector.
// Vulnerabilities without one never enter an exploitability profile.
func (v Vulnerability) Usable() bool {
	return v.Vector != nil
}

// ParseAttackVector parses "AV:N/AC:L/Au:N/C:P/I:P/A:P", optionally wrapped in parentheses.
func ParseAttackVector(s string) (*AttackVector, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	if s == "" || s == "?" {
		return nil, fmt.Errorf("empty attack vector")
	}

	av := &AttackVector{}
	for _, part := range strings.Split(s, "/") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed attack vector component %q in %q", part, s)
		}
		switch key {
		case "AV":
			av.AccessVector = value
		case "AC":
			av.AccessComplexity = value
		case "Au":
			av.Authentication = value
		case "C":
			av.Confidentiality = value
		case "I":
			av.Integrity = value
		case "A":
			av.Availability = value
		}
	}
	return av, nil
}

// String renders the vector in CVSS v2 notation.
func (av *AttackVector) String() string {
	if av == nil {
		return ""
	}
	return fmt.Sprintf("AV:%s/AC:%s/Au:%s/C:%s/I:%s/A:%s",
		av.AccessVector, av.AccessComplexity, av.Authentication,
		av.Confidentiality, av.Integrity, av.Availability)
}

// HasAccessMetrics reports whether AV, AC and Au are all present.
func (av *AttackVector) HasAccessMetrics() bool {
	return av != nil && av.AccessVector != "" && av.AccessComplexity != "" && av.Authentication != ""
}

// BaseScore computes the CVSS v2 base score of a vector string.
func BaseScore(vector string) (float64, error) {
	vector = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(vector), "("), ")")
	bm, err := metric.NewBase().Decode(vector)
	if err != nil {
		return 0, fmt.Errorf("decode cvss v2 vector %q: %w", vector, err)
	}
	return bm.Score(), nil
}

// CPEType extracts the platform type from a cpe22 ("cpe:/a:...") or
// cpe23 ("cpe:2.3:a:...") URI. Unknown formats yield CPEUnknown.
func CPEType(uri string) string {
	switch {
	case strings.HasPrefix(uri, "cpe:2.3:") && len(uri) > 8:
		return uri[8:9]
	case strings.HasPrefix(uri, "cpe:/") && len(uri) > 5:
		return uri[5:6]
	default:
		return CPEUnknown
	}
}

// Severity buckets a CVSS score for display.
func Severity(score float64) string {
	switch {
	case score >= 9:
		return "critical"
	case score >= 7:
		return "high"
	case score >= 4:
		return "medium"
	case score > 0:
		return "low"
	default:
		return "unknown"
	}
}
