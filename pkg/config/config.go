// Package config loads the YAML configuration of an analysis run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-attackgraph/pkg/attackgraph"
	"github.com/dd0wney/cluso-attackgraph/pkg/exploit"
	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/validation"
)

// Supported input formats.
const (
	TopologyDockerCompose = "docker-compose"
	VulnerabilityClairctl = "clairctl"
)

// Defaults.
const (
	DefaultResultsPath = "results"
	DefaultReportsPath = "clair-reports"
	DefaultNVDFeedPath = "nvd-feeds"
	MaxConcurrency     = 256

	// LogLevelEnv overrides log-level when set.
	LogLevelEnv = "ATTACKGRAPH_LOG_LEVEL"
)

// Config is the configuration of an analysis run. Rules given inline replace
// the embedded defaults per section.
type Config struct {
	Concurrency             int     `yaml:"concurrency" validate:"min=0,max=256"`
	SingleExploitPerService bool    `yaml:"single-exploit-per-service"`
	SingleEdgeLabel         bool    `yaml:"single-edge-label"`
	DecayBase               float64 `yaml:"decay-base" validate:"gt=1"`

	TopologyType      string `yaml:"topology-type" validate:"required,oneof=docker-compose"`
	VulnerabilityType string `yaml:"vulnerability-type" validate:"required,oneof=clairctl"`
	NVDFeedPath       string `yaml:"nvd-feed-path"`
	ReportsPath       string `yaml:"reports-path"`
	ResultsPath       string `yaml:"results-path"`

	DeployHoneypots     bool   `yaml:"deploy-honeypots"`
	HoneypotDestination string `yaml:"honeypot-destination" validate:"omitempty,servicename"`
	HoneypotMinimum     int    `yaml:"honeypot-minimum" validate:"min=0"`

	DrawGraphs   bool   `yaml:"draw-graphs"`
	ExportReport bool   `yaml:"export-report"`
	LogLevel     string `yaml:"log-level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat    string `yaml:"log-format" validate:"omitempty,oneof=json text"`

	exploit.RuleFile `yaml:",inline"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	c.DecayBase = validation.DefaultOr(c.DecayBase, attackgraph.DefaultDecayBase)
	c.TopologyType = validation.DefaultOr(c.TopologyType, TopologyDockerCompose)
	c.VulnerabilityType = validation.DefaultOr(c.VulnerabilityType, VulnerabilityClairctl)
	c.NVDFeedPath = validation.DefaultOr(c.NVDFeedPath, DefaultNVDFeedPath)
	c.ReportsPath = validation.DefaultOr(c.ReportsPath, DefaultReportsPath)
	c.ResultsPath = validation.DefaultOr(c.ResultsPath, DefaultResultsPath)
	c.LogLevel = validation.DefaultOr(c.LogLevel, "info")
	c.LogFormat = validation.DefaultOr(c.LogFormat, "json")
}

// Validate checks field ranges and cross-field rules.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}
	cv := validation.NewConfigValidator("config")
	cv.Custom("fields", func() error { return validation.Struct(c) }).
		When(c.DrawGraphs || c.ExportReport, func(v *validation.ConfigValidator) {
			v.Required("results-path", c.ResultsPath)
		}).
		Required("reports-path", c.ReportsPath).
		When(!c.RuleFile.Empty(), func(v *validation.ConfigValidator) {
			v.Custom("rules", c.RuleFile.Validate)
		})
	return cv.Validate()
}

// Rules returns the inline rules, falling back to the embedded defaults for
// a section that is not configured.
func (c *Config) Rules() (exploit.RuleSet, error) {
	defaults, err := exploit.DefaultRules()
	if err != nil {
		return exploit.RuleSet{}, err
	}
	rs := c.RuleFile.RuleSet()
	if len(rs.Pre) == 0 {
		rs.Pre = defaults.Pre
	}
	if len(rs.Post) == 0 {
		rs.Post = defaults.Post
	}
	return rs, nil
}

// BuilderFlags returns the traversal flags.
func (c *Config) BuilderFlags() attackgraph.Flags {
	return attackgraph.Flags{
		SingleExploitPerService: c.SingleExploitPerService,
		SingleEdgeLabel:         c.SingleEdgeLabel,
	}
}

// Logger creates the logger the configuration asks for.
func (c *Config) Logger(w io.Writer) logging.Logger {
	format := logging.FormatJSON
	if c.LogFormat == "text" {
		format = logging.FormatText
	}
	return logging.New(w, logging.ParseLevel(c.LogLevel), format)
}

// Parse decodes, completes and validates a YAML document. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if level := os.Getenv(LogLevelEnv); level != "" {
		c.LogLevel = level
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
