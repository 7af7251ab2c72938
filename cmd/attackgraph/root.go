package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-attackgraph/pkg/analysis"
	"github.com/dd0wney/cluso-attackgraph/pkg/config"
	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/metrics"
	"github.com/dd0wney/cluso-attackgraph/pkg/parallel"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
	"github.com/dd0wney/cluso-attackgraph/pkg/vulndb"
)

const defaultConfigPath = "config.yml"

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath  string
	logLevel    string
	concurrency int
	resultsPath string
	metricsPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "attackgraph",
		Short: "Attack graph analysis for containerised deployments",
		Long: `attackgraph reads a docker-compose deployment and clairctl vulnerability
reports, builds the attack graph of every privilege an outside attacker can
reach, merges it into a service risk graph and suggests where honeypots
lower the risk.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "override the configured log level")
	flags.IntVarP(&opts.concurrency, "concurrency", "j", -1, "override the configured worker count (0 is sequential)")
	flags.StringVarP(&opts.resultsPath, "results", "o", "", "override the configured results directory")
	flags.StringVar(&opts.metricsPath, "metrics", "", "write Prometheus metrics to this textfile")

	cmd.AddCommand(
		newAnalyzeCmd(opts),
		newProfilesCmd(opts),
		newDefendCmd(opts),
		newCheckCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the configuration file and applies flag overrides. A
// missing file is only an error when it was asked for explicitly.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}

	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.concurrency >= 0 {
		cfg.Concurrency = o.concurrency
	}
	if o.resultsPath != "" {
		cfg.ResultsPath = o.resultsPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is everything one command run needs.
type session struct {
	cfg      *config.Config
	logger   logging.Logger
	pool     *parallel.WorkerPool
	metrics  *metrics.Registry
	topo     *topology.Topology
	analyzer *analysis.Analyzer

	metricsPath string
	start       time.Time
}

// open loads the configuration, the topology of dir and the vulnerability
// data, and wires an analyzer over them.
func (o *rootOptions) open(ctx context.Context, cmd *cobra.Command, dir string) (*session, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:         cfg,
		logger:      cfg.Logger(cmd.ErrOrStderr()),
		metrics:     metrics.NewRegistry(),
		metricsPath: o.metricsPath,
		start:       time.Now(),
	}
	if cfg.Concurrency > 0 {
		if s.pool, err = parallel.NewWorkerPool(cfg.Concurrency, s.logger); err != nil {
			return nil, err
		}
	}

	if s.topo, err = topology.LoadCompose(dir); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	s.logger.Info("topology loaded",
		logging.Path(dir),
		logging.Int("services", len(s.topo.ServiceNames())),
		logging.Int("subnets", len(s.topo.SubnetNames())))

	feed, err := vulndb.LoadFeeds(ctx, cfg.NVDFeedPath, s.pool, s.logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	rules, err := cfg.Rules()
	if err != nil {
		s.Close()
		return nil, err
	}

	opts := []analysis.Option{
		analysis.WithRules(rules),
		analysis.WithFlags(cfg.BuilderFlags()),
		analysis.WithDecayBase(cfg.DecayBase),
		analysis.WithLogger(s.logger),
		analysis.WithMetrics(s.metrics),
	}
	if s.pool != nil {
		opts = append(opts, analysis.WithPool(s.pool))
	}
	s.analyzer = analysis.New(s.topo, vulndb.NewDatabase(feed, cfg.ReportsPath, s.logger), opts...)
	return s, nil
}

// Close stops the worker pool and writes the metrics textfile if one was
// requested.
func (s *session) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.metricsPath == "" {
		return nil
	}
	s.metrics.UpdateSystemMetrics(s.start)
	if err := s.metrics.WriteTextfile(s.metricsPath); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func projectDir(args []string) string {
	if len(args) == 0 {
		return "."
	}
	return args[0]
}

func closeSession(s *session, err *error) {
	if cerr := s.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
