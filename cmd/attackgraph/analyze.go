package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-attackgraph/pkg/analysis"
	"github.com/dd0wney/cluso-attackgraph/pkg/defense"
	"github.com/dd0wney/cluso-attackgraph/pkg/logging"
	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/report"
	"github.com/dd0wney/cluso-attackgraph/pkg/visualization"
)

// reportFileName is the exported report inside the results directory.
const reportFileName = "report.json"

type analyzeOptions struct {
	png      bool
	compress bool
	quiet    bool
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze [project-dir]",
		Short: "Build, merge and report the attack graph of a deployment",
		Long: `analyze reads docker-compose.yml from the project directory, builds the
attack graph of every subnet, composes and merges it, and prints the
reachability of every service. With deploy-honeypots set in the
configuration it also places decoys and reports the change in risk.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := root.open(cmd.Context(), cmd, projectDir(args))
			if err != nil {
				return err
			}
			defer closeSession(s, &err)
			return runAnalyze(cmd, s, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.png, "png", false, "render PNG images next to the DOT files")
	cmd.Flags().BoolVar(&opts.compress, "compress", false, "snappy-compress the exported report")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print the report")
	return cmd
}

func runAnalyze(cmd *cobra.Command, s *session, opts *analyzeOptions) error {
	ctx := cmd.Context()
	cfg := s.cfg

	before, err := s.analyzer.Run(ctx)
	if err != nil {
		return err
	}
	if cfg.DrawGraphs {
		if err := drawState(ctx, s, before, "", opts.png); err != nil {
			return err
		}
	}

	state := before
	var deployment *analysis.Deployment
	var counts defense.PathCounts
	if cfg.DeployHoneypots {
		counts, err = s.analyzer.GenDefenceList(model.Outside, cfg.HoneypotDestination)
		if err != nil {
			return err
		}
		if deployment, err = s.analyzer.DeployHoneypots(ctx, counts, cfg.HoneypotMinimum); err != nil {
			return err
		}
		state = s.analyzer.State()
		if cfg.DrawGraphs && len(deployment.Placements) > 0 {
			if err := drawState(ctx, s, state, "-honeypots", opts.png); err != nil {
				return err
			}
		}
	}

	r, err := report.Build(state)
	if err != nil {
		return err
	}
	if counts != nil {
		r.WithDefenceList(counts)
	}
	r.WithDeployment(deployment)
	s.logger.Info("analysis complete",
		logging.RunID(r.RunID),
		logging.Int("compromisable", r.Summary.Compromisable),
		logging.Float64("mean_reachability", r.Summary.MeanReachability))

	if cfg.ExportReport {
		name := reportFileName
		if opts.compress {
			name += report.CompressedExt
		}
		path := filepath.Join(cfg.ResultsPath, name)
		if err := r.Save(path); err != nil {
			return err
		}
		s.logger.Info("report exported", logging.Path(path))
	}

	if opts.quiet {
		return nil
	}
	return r.Write(cmd.OutOrStdout())
}

// drawState writes the attack graph and the merged graph of a state.
func drawState(ctx context.Context, s *session, state *analysis.State, suffix string, png bool) error {
	scenes := []*visualization.Scene{
		visualization.AttackGraphScene("attack-graph"+suffix, state.Composed, state.Topology, visualization.LayoutConfig{}),
		visualization.ServiceGraphScene("merged-graph"+suffix, state.Merged, state.Reachability, state.Topology, visualization.LayoutConfig{}),
	}
	for _, sc := range scenes {
		paths, err := visualization.WriteFiles(ctx, s.cfg.ResultsPath, sc, png)
		if err != nil {
			return fmt.Errorf("failed to draw %s: %w", sc.Name, err)
		}
		s.logger.Info("graph drawn", logging.Strings("files", paths))
	}
	return nil
}
