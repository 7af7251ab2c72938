package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-attackgraph/pkg/model"
	"github.com/dd0wney/cluso-attackgraph/pkg/report"
)

type defendOptions struct {
	from    string
	to      string
	minimum int
	deploy  bool
}

func newDefendCmd(root *rootOptions) *cobra.Command {
	opts := &defendOptions{}
	cmd := &cobra.Command{
		Use:   "defend [project-dir]",
		Short: "Rank services for honeypot placement",
		Long: `defend analyses the deployment, then ranks services by how much attack
traffic passes through them: gateways by their degree, plus every service on
the most likely path from --from to --to. With --deploy it places a honeypot
next to every service ranked at least --minimum and reports the change in
reachability.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := root.open(cmd.Context(), cmd, projectDir(args))
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			if !cmd.Flags().Changed("to") {
				opts.to = s.cfg.HoneypotDestination
			}
			if !cmd.Flags().Changed("minimum") {
				opts.minimum = s.cfg.HoneypotMinimum
			}
			if opts.minimum < 0 {
				return fmt.Errorf("minimum must be non-negative, got %d", opts.minimum)
			}

			if _, err := s.analyzer.Run(cmd.Context()); err != nil {
				return err
			}
			counts, err := s.analyzer.GenDefenceList(opts.from, opts.to)
			if err != nil {
				return err
			}

			r := &report.Report{DefenceList: counts.Ordered()}
			if opts.deploy {
				d, err := s.analyzer.DeployHoneypots(cmd.Context(), counts, opts.minimum)
				if err != nil {
					return err
				}
				r.WithDeployment(d)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, r.DefenceTable())
			if r.Deployment == nil {
				return nil
			}
			if len(r.Deployment.Placements) == 0 {
				fmt.Fprintf(out, "no service ranked at least %d, nothing deployed\n", opts.minimum)
				return nil
			}
			for _, p := range r.Deployment.Placements {
				fmt.Fprintf(out, "%s (%s) placed next to %s\n", p.Name, p.Image, p.Target)
			}
			fmt.Fprintln(out, r.DeploymentTable())
			fmt.Fprintf(out, "mean reduction %.1f%%\n", r.Deployment.Comparison.MeanReduction*100)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", model.Outside, "attacker entry point")
	cmd.Flags().StringVar(&opts.to, "to", "", "target service (default from configuration)")
	cmd.Flags().IntVar(&opts.minimum, "minimum", 0, "lowest rank that receives a honeypot (default from configuration)")
	cmd.Flags().BoolVar(&opts.deploy, "deploy", false, "deploy honeypots and re-evaluate")
	return cmd
}
