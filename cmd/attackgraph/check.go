package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-attackgraph/pkg/health"
	"github.com/dd0wney/cluso-attackgraph/pkg/topology"
)

var errNotReady = errors.New("inputs are not ready for analysis")

func newCheckCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [project-dir]",
		Short: "Check that the inputs of an analysis are in place",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			dir := projectDir(args)

			hc := health.NewHealthChecker()
			hc.RegisterCheck("compose", health.ComposeCheck(dir))
			hc.RegisterCheck("nvd-feeds", health.FeedsCheck(cfg.NVDFeedPath))
			if topo, err := topology.LoadCompose(dir); err == nil {
				var images []string
				for _, name := range topo.ServiceNames() {
					svc, _ := topo.Service(name)
					images = append(images, svc.Image)
				}
				hc.RegisterCheck("reports", health.ReportsCheck(cfg.ReportsPath, images))
			}
			if cfg.DrawGraphs || cfg.ExportReport {
				hc.RegisterCheck("results", health.ResultsCheck(cfg.ResultsPath))
			}

			resp := hc.Check()
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))).
				Headers("CHECK", "STATUS", "MESSAGE").
				StyleFunc(func(row, _ int) lipgloss.Style {
					if row == table.HeaderRow {
						return headerStyle
					}
					return cellStyle
				})
			for _, name := range resp.Names() {
				c := resp.Checks[name]
				t.Row(name, string(c.Status), c.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			fmt.Fprintf(cmd.OutOrStdout(), "overall: %s\n", resp.Status)

			if !resp.Healthy() {
				return errNotReady
			}
			return nil
		},
	}
}
