package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-attackgraph/pkg/exploit"
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#00FFFF")).
	Padding(0, 1)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// profileEntry is one classified vulnerability.
type profileEntry struct {
	Service       string  `json:"service"`
	Vulnerability string  `json:"vulnerability"`
	Precondition  string  `json:"precondition"`
	Postcondition string  `json:"postcondition"`
	Score         float64 `json:"score"`
}

func newProfilesCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "profiles [project-dir]",
		Short: "Classify the vulnerabilities of every service",
		Long: `profiles resolves the vulnerability reports of every image and prints the
privilege each vulnerability requires and the privilege it grants.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := root.open(cmd.Context(), cmd, projectDir(args))
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			if err := s.analyzer.BuildProfiles(cmd.Context()); err != nil {
				return err
			}
			profiles := s.analyzer.State().Profiles
			entries := profileEntries(s.topo.ServiceNames(), profiles)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			return writeProfiles(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func profileEntries(services []string, profiles map[string]*exploit.Profile) []profileEntry {
	entries := []profileEntry{}
	for _, name := range services {
		p, ok := profiles[name]
		if !ok {
			continue
		}
		for _, id := range p.Vulnerabilities() {
			entries = append(entries, profileEntry{
				Service:       name,
				Vulnerability: id,
				Precondition:  p.Pre[id].String(),
				Postcondition: p.Post[id].String(),
				Score:         p.Score(id),
			})
		}
	}
	return entries
}

func writeProfiles(w io.Writer, entries []profileEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no exploitable vulnerabilities")
		return err
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))).
		Headers("SERVICE", "VULNERABILITY", "REQUIRES", "GRANTS", "SCORE").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, e := range entries {
		t.Row(e.Service, e.Vulnerability, e.Precondition, e.Postcondition,
			strconv.FormatFloat(e.Score, 'f', 1, 64))
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}
