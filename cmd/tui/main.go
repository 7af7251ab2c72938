// Command tui browses an exported attack graph report.
package main

import (
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dd0wney/cluso-attackgraph/pkg/report"
)

const defaultReportPath = "results/report.json"

func main() {
	path := defaultReportPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	r, err := report.Load(path)
	if err != nil {
		log.Fatalf("Failed to load report: %v", err)
	}

	p := tea.NewProgram(initialModel(r, path), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
