package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))

	highStyle   = cellStyle.Foreground(lipgloss.Color("#FF0000"))
	mediumStyle = cellStyle.Foreground(lipgloss.Color("#FFAA00"))
	lowStyle    = cellStyle.Foreground(lipgloss.Color("#FFFF00"))
	decoyStyle  = cellStyle.Foreground(lipgloss.Color("#888888"))
)

// ServiceTable renders one row per service.
func (r *Report) ServiceTable() string {
	rows := make([][]string, 0, len(r.Services))
	for _, s := range r.Services {
		rows = append(rows, []string{
			s.Name,
			s.Image,
			strings.Join(s.Subnets, ","),
			yesNo(s.Gateway),
			strconv.Itoa(s.Vulnerabilities),
			dash(s.MaxPrivilege),
			fmt.Sprintf("%.3f", s.Reachability),
			hops(s.Hops),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("SERVICE", "IMAGE", "SUBNETS", "GATEWAY", "VULNS", "MAX PRIV", "REACH", "HOPS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(r.Services) {
				return cellStyle
			}
			s := r.Services[row]
			if s.Honeypot {
				return decoyStyle
			}
			if col != 6 {
				return cellStyle
			}
			return reachStyle(s.Reachability)
		})
	return t.String()
}

// DefenceTable renders the ranked defence list, or "" when there is none.
func (r *Report) DefenceTable() string {
	if len(r.DefenceList) == 0 {
		return ""
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("RANK", "SERVICE", "PATHS")
	for i, pc := range r.DefenceList {
		t.Row(strconv.Itoa(i+1), pc.Service, strconv.Itoa(pc.Count))
	}
	t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})
	return t.String()
}

// DeploymentTable renders the before/after reachability of a honeypot
// deployment, or "" when there is none.
func (r *Report) DeploymentTable() string {
	if r.Deployment == nil || len(r.Deployment.Comparison.Changes) == 0 {
		return ""
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("SERVICE", "BEFORE", "AFTER", "REDUCTION")
	for _, c := range r.Deployment.Comparison.Changes {
		t.Row(c.Service,
			fmt.Sprintf("%.3f", c.Before),
			fmt.Sprintf("%.3f", c.After),
			fmt.Sprintf("%.1f%%", c.Reduction*100))
	}
	t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})
	return t.String()
}

// Write prints the whole report as text tables.
func (r *Report) Write(w io.Writer) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Attack graph report " + r.RunID))
	b.WriteString("\n")
	fmt.Fprintf(&b, "services %d  subnets %d  gateways %d  honeypots %d  vulnerabilities %d\n",
		r.Summary.Services, r.Summary.Subnets, r.Summary.Gateways, r.Summary.Honeypots, r.Summary.Vulnerabilities)
	fmt.Fprintf(&b, "attack graph %d vertices %d edges  merged %d services %d edges\n",
		r.Summary.AttackVertices, r.Summary.AttackEdges, r.Summary.MergedServices, r.Summary.MergedEdges)
	fmt.Fprintf(&b, "compromisable %d  mean reachability %.3f  attack depth %d  cyclic %t\n\n",
		r.Summary.Compromisable, r.Summary.MeanReachability, r.Properties.AttackDepth, r.Properties.Cyclic)
	b.WriteString(r.ServiceTable())
	b.WriteString("\n")

	if len(r.Properties.Chokepoints) > 0 {
		names := make([]string, len(r.Properties.Chokepoints))
		for i, c := range r.Properties.Chokepoints {
			names[i] = fmt.Sprintf("%s (%.1f)", c.Service, c.Score)
		}
		fmt.Fprintf(&b, "chokepoints: %s\n", strings.Join(names, ", "))
	}
	if d := r.DefenceTable(); d != "" {
		b.WriteString("\n" + titleStyle.Render("Defence list") + "\n" + d + "\n")
	}
	if d := r.DeploymentTable(); d != "" {
		fmt.Fprintf(&b, "\n%s\n%s\nmean reduction %.1f%%\n",
			titleStyle.Render(fmt.Sprintf("Honeypots deployed: %d", len(r.Deployment.Placements))),
			d, r.Deployment.Comparison.MeanReduction*100)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func reachStyle(p float64) lipgloss.Style {
	switch {
	case p >= 0.7:
		return highStyle
	case p >= 0.4:
		return mediumStyle
	case p > 0:
		return lowStyle
	default:
		return cellStyle
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func hops(h int) string {
	if h < 0 {
		return "-"
	}
	return strconv.Itoa(h)
}
