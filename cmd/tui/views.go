package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var s strings.Builder

	s.WriteString(titleStyle.Render(fmt.Sprintf("Attack graph report %s (%s)", m.report.RunID, m.path)))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	switch m.currentView {
	case dashboardView:
		s.WriteString(m.renderDashboard())
	case servicesView:
		s.WriteString(m.renderServices())
	case pathsView:
		s.WriteString(m.renderPaths())
	case defenceView:
		s.WriteString(m.renderDefence())
	}

	if m.message != "" {
		s.WriteString("\n\n")
		if m.messageErr {
			s.WriteString(errorStyle.Render("✗ " + m.message))
		} else {
			s.WriteString(successStyle.Render("✓ " + m.message))
		}
	}

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return s.String()
}

func (m model) renderTabs() string {
	var renderedTabs []string
	for i, tab := range tabNames {
		if view(i) == m.currentView {
			renderedTabs = append(renderedTabs, activeTabStyle.Render(tab))
		} else {
			renderedTabs = append(renderedTabs, inactiveTabStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
}

func (m model) renderDashboard() string {
	sum := m.report.Summary
	props := m.report.Properties

	statsContent := fmt.Sprintf(`Deployment
──────────────────
Services:        %d
Subnets:         %d
Gateways:        %d
Honeypots:       %d
Vulnerabilities: %d

Risk
──────────────────
Compromisable:   %d
Mean reach:      %.3f`,
		sum.Services, sum.Subnets, sum.Gateways, sum.Honeypots, sum.Vulnerabilities,
		sum.Compromisable, sum.MeanReachability)

	graphContent := fmt.Sprintf(`Attack graph
──────────────────
Vertices:        %d
Edges:           %d
Depth:           %d
Cyclic:          %t

Merged graph
──────────────────
Services:        %d
Edges:           %d
Components:      %d`,
		sum.AttackVertices, sum.AttackEdges, props.AttackDepth, props.Cyclic,
		sum.MergedServices, sum.MergedEdges, props.Components)

	var top strings.Builder
	top.WriteString("Most exposed\n──────────────────\n")
	risks := m.report.TopRisks(5)
	if len(risks) == 0 {
		top.WriteString("nothing reachable")
	}
	for i, r := range risks {
		bar := strings.Repeat("█", int(r.Reachability*20))
		fmt.Fprintf(&top, "%d. %-12s %.3f %s\n", i+1, r.Name, r.Reachability, bar)
	}

	return contentStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top,
			statsBoxStyle.Render(statsContent),
			statsBoxStyle.Render(graphContent)),
		statsBoxStyle.Render(strings.TrimRight(top.String(), "\n")),
	))
}

func (m model) renderServices() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("Services"))
	s.WriteString("\n\n")
	s.WriteString(m.serviceTbl.View())
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Navigate with ↑/↓ • * marks a honeypot"))
	return contentStyle.Render(s.String())
}

func (m model) renderPaths() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("Attack paths"))
	s.WriteString("\n\n")
	s.WriteString("Filter by service: ")
	s.WriteString(m.filterInput.View())
	s.WriteString("\n\n")
	s.WriteString(m.pathTbl.View())
	return contentStyle.Render(s.String())
}

func (m model) renderDefence() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("Defence"))
	s.WriteString("\n\n")

	if len(m.report.DefenceList) == 0 {
		s.WriteString(helpStyle.Render("No defence list in this report\n\nRun analyze with deploy-honeypots enabled."))
		return contentStyle.Render(s.String())
	}
	s.WriteString(m.defence.View())

	if d := m.report.Deployment; d != nil && len(d.Placements) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "Deployed %d honeypots\n──────────────────\n", len(d.Placements))
		for _, p := range d.Placements {
			fmt.Fprintf(&b, "%s next to %s\n", p.Name, p.Target)
		}
		fmt.Fprintf(&b, "\nMean reduction:  %.1f%%", d.Comparison.MeanReduction*100)
		s.WriteString("\n")
		s.WriteString(statsBoxStyle.Render(b.String()))
	}
	return contentStyle.Render(s.String())
}
