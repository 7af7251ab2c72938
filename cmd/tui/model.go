package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dd0wney/cluso-attackgraph/pkg/attackgraph"
	"github.com/dd0wney/cluso-attackgraph/pkg/report"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#FF00FF")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	contentStyle = lipgloss.NewStyle().
			MarginTop(1).
			MarginLeft(2)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	dashboardView view = iota
	servicesView
	pathsView
	defenceView
	viewCount
)

var tabNames = []string{"Dashboard", "Services", "Attack paths", "Defence"}

type keyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Enter    key.Binding
	Quit     key.Binding
	Up       key.Binding
	Down     key.Binding
}

var keys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	ShiftTab: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev view"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "filter"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down"),
		key.WithHelp("↓", "down"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Enter, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ShiftTab, k.Enter},
		{k.Up, k.Down},
		{k.Quit},
	}
}

// defenceItem is one ranked service of the defence list.
type defenceItem struct {
	rank int
	pc   report.PathCountView
}

func (i defenceItem) Title() string { return fmt.Sprintf("%d. %s", i.rank, i.pc.Service) }
func (i defenceItem) Description() string {
	return fmt.Sprintf("%d paths, reachability %.3f", i.pc.Count, i.pc.Reachability)
}
func (i defenceItem) FilterValue() string { return i.pc.Service }

type model struct {
	report      *report.Report
	path        string
	currentView view
	filterInput textinput.Model
	serviceTbl  table.Model
	pathTbl     table.Model
	defence     list.Model
	help        help.Model
	keys        keyMap
	width       int
	height      int
	message     string
	messageErr  bool
}

func initialModel(r *report.Report, path string) model {
	ti := textinput.New()
	ti.Placeholder = "service name"
	ti.CharLimit = 64
	ti.Width = 30

	services := newTable([]table.Column{
		{Title: "Service", Width: 16},
		{Title: "Image", Width: 20},
		{Title: "Vulns", Width: 6},
		{Title: "Max priv", Width: 10},
		{Title: "Reach", Width: 7},
		{Title: "Hops", Width: 5},
	})
	services.SetRows(serviceRows(r))

	paths := newTable([]table.Column{
		{Title: "From", Width: 20},
		{Title: "To", Width: 20},
		{Title: "Weight", Width: 8},
		{Title: "Vulnerabilities", Width: 36},
	})
	paths.SetRows(pathRows(r.AttackEdges, ""))

	items := make([]list.Item, 0, len(r.DefenceList))
	for i, pc := range r.DefenceView() {
		items = append(items, defenceItem{rank: i + 1, pc: pc})
	}
	defence := list.New(items, list.NewDefaultDelegate(), 60, 16)
	defence.Title = "Honeypot candidates"
	defence.SetShowHelp(false)

	return model{
		report:      r,
		path:        path,
		currentView: dashboardView,
		filterInput: ti,
		serviceTbl:  services,
		pathTbl:     paths,
		defence:     defence,
		help:        help.New(),
		keys:        keys,
	}
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func serviceRows(r *report.Report) []table.Row {
	rows := make([]table.Row, 0, len(r.Services))
	for _, s := range r.Services {
		name := s.Name
		if s.Honeypot {
			name += " *"
		}
		priv, hops := s.MaxPrivilege, strconv.Itoa(s.Hops)
		if priv == "" {
			priv = "-"
		}
		if s.Hops < 0 {
			hops = "-"
		}
		rows = append(rows, table.Row{
			name, s.Image, strconv.Itoa(s.Vulnerabilities), priv,
			fmt.Sprintf("%.3f", s.Reachability), hops,
		})
	}
	return rows
}

// pathRows lists attack edges touching a service whose name contains filter.
func pathRows(edges []attackgraph.Edge, filter string) []table.Row {
	rows := make([]table.Row, 0, len(edges))
	for _, e := range edges {
		if filter != "" &&
			!strings.Contains(e.From.Service, filter) &&
			!strings.Contains(e.To.Service, filter) {
			continue
		}
		rows = append(rows, table.Row{
			e.From.String(), e.To.String(),
			fmt.Sprintf("%.3f", e.Weight), strings.Join(e.Labels, ", "),
		})
	}
	return rows
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.defence.SetSize(msg.Width-4, max(msg.Height-12, 5))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Tab):
			m.setView((m.currentView + 1) % viewCount)
			return m, nil

		case key.Matches(msg, m.keys.ShiftTab):
			m.setView((m.currentView + viewCount - 1) % viewCount)
			return m, nil

		case key.Matches(msg, m.keys.Enter):
			if m.currentView == pathsView {
				m.applyFilter()
				return m, nil
			}
		}
	}

	// Update focused component
	switch m.currentView {
	case servicesView:
		m.serviceTbl, cmd = m.serviceTbl.Update(msg)
		cmds = append(cmds, cmd)
	case pathsView:
		m.filterInput, cmd = m.filterInput.Update(msg)
		cmds = append(cmds, cmd)
		m.pathTbl, cmd = m.pathTbl.Update(msg)
		cmds = append(cmds, cmd)
	case defenceView:
		m.defence, cmd = m.defence.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) setView(v view) {
	m.currentView = v
	m.message = ""
	if v == pathsView {
		m.filterInput.Focus()
	} else {
		m.filterInput.Blur()
	}
}

func (m *model) applyFilter() {
	filter := strings.TrimSpace(m.filterInput.Value())
	rows := pathRows(m.report.AttackEdges, filter)
	m.pathTbl.SetRows(rows)
	m.pathTbl.SetCursor(0)
	if len(rows) == 0 {
		m.message = fmt.Sprintf("No attack edges touch %q", filter)
		m.messageErr = true
		return
	}
	m.message = fmt.Sprintf("%d attack edges", len(rows))
	m.messageErr = false
}
