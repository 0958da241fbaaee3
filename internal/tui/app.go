// internal/tui/app.go
//
// Dashboard for a running kitchen. It polls kitchen snapshots on a tick and
// renders the floor, the chefs, station and plate usage, and the journal.
// Built on bubbletea: Init schedules the first poll, Update folds messages
// into the model, View renders it.

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/kitchenline/internal/kitchen"
)

const (
	defaultRefresh = 200 * time.Millisecond
	journalLines   = 200
	sidePanelWidth = 46
)

// SnapshotSource is what the dashboard polls. *kitchen.Kitchen satisfies it.
type SnapshotSource interface {
	Snapshot(journalLines int) (kitchen.Snapshot, error)
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithRefreshInterval overrides how often snapshots are polled.
func WithRefreshInterval(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.refresh = d
		}
	}
}

// WithTitle overrides the header text.
func WithTitle(title string) AppOption {
	return func(a *App) {
		if strings.TrimSpace(title) != "" {
			a.title = title
		}
	}
}

type snapshotMsg struct {
	snap kitchen.Snapshot
	err  error
}

// App is the dashboard model.
type App struct {
	source  SnapshotSource
	refresh time.Duration
	title   string

	snap    kitchen.Snapshot
	hasSnap bool
	err     error

	journal     viewport.Model
	followTail  bool
	lastJournal int

	width  int
	height int
}

// NewApp builds a dashboard over source.
func NewApp(source SnapshotSource, opts ...AppOption) *App {
	a := &App{
		source:     source,
		refresh:    defaultRefresh,
		title:      "KITCHEN LINE",
		journal:    viewport.New(sidePanelWidth, 10),
		followTail: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return a.fetchSnapshot()
}

// Update folds a message into the model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.journal.Width = sidePanelWidth
		a.journal.Height = max(3, msg.Height/3)
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "f":
			a.followTail = !a.followTail
			if a.followTail {
				a.journal.GotoBottom()
			}
			return a, nil
		}
		var cmd tea.Cmd
		a.journal, cmd = a.journal.Update(msg)
		a.followTail = a.journal.AtBottom()
		return a, cmd

	case snapshotMsg:
		a.err = msg.err
		if msg.err == nil {
			a.snap = msg.snap
			a.hasSnap = true
			if msg.snap.JournalSize != a.lastJournal {
				a.lastJournal = msg.snap.JournalSize
				a.journal.SetContent(strings.Join(msg.snap.Journal, "\n"))
				if a.followTail {
					a.journal.GotoBottom()
				}
			}
		}
		return a, a.scheduleRefresh()
	}
	return a, nil
}

// View renders the dashboard.
func (a *App) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("⬡ " + a.title)
	if !a.hasSnap {
		body := "Waiting for the first snapshot…"
		if a.err != nil {
			body = fmt.Sprintf("⚠ %v", a.err)
		}
		return strings.Join([]string{header, body}, "\n")
	}

	floorWidth, floorHeight := 0, 0
	if a.width > 0 {
		floorWidth = max(20, a.width-sidePanelWidth-8)
	}
	if a.height > 0 {
		floorHeight = max(5, a.height-6)
	}
	floorBox := boxStyle().Render(renderFloor(a.snap.Grid, a.snap.Agents, floorWidth, floorHeight))
	side := lipgloss.JoinVertical(lipgloss.Left,
		boxStyle().Width(sidePanelWidth).Render(a.renderChefs()),
		boxStyle().Width(sidePanelWidth).Render(a.renderResources()),
		boxStyle().Width(sidePanelWidth).Render(a.renderJournal()),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, floorBox, side)

	status := fmt.Sprintf("%d meal(s) served · queue %d/%d · updated %s",
		a.snap.MealsServed, len(a.snap.Queue), a.snap.QueueCap, a.snap.Taken.Format("15:04:05"))
	if a.err != nil {
		status += fmt.Sprintf(" · ⚠ %v", a.err)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(status + "    q → quit    f → follow journal")
	return strings.Join([]string{header, body, footer}, "\n")
}

func boxStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1)
}

func panelTitle(text string) string {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(text)
}

func (a *App) renderChefs() string {
	lines := []string{panelTitle(fmt.Sprintf("Chefs (%d)", len(a.snap.Chefs)))}
	for _, c := range a.snap.Chefs {
		line := fmt.Sprintf("%s %-9s", chefStyles[c.ID%len(chefStyles)].Render(fmt.Sprintf("#%d", c.ID)), c.State)
		if c.Order != nil {
			line += fmt.Sprintf(" order %d %s", c.Order.ID, c.Order.Item)
			if c.StepName != "" {
				line += fmt.Sprintf(" · %d %s", c.Step, c.StepName)
			}
		}
		line += fmt.Sprintf(" · served %d", c.Served)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderResources() string {
	lines := []string{panelTitle("Stations")}
	for _, s := range a.snap.Stations {
		lines = append(lines, fmt.Sprintf("%-14s %s %d/%d", s.Kind, usageBar(s.Held, s.Capacity), s.Held, s.Capacity))
	}
	lines = append(lines, "", panelTitle("Plates"))
	for _, p := range a.snap.Plates {
		holder := "free"
		if p.InUse {
			holder = fmt.Sprintf("chef %d", p.Holder)
		}
		lines = append(lines, fmt.Sprintf("plate %d  %-7s uses %d", p.ID, holder, p.UseCount))
	}
	if len(a.snap.Queue) > 0 {
		var items []string
		for _, o := range a.snap.Queue {
			items = append(items, fmt.Sprintf("%d:%s", o.MealID, o.Item))
		}
		lines = append(lines, "", panelTitle("Queue"), strings.Join(items, ", "))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderJournal() string {
	title := panelTitle(fmt.Sprintf("Journal (%d)", a.snap.JournalSize))
	return lipgloss.JoinVertical(lipgloss.Left, title, a.journal.View())
}

func usageBar(held, capacity int) string {
	if capacity <= 0 {
		return ""
	}
	return "[" + strings.Repeat("■", held) + strings.Repeat("·", max(0, capacity-held)) + "]"
}

func (a *App) fetchSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, err := a.source.Snapshot(journalLines)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(a.refresh, func(time.Time) tea.Msg {
		snap, err := a.source.Snapshot(journalLines)
		return snapshotMsg{snap: snap, err: err}
	})
}
