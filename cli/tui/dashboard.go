package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/conduit/output"
)

// StatsProvider is the subset of *output.BufferedOutput the dashboard
// needs. Satisfied directly by *output.BufferedOutput; accepting the
// interface keeps this package from depending on anything beyond Stats().
type StatsProvider interface {
	Stats() output.Stats
}

// Row binds a display name to the Output it reports on.
type Row struct {
	Name     string
	Observer StatsProvider
}

const refreshInterval = 500 * time.Millisecond

type tickMsg time.Time

// Dashboard is a Bubble Tea model polling every Output's Stats() on a
// ticker, per SPEC_FULL.md's "conduit run --tui" feature.
type Dashboard struct {
	rows     []Row
	quitting bool
}

// NewDashboard creates a Dashboard over the given rows.
func NewDashboard(rows []Row) Dashboard {
	return Dashboard{rows: rows}
}

var keys = struct {
	Quit key.Binding
}{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc")),
}

// Init implements tea.Model.
func (d Dashboard) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			d.quitting = true
			return d, tea.Quit
		}
	case tickMsg:
		return d, tick()
	}
	return d, nil
}

// View implements tea.Model.
func (d Dashboard) View() string {
	if d.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("conduit — live output state"))
	b.WriteString("\n\n")
	b.WriteString(LabelStyle.Render(fmt.Sprintf("%-16s %10s %14s %10s %6s %s", "PLUGIN", "QUEUE", "QUEUED BYTES", "RETRIES", "STATE", "LAST ERROR")))
	b.WriteString("\n")

	for _, row := range d.rows {
		s := row.Observer.Stats()
		state := HealthyStyle.Render("ok")
		if s.Dead {
			state = DeadStyle.Render("dead")
		} else if s.RetryCount > 0 {
			state = RetryingStyle.Render("retry")
		}

		lastErr := "-"
		if !s.LastErrorAt.IsZero() {
			lastErr = s.LastErrorAt.Format("15:04:05")
		}

		prefix := fmt.Sprintf("%-16s %10d %14d %10d ", row.Name, s.BufferQueueLength, s.BufferTotalQueuedBytes, s.RetryCount)
		b.WriteString(ValueStyle.Render(prefix))
		b.WriteString(state)
		b.WriteString("  " + lastErr)
		b.WriteString("\n")
	}

	help := HelpStyle.Render("Press q to quit")
	return BoxStyle.Render(b.String()) + "\n" + help
}
