// Package tui provides a live Bubble Tea dashboard for conduit's running
// Outputs (buffer/queue/retry state), adapted from the teacher's
// cli/tui/styles.go palette.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
)

var (
	// TitleStyle for the dashboard header.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for column headers.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Bold(true)

	// ValueStyle for normal row values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// DeadStyle marks an Output that has exhausted its retry budget.
	DeadStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	// RetryingStyle marks an Output currently backing off.
	RetryingStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// HealthyStyle marks an Output with no outstanding retries.
	HealthyStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// BoxStyle frames the whole dashboard.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// HelpStyle for the footer hint.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)
