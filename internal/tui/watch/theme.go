// Package watch implements the interpd live pool watch TUI.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch TUI.
type Theme struct {
	// Worker state colors
	StateIdle       lipgloss.Style
	StateBusy       lipgloss.Style
	StateCrashed    lipgloss.Style
	StateRespawning lipgloss.Style
	StateDead       lipgloss.Style

	// UI elements
	Border    lipgloss.Style
	Title     lipgloss.Style
	Header    lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	// Indicators
	PulseActive   lipgloss.Style
	PulseInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		StateIdle:       lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StateBusy:       lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StateCrashed:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StateRespawning: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		StateDead:       lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61AFEF")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		PulseActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		PulseInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}
