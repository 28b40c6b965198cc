// Package tui renders live progress for a sync run when stdout is a
// terminal.
package tui

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the progress view. A single default
// theme today, but keeping every color in one place makes alternatives
// trivial.
type Theme struct {
	Title   lipgloss.Style
	Dim     lipgloss.Style
	Running lipgloss.Style
	Done    lipgloss.Style
	Failed  lipgloss.Style
	Spinner lipgloss.Style
}

func NewDefaultTheme() Theme {
	return Theme{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Running: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Done:    lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Spinner: lipgloss.NewStyle().Foreground(lipgloss.Color("#874BFD")),
	}
}
