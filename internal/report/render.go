package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme centralizes report styling, so a future theme flag stays trivial.
type Theme struct {
	Installed lipgloss.Style
	Updated   lipgloss.Style
	Unchanged lipgloss.Style
	Removed   lipgloss.Style
	Failed    lipgloss.Style
	Dim       lipgloss.Style
}

// DefaultTheme mirrors the traditional colors: green for work done, blue for
// nothing to do, red for failures.
func DefaultTheme() Theme {
	return Theme{
		Installed: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Updated:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Unchanged: lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		Removed:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Failed:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (t Theme) styleFor(a Action) lipgloss.Style {
	switch a {
	case ActionInstalled:
		return t.Installed
	case ActionUpdated:
		return t.Updated
	case ActionRemoved:
		return t.Removed
	default:
		return t.Unchanged
	}
}

// Render formats the report for human consumption: successes with their
// changelogs first, then failures, even when only the failure list is
// non-empty.
func Render(r *Report, theme Theme) string {
	if r.Empty() {
		return "Nothing to do.\n"
	}

	var out strings.Builder

	for _, s := range r.Successes {
		fmt.Fprintf(&out, "%20s %s\n", s.Name, theme.styleFor(s.Action).Render(string(s.Action)))
		for _, entry := range s.Changelog {
			fmt.Fprintf(&out, "%20s   %s\n", "", theme.Dim.Render(entry))
		}
	}

	if len(r.Failures) > 0 {
		if len(r.Successes) > 0 {
			out.WriteString("\n")
		}
		out.WriteString("some plugins could not be updated:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&out, "%20s %s: %s\n",
				theme.Failed.Render(f.Name), f.Kind, f.Message)
		}
	}

	return out.String()
}
