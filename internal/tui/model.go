package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alforje/alforje/internal/manager"
	"github.com/alforje/alforje/internal/report"
)

// DoneMsg ends the progress view. The caller sends it once the run's
// goroutine returns.
type DoneMsg struct {
	Report *report.Report
	Err    error
}

type eventMsg manager.Event

type unitState int

const (
	statePending unitState = iota
	stateRunning
	stateDone
	stateFailed
)

// Model is the BubbleTea model for a sync run. It consumes manager events
// from a channel and tracks one line per unit of work, in declaration
// order.
type Model struct {
	units  []string
	states map[string]unitState
	labels map[string]string

	completed int
	width     int

	spinner  spinner.Model
	progress progress.Model
	theme    Theme

	events chan manager.Event
	cancel context.CancelFunc

	cancelling bool
	rep        *report.Report
	err        error
}

// New creates a progress model for the named units. Events for the run are
// read from events; cancel is invoked when the user interrupts the run.
func New(units []string, events chan manager.Event, cancel context.CancelFunc) *Model {
	theme := NewDefaultTheme()
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.Spinner))

	states := make(map[string]unitState, len(units))
	for _, u := range units {
		states[u] = statePending
	}

	return &Model{
		units:    units,
		states:   states,
		labels:   make(map[string]string, len(units)),
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient()),
		theme:    theme,
		events:   events,
		cancel:   cancel,
	}
}

func receiveNext(ch chan manager.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, receiveNext(m.events))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancelling = true
			m.cancel()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 6
		if m.progress.Width > 60 {
			m.progress.Width = 60
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.apply(manager.Event(msg))
		return m, receiveNext(m.events)

	case DoneMsg:
		m.rep = msg.Report
		m.err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) apply(e manager.Event) {
	switch e.Status {
	case "started":
		m.states[e.Name] = stateRunning
	case "failed":
		m.states[e.Name] = stateFailed
		m.labels[e.Name] = e.Status
		m.completed++
	default:
		m.states[e.Name] = stateDone
		m.labels[e.Name] = e.Status
		m.completed++
	}
}

func (m *Model) View() string {
	var b strings.Builder

	title := fmt.Sprintf("Syncing %d plugins", len(m.units))
	if m.cancelling {
		title += " (cancelling)"
	}
	b.WriteString(m.theme.Title.Render(title))
	b.WriteString("\n\n")

	for _, name := range m.units {
		switch m.states[name] {
		case statePending:
			fmt.Fprintf(&b, "  %s\n", m.theme.Dim.Render("· "+name))
		case stateRunning:
			fmt.Fprintf(&b, "  %s%s\n", m.spinner.View(), m.theme.Running.Render(name))
		case stateDone:
			fmt.Fprintf(&b, "  %s\n", m.theme.Done.Render(fmt.Sprintf("✓ %s %s", name, m.labels[name])))
		case stateFailed:
			fmt.Fprintf(&b, "  %s\n", m.theme.Failed.Render("✗ "+name))
		}
	}

	pct := 1.0
	if len(m.units) > 0 {
		pct = float64(m.completed) / float64(len(m.units))
	}
	b.WriteString("\n  " + m.progress.ViewAs(pct) + "\n")
	b.WriteString(m.theme.Dim.Render("  [q] cancel") + "\n")

	return lipgloss.NewStyle().Margin(1, 1).Render(b.String())
}

// Report returns the run's outcome once the view has quit.
func (m *Model) Report() (*report.Report, error) {
	return m.rep, m.err
}

// Cancelled reports whether the user interrupted the run.
func (m *Model) Cancelled() bool { return m.cancelling }
