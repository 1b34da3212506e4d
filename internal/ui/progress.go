// Package ui renders scan progress and the approval step in the terminal.
// It consumes session events over a channel; the engine never blocks on it.
package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wolfbed/dspx/internal/session"
	"github.com/wolfbed/dspx/pkg/utils"
)

var (
	phaseStyle  = lipgloss.NewStyle().Bold(true)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

type eventMsg session.Event

type doneMsg struct{}

// ProgressModel displays pipeline progress while a scan runs. It quits when
// the event channel closes.
type ProgressModel struct {
	events  <-chan session.Event
	spinner spinner.Model
	last    session.Event
	done    bool
}

// NewProgress creates a progress model over the session's event channel.
func NewProgress(events <-chan session.Event) ProgressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return ProgressModel{events: events, spinner: sp}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

func (m ProgressModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(e)
	}
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.last = session.Event(msg)
		return m, m.waitForEvent()
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return m, cmd
}

func (m ProgressModel) View() string {
	if m.done {
		return ""
	}

	var detail string
	switch m.last.Phase {
	case "walking":
		detail = fmt.Sprintf("%d files, %s under %s", m.last.Files, utils.FormatBytes(m.last.Bytes), m.last.Root)
	case "hashing":
		detail = fmt.Sprintf("%d files hashed", m.last.Hashed)
	case "":
		detail = "starting"
	}

	phase := m.last.Phase
	if phase == "" {
		phase = "scan"
	}
	return fmt.Sprintf("%s %s %s\n",
		m.spinner.View(),
		phaseStyle.Render(phase),
		detailStyle.Render(detail))
}
