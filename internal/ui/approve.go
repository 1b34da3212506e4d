package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wolfbed/dspx/internal/oplog"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Candidate is one proposed action shown for approval.
type Candidate struct {
	Action   oplog.Action
	Label    string
	Selected bool
}

type approveKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	All     key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

func defaultApproveKeys() approveKeyMap {
	return approveKeyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle:  key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle")),
		All:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "toggle all")),
		Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "apply selected")),
		Cancel:  key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "cancel")),
	}
}

// ApproveModel is the checkbox list that turns scan results into the
// explicitly approved action list the executor requires.
type ApproveModel struct {
	title      string
	candidates []Candidate
	keys       approveKeyMap
	cursor     int
	height     int
	confirmed  bool
}

// NewApprove creates an approval model over the candidates.
func NewApprove(title string, candidates []Candidate) ApproveModel {
	return ApproveModel{
		title:      title,
		candidates: candidates,
		keys:       defaultApproveKeys(),
		height:     20,
	}
}

func (m ApproveModel) Init() tea.Cmd { return nil }

func (m ApproveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Height > 6 {
			m.height = msg.Height - 5
		}
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.candidates)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Toggle):
			if len(m.candidates) > 0 {
				m.candidates[m.cursor].Selected = !m.candidates[m.cursor].Selected
			}
		case key.Matches(msg, m.keys.All):
			all := true
			for _, c := range m.candidates {
				if !c.Selected {
					all = false
					break
				}
			}
			for i := range m.candidates {
				m.candidates[i].Selected = !all
			}
		case key.Matches(msg, m.keys.Confirm):
			m.confirmed = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Cancel):
			m.confirmed = false
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ApproveModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	start := 0
	if m.cursor >= m.height {
		start = m.cursor - m.height + 1
	}
	end := min(start+m.height, len(m.candidates))

	for i := start; i < end; i++ {
		c := m.candidates[i]
		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}
		check := "[ ]"
		label := c.Label
		if c.Selected {
			check = selectedStyle.Render("[x]")
			label = selectedStyle.Render(label)
		}
		fmt.Fprintf(&b, "%s%s %s\n", cursor, check, label)
	}

	fmt.Fprintf(&b, "\n%d of %d selected\n", m.selectedCount(), len(m.candidates))
	b.WriteString(helpStyle.Render("space toggle · a all · enter apply · q cancel"))
	b.WriteString("\n")
	return b.String()
}

func (m ApproveModel) selectedCount() int {
	n := 0
	for _, c := range m.candidates {
		if c.Selected {
			n++
		}
	}
	return n
}

// Approved returns the selected actions, or nil when cancelled.
func (m ApproveModel) Approved() []oplog.Action {
	if !m.confirmed {
		return nil
	}
	var actions []oplog.Action
	for _, c := range m.candidates {
		if c.Selected {
			actions = append(actions, c.Action)
		}
	}
	return actions
}
