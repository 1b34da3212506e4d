package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfbed/dspx/internal/oplog"
)

func testCandidates() []Candidate {
	return []Candidate{
		{Action: oplog.Action{Kind: oplog.KindDeleteFile, Target: "/a"}, Label: "/a", Selected: true},
		{Action: oplog.Action{Kind: oplog.KindDeleteFile, Target: "/b"}, Label: "/b", Selected: true},
		{Action: oplog.Action{Kind: oplog.KindRemoveDir, Target: "/d"}, Label: "/d", Selected: true},
	}
}

func press(m ApproveModel, key string) ApproveModel {
	var msg tea.KeyMsg
	switch key {
	case "space":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "q":
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	case "a":
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(ApproveModel)
}

func TestApproveConfirmAll(t *testing.T) {
	m := NewApprove("test", testCandidates())
	m = press(m, "enter")

	actions := m.Approved()
	require.Len(t, actions, 3)
	assert.Equal(t, "/a", actions[0].Target)
	assert.Equal(t, oplog.KindRemoveDir, actions[2].Kind)
}

func TestApproveCancelReturnsNil(t *testing.T) {
	m := NewApprove("test", testCandidates())
	m = press(m, "q")
	assert.Nil(t, m.Approved())
}

func TestApproveToggleDeselects(t *testing.T) {
	m := NewApprove("test", testCandidates())
	m = press(m, "space") // deselect /a
	m = press(m, "down")
	m = press(m, "space") // deselect /b
	m = press(m, "enter")

	actions := m.Approved()
	require.Len(t, actions, 1)
	assert.Equal(t, "/d", actions[0].Target)
}

func TestApproveToggleAll(t *testing.T) {
	m := NewApprove("test", testCandidates())
	m = press(m, "a") // all selected, so toggle everything off
	m = press(m, "enter")
	assert.Empty(t, m.Approved())

	m = NewApprove("test", testCandidates())
	m = press(m, "space") // mixed selection
	m = press(m, "a")     // mixed selects everything
	m = press(m, "enter")
	assert.Len(t, m.Approved(), 3)
}

func TestApproveViewShowsSelection(t *testing.T) {
	m := NewApprove("deletions", testCandidates())
	view := m.View()
	assert.Contains(t, view, "deletions")
	assert.Contains(t, view, "3 of 3 selected")
}
