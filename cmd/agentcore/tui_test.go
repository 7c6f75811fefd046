package main

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/agentcore/pkg/store"
)

func press(t *testing.T, m model, keys ...tea.KeyType) model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(tea.KeyMsg{Type: k})
		var ok bool
		m, ok = next.(model)
		require.True(t, ok)
	}
	return m
}

func TestMenuCursorIsClamped(t *testing.T) {
	m := initialModel(context.Background(), nil)
	m.height = 20

	m = press(t, m, tea.KeyDown, tea.KeyDown, tea.KeyDown)
	assert.Equal(t, len(menuOptions)-1, m.cursor)
	m = press(t, m, tea.KeyUp, tea.KeyUp)
	assert.Equal(t, 0, m.cursor)
	assert.Contains(t, m.View(), "New Session")
}

func TestSessionListScrolls(t *testing.T) {
	m := initialModel(context.Background(), nil)
	m.height = 10 // three visible rows
	m.state = stateSelectingSession
	for i := range 20 {
		m.availableSessions = append(m.availableSessions, store.Session{ID: fmt.Sprintf("s%02d", i)})
	}

	m = press(t, m, tea.KeyDown, tea.KeyDown, tea.KeyDown, tea.KeyDown, tea.KeyDown)
	assert.Equal(t, 5, m.cursor)
	assert.Equal(t, 3, m.listOffset)
	view := m.View()
	assert.Contains(t, view, "s05")
	assert.NotContains(t, view, "s02")

	m = press(t, m, tea.KeyEsc)
	assert.Equal(t, stateMenu, m.state)
	assert.Equal(t, 0, m.cursor)
}

func TestListView(t *testing.T) {
	out := listView([]string{"a", "b", "c", "d"}, 2, 1, 2)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "b")
	assert.Contains(t, lines[1], ">")
	assert.Contains(t, lines[1], "c")

	assert.Contains(t, sessionLine(store.Session{ID: "abc"}), "abc")
	assert.Contains(t, sessionLine(store.Session{ID: "abc", Title: "named"}), "named")
}
