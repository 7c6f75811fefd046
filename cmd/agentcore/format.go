package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/agentcore/pkg/events"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	resultStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(lipgloss.Color("245"))

	cursorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1)
)

// maxResultLines bounds tool output shown in the terminal.
const maxResultLines = 12

// formatEvent renders an event as plain styled text. Events with nothing to
// show return "".
func formatEvent(e events.Event) string {
	return renderEvent(e, nil)
}

// renderEvent is formatEvent with markdown rendering for agent text when r
// is set.
func renderEvent(e events.Event, r *glamour.TermRenderer) string {
	str := func(key string) string {
		s, _ := e.Content[key].(string)
		return s
	}

	switch e.Type {
	case events.TypeUserMessage:
		return userStyle.Render("User: ") + "\n" + e.Text()
	case events.TypeAgentThinking:
		return dimStyle.Render("thinking: " + e.Text())
	case events.TypeToolCall:
		input, _ := json.Marshal(e.Content[events.KeyToolInput])
		return toolStyle.Render("[Tool: "+str(events.KeyToolName)+"]") + " " + dimStyle.Render(string(input))
	case events.TypeToolResult:
		return resultStyle.Render(clipLines(str(events.KeyResult), maxResultLines))
	case events.TypeAgentResponse, events.TypeAgentResponseInterrupted:
		text := e.Text()
		if r != nil {
			if rendered, err := r.Render(text); err == nil {
				text = rendered
			}
		}
		label := "Agent: "
		if e.Type == events.TypeAgentResponseInterrupted {
			label = "Agent (interrupted): "
		}
		return senderStyle.Render(label) + "\n" + text
	case events.TypeSystem:
		return dimStyle.Render(str(events.KeyMessage))
	case events.TypeError:
		return errorStyle.Render("Error: " + str(events.KeyMessage))
	}
	return ""
}

func clipLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:n], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-n)
}
