package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/agentcore/pkg/agent"
	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/logging"
	"github.com/nstogner/agentcore/pkg/store"
	"github.com/nstogner/agentcore/pkg/tools"
)

func newTUICmd(flags *rootFlags) *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Chat with the agent in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Logs would corrupt the screen, so they only go to a file.
			if logFile == "" {
				logFile = "agentcore.log"
			}
			a, err := newApp(ctx, flags, logging.Options{Stderr: io.Discard, File: logFile}, true)
			if err != nil {
				return err
			}
			defer a.Close()

			p := tea.NewProgram(initialModel(ctx, a), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("running terminal UI: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "file receiving logs while the UI runs (default agentcore.log)")
	return cmd
}

type state int

const (
	stateMenu state = iota
	stateSelectingSession
	stateChatting
	stateApproving
	stateConfirmExit
)

type errMsg struct{ err error }
type eventMsg events.Event
type runDoneMsg struct{ err error }

// approvalRequest is sent by the agent's approver and answered from the UI.
type approvalRequest struct {
	tool  string
	input map[string]any
	reply chan bool
}

type sessionReadyMsg struct {
	agent      *agent.Agent
	sessionID  string
	transcript []events.Event
}

type model struct {
	ctx       context.Context
	app       *app
	agent     *agent.Agent
	sessionID string
	events    events.Channel
	approvals chan approvalRequest
	running   bool
	pending   *approvalRequest

	state             state
	availableSessions []store.Session
	cursor            int
	listOffset        int
	width             int
	height            int
	err               error

	viewport viewport.Model
	textarea textarea.Model

	transcript []events.Event
	renderer   *glamour.TermRenderer
}

func initialModel(ctx context.Context, a *app) model {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 0

	ta.SetWidth(80)
	ta.SetHeight(3)

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)

	return model{
		ctx:       ctx,
		app:       a,
		events:    make(events.Channel, 64),
		approvals: make(chan approvalRequest),
		state:     stateMenu,
		viewport:  vp,
		textarea:  ta,
		renderer:  newRenderer(80),
	}
}

// newRenderer uses a fixed style since auto detection queries the terminal
// and the replies leak into the input.
func newRenderer(width int) *glamour.TermRenderer {
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(max(width, 20)),
	)
	return r
}

func (m model) Init() tea.Cmd {
	return textarea.Blink
}

func (m model) maxViewable() int {
	if n := m.height - 7; n > 1 {
		return n
	}
	return 1
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	// Keys only reach the textarea while chatting, so menu selection does
	// not leak into it.
	switch msg.(type) {
	case tea.KeyMsg:
		if m.state == stateChatting {
			m.textarea, tiCmd = m.textarea.Update(msg)
			cmds = append(cmds, tiCmd)
		}
	default:
		m.textarea, tiCmd = m.textarea.Update(msg)
		cmds = append(cmds, tiCmd)
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 4
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		m.viewport.YPosition = 2

		m.renderer = newRenderer(m.width - 4)
		if m.state == stateChatting || m.state == stateApproving {
			m.refresh()
		}
		m.moveCursor(0)

	case tea.KeyMsg:
		return m.handleKey(msg, cmds)

	case sessionReadyMsg:
		m.agent = msg.agent
		m.sessionID = msg.sessionID
		m.transcript = msg.transcript
		return m.enterChat()

	case eventMsg:
		m.transcript = append(m.transcript, events.Event(msg))
		m.refresh()
		cmds = append(cmds, waitForEvent(m.events))

	case approvalRequest:
		m.pending = &msg
		m.state = stateApproving

	case runDoneMsg:
		m.running = false
		if msg.err != nil {
			m.err = msg.err
		}

	case errMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m model) handleKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.running {
			m.agent.Cancel()
			return m, tea.Batch(cmds...)
		}
		if m.agent != nil {
			m.state = stateConfirmExit
			return m, nil
		}
		return m, tea.Quit
	case tea.KeyEsc:
		switch {
		case m.state == stateConfirmExit:
			m.state = stateChatting
			return m, nil
		case m.state == stateSelectingSession:
			m.state = stateMenu
			m.cursor = 0
			return m, nil
		case m.agent != nil && !m.running:
			m.state = stateConfirmExit
			return m, nil
		case m.agent == nil:
			return m, tea.Quit
		}
	case tea.KeyEnter:
		switch m.state {
		case stateMenu:
			if m.cursor == 0 {
				return m, m.newSession()
			}
			sessions, err := m.app.store.ListSessions(m.ctx)
			if err != nil {
				m.err = err
			} else if len(sessions) == 0 {
				m.err = errors.New("no existing sessions found")
			} else {
				m.availableSessions = sessions
				m.state = stateSelectingSession
				m.cursor = 0
				m.listOffset = 0
			}
		case stateSelectingSession:
			return m, m.openSession(m.availableSessions[m.cursor].ID)
		case stateChatting:
			m.err = nil
			return m.sendMessage()
		}
	case tea.KeyUp:
		m.moveCursor(-1)
	case tea.KeyDown:
		m.moveCursor(1)
	default:
		switch m.state {
		case stateConfirmExit:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Sequence(m.endSessionCmd(), tea.Quit)
			case "n", "N":
				return m, tea.Quit
			}
		case stateApproving:
			switch msg.String() {
			case "y", "Y", "n", "N":
				m.pending.reply <- strings.EqualFold(msg.String(), "y")
				m.pending = nil
				m.state = stateChatting
				return m, waitForApproval(m.approvals)
			}
		}
	}
	return m, tea.Batch(cmds...)
}

var menuOptions = []string{"New Session", "Continue Session"}

// moveCursor shifts the list cursor by delta, clamped to the current list,
// and scrolls the window to keep it visible.
func (m *model) moveCursor(delta int) {
	var last int
	switch m.state {
	case stateMenu:
		last = len(menuOptions) - 1
	case stateSelectingSession:
		last = len(m.availableSessions) - 1
	}
	m.cursor = min(max(m.cursor+delta, 0), max(last, 0))
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+m.maxViewable() {
		m.listOffset = m.cursor - m.maxViewable() + 1
	}
}

// listView renders items[offset:offset+n] with the cursor marker.
func listView(items []string, cursor, offset, n int) string {
	end := min(offset+n, len(items))
	var lines []string
	for i := offset; i < end; i++ {
		marker, line := " ", items[i]
		if i == cursor {
			marker, line = ">", selectedItemStyle.Render(line)
		}
		lines = append(lines, cursorStyle.Render(marker)+" "+line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func sessionLine(s store.Session) string {
	name := s.Title
	if name == "" {
		name = s.ID
	}
	return fmt.Sprintf("%s  %s  %s", s.UpdatedAt.Local().Format(time.RFC822), s.Status, name)
}

func (m model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("\nError: %v", m.err))
	}

	switch m.state {
	case stateMenu:
		list := listView(menuOptions, m.cursor, 0, len(menuOptions))
		return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Main Menu"), "", list, "",
			"Press Enter to select, Esc to quit.", errorView)

	case stateSelectingSession:
		lines := make([]string, len(m.availableSessions))
		for i, s := range m.availableSessions {
			lines[i] = sessionLine(s)
		}
		list := listView(lines, m.cursor, m.listOffset, m.maxViewable())
		return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render("Select Session"), "", list, "",
			"Press Enter to select, Esc to go back.", errorView)

	case stateConfirmExit:
		header := titleStyle.Render("Confirm Exit")
		prompt := "End Session? (y/n)"
		subtext := "Ending the session closes it and removes its sandbox."
		return lipgloss.JoinVertical(lipgloss.Left, header, "", prompt, subtext, errorView)
	}

	footer := m.textarea.View()
	if m.state == stateApproving && m.pending != nil {
		input, _ := json.Marshal(m.pending.input)
		footer = lipgloss.JoinVertical(lipgloss.Left,
			toolStyle.Render("Allow "+m.pending.tool+"? (y/n)"),
			dimStyle.Render(clipLines(string(input), 3)),
		)
	}
	status := dimStyle.Render("session " + m.sessionID)
	if m.running {
		status = dimStyle.Render("working... ctrl+c to cancel")
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("Agent"),
		"",
		m.viewport.View(),
		status,
		errorView,
		footer,
	)
}

// Actions

// sink reports to the UI and records to the store.
func (m model) sink(sessionID string) events.Sink {
	return events.NewFanout(m.app.logger,
		m.events,
		&events.Recorder{Saver: m.app.store, SessionID: sessionID, Logger: m.app.logger},
	)
}

func (m model) approver() tools.Approver {
	approvals := m.approvals
	return tools.ApproverFunc(func(ctx context.Context, toolName string, input map[string]any) (bool, error) {
		req := approvalRequest{tool: toolName, input: input, reply: make(chan bool, 1)}
		select {
		case approvals <- req:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		select {
		case ok := <-req.reply:
			return ok, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})
}

func (m model) newSession() tea.Cmd {
	return func() tea.Msg {
		sess := &store.Session{Model: m.app.cfg.Model.Name}
		if err := m.app.store.CreateSession(m.ctx, sess); err != nil {
			return errMsg{err}
		}
		a, err := m.app.newAgent(sess.ID, m.sink(sess.ID), m.approver())
		if err != nil {
			return errMsg{err}
		}
		return sessionReadyMsg{agent: a, sessionID: sess.ID}
	}
}

func (m model) openSession(id string) tea.Cmd {
	return func() tea.Msg {
		h, err := m.app.store.LoadHistory(m.ctx, id)
		if err != nil {
			return errMsg{err}
		}
		transcript, err := m.app.store.SessionEvents(m.ctx, id)
		if err != nil {
			return errMsg{err}
		}
		if err := m.app.store.SetSessionStatus(m.ctx, id, store.SessionStatusActive); err != nil {
			return errMsg{err}
		}
		a, err := m.app.newAgent(id, m.sink(id), m.approver())
		if err != nil {
			return errMsg{err}
		}
		a.SetHistory(h)
		return sessionReadyMsg{agent: a, sessionID: id, transcript: transcript}
	}
}

func (m model) enterChat() (model, tea.Cmd) {
	m.state = stateChatting
	m.err = nil
	m.textarea.Placeholder = "Type a message... (/cancel, /clear, /exit)"
	m.textarea.Focus()
	m.refresh()

	return m, tea.Batch(
		waitForEvent(m.events),
		waitForApproval(m.approvals),
	)
}

func (m model) sendMessage() (model, tea.Cmd) {
	v := strings.TrimSpace(m.textarea.Value())
	if v == "" {
		return m, nil
	}

	switch v {
	case "/exit":
		m.textarea.Reset()
		m.state = stateConfirmExit
		return m, nil
	case "/cancel":
		m.textarea.Reset()
		m.agent.Cancel()
		return m, nil
	case "/clear":
		m.textarea.Reset()
		if m.running {
			m.err = agent.ErrBusy
			return m, nil
		}
		m.agent.Clear()
		m.transcript = nil
		m.refresh()
		return m, nil
	}
	if m.running {
		m.err = agent.ErrBusy
		return m, nil
	}

	m.textarea.Reset()
	user := events.New(events.TypeUserMessage, map[string]any{events.KeyText: v})
	m.transcript = append(m.transcript, user)
	m.refresh()
	m.running = true

	a, app, id, ctx := m.agent, m.app, m.sessionID, m.ctx
	return m, func() tea.Msg {
		if err := app.store.SaveEvent(ctx, id, user); err != nil {
			app.logger.Error("Failed to save user message", "error", err)
		}
		_, err := a.RunAgent(ctx, v, nil, true)
		if serr := app.store.SaveHistory(context.WithoutCancel(ctx), id, a.History()); serr != nil {
			app.logger.Error("Failed to save history", "error", serr)
		}
		return runDoneMsg{err}
	}
}

func (m model) endSessionCmd() tea.Cmd {
	a, id, ctx := m.app, m.sessionID, m.ctx
	return func() tea.Msg {
		if id != "" {
			a.endSession(ctx, id)
		}
		return nil
	}
}

// refresh re-renders the transcript into the viewport.
func (m *model) refresh() {
	var sb strings.Builder
	for _, e := range m.transcript {
		line := renderEvent(e, m.renderer)
		if line == "" {
			continue
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(e)
	}
}

func waitForApproval(ch <-chan approvalRequest) tea.Cmd {
	return func() tea.Msg {
		req, ok := <-ch
		if !ok {
			return nil
		}
		return req
	}
}
