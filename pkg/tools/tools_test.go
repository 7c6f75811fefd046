package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/agentcore/pkg/compress"
	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/tokens"
)

// fakeTool runs fn on Execute.
type fakeTool struct {
	name  string
	risky bool
	fn    func(input map[string]any) (Result, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake" }
func (f *fakeTool) InputSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "integer"}},
	}
}
func (f *fakeTool) Risky(map[string]any) bool { return f.risky }
func (f *fakeTool) Execute(ctx context.Context, input map[string]any, env Env) (Result, error) {
	return f.fn(input)
}

func newManager(t *testing.T, opts ManagerOptions, ts ...Tool) *Manager {
	t.Helper()
	m, err := NewManager(ts, opts)
	require.NoError(t, err)
	return m
}

func call(name string, input map[string]any) content.ToolCall {
	return content.ToolCall{ID: "call_1", Name: name, Input: input}
}

func TestRunToolUnknown(t *testing.T) {
	m := newManager(t, ManagerOptions{})
	out := m.RunTool(context.Background(), call("nonexistent_tool", nil), history.New())
	assert.Contains(t, out, "nonexistent_tool")
	assert.Contains(t, out, "not found")
	assert.Contains(t, out, NameComplete)
}

func TestRunToolInvalidInput(t *testing.T) {
	ran := false
	tool := &fakeTool{name: "typed", fn: func(map[string]any) (Result, error) {
		ran = true
		return TextResult("ok"), nil
	}}
	m := newManager(t, ManagerOptions{}, tool)

	out := m.RunTool(context.Background(), call("typed", map[string]any{"x": "not a number"}), nil)
	assert.True(t, strings.HasPrefix(out, "Error: Invalid input for tool 'typed'"), out)
	assert.False(t, ran)

	out = m.RunTool(context.Background(), call(NameComplete, map[string]any{}), nil)
	assert.True(t, strings.HasPrefix(out, "Error: Invalid input for tool 'complete'"), out)
	assert.False(t, m.ShouldStop())

	out = m.RunTool(context.Background(), call("typed", map[string]any{"x": float64(3)}), nil)
	assert.Equal(t, "ok", out)
	assert.True(t, ran)
}

func TestRunToolNeverPanics(t *testing.T) {
	panicky := &fakeTool{name: "panicky", fn: func(map[string]any) (Result, error) {
		panic("index out of range")
	}}
	failing := &fakeTool{name: "failing", fn: func(map[string]any) (Result, error) {
		return Result{}, errors.New("kaput")
	}}
	m := newManager(t, ManagerOptions{}, panicky, failing)

	var out string
	require.NotPanics(t, func() {
		out = m.RunTool(context.Background(), call("panicky", nil), nil)
	})
	assert.Equal(t, "Error: Tool 'panicky' failed: panic: index out of range", out)

	out = m.RunTool(context.Background(), call("failing", nil), nil)
	assert.Equal(t, "Error: Tool 'failing' failed: *errors.errorString: kaput", out)
}

func TestRunToolBoundsErrors(t *testing.T) {
	long := &fakeTool{name: "long", fn: func(map[string]any) (Result, error) {
		return Result{}, errors.New(strings.Repeat("e", 5000))
	}}
	m := newManager(t, ManagerOptions{MaxErrorLength: 100}, long)
	out := m.RunTool(context.Background(), call("long", nil), nil)
	assert.Len(t, out, 103)
	assert.Contains(t, out, "'long'")

	wide := &fakeTool{name: "wide", fn: func(map[string]any) (Result, error) {
		return Result{}, errors.New(strings.Repeat("日", 5000))
	}}
	m = newManager(t, ManagerOptions{MaxErrorLength: 100}, wide)
	out = m.RunTool(context.Background(), call("wide", nil), nil)
	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, len(out), 103)
}

func TestRunToolApproval(t *testing.T) {
	ran := 0
	risky := &fakeTool{name: "rm", risky: true, fn: func(map[string]any) (Result, error) {
		ran++
		return TextResult("removed"), nil
	}}
	allow := false
	var asked []string
	approver := ApproverFunc(func(ctx context.Context, name string, input map[string]any) (bool, error) {
		asked = append(asked, name)
		return allow, nil
	})
	m := newManager(t, ManagerOptions{Approver: approver}, risky)

	out := m.RunTool(context.Background(), call("rm", nil), nil)
	assert.Equal(t, "Tool 'rm' was not approved by the user.", out)
	assert.Equal(t, 0, ran)

	allow = true
	out = m.RunTool(context.Background(), call("rm", nil), nil)
	assert.Equal(t, "removed", out)
	assert.Equal(t, []string{"rm", "rm"}, asked)

	// Non-risky tools are never submitted.
	m.RunTool(context.Background(), call(NameComplete, map[string]any{"answer": "x"}), nil)
	assert.Len(t, asked, 2)
}

func TestCompletionTools(t *testing.T) {
	m := newManager(t, ManagerOptions{})
	assert.False(t, m.ShouldStop())

	out := m.RunTool(context.Background(), call(NameComplete, map[string]any{"answer": ""}), nil)
	assert.Contains(t, out, "model returned empty answer")
	assert.False(t, m.ShouldStop())

	out = m.RunTool(context.Background(), call(NameComplete, map[string]any{"answer": "42"}), nil)
	assert.Equal(t, "Task completed", out)
	assert.True(t, m.ShouldStop())
	assert.Equal(t, "42", m.FinalAnswer())

	m.Reset()
	assert.False(t, m.ShouldStop())
	assert.Empty(t, m.FinalAnswer())

	interactive := newManager(t, ManagerOptions{Interactive: true})
	var names []string
	for _, s := range interactive.Specs() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{NameReturnControl}, names)
	interactive.RunTool(context.Background(), call(NameReturnControl, nil), nil)
	assert.True(t, interactive.ShouldStop())
	assert.Equal(t, "Task completed", interactive.FinalAnswer())
}

func TestDuplicateToolNames(t *testing.T) {
	_, err := NewManager([]Tool{&MessageUserTool{}, &MessageUserTool{}}, ManagerOptions{})
	assert.Error(t, err)
}

func TestSimpleMemory(t *testing.T) {
	ctx := context.Background()
	mem := NewSimpleMemoryTool()
	run := func(input map[string]any) Result {
		res, err := mem.Execute(ctx, input, Env{})
		require.NoError(t, err)
		return res
	}

	res := run(map[string]any{"action": "read"})
	assert.Equal(t, "", res.Output)
	assert.Equal(t, "Memory read successfully", res.Summary)

	res = run(map[string]any{"action": "write", "content": "The quick brown fox."})
	assert.Equal(t, "Memory updated successfully.", res.Output)

	res = run(map[string]any{"action": "write", "content": "apple apple pie."})
	assert.Contains(t, res.Output, "Warning: Overwriting existing content.")
	assert.Contains(t, res.Output, "Previous content was:\nThe quick brown fox.")

	res = run(map[string]any{"action": "edit", "old_string": "apple", "new_string": "orange"})
	assert.Contains(t, res.Output, "Warning: Found 2 occurrences of 'apple'.")
	assert.Equal(t, "apple apple pie.", mem.Memory())

	res = run(map[string]any{"action": "edit", "old_string": "galaxy"})
	assert.Equal(t, "Error: 'galaxy' not found in memory.", res.Output)

	res = run(map[string]any{"action": "edit", "old_string": " pie"})
	assert.Equal(t, "Edited memory: 1 occurrence replaced.", res.Output)
	assert.Equal(t, "apple apple.", mem.Memory())

	res = run(map[string]any{"action": "forget"})
	assert.Equal(t, "Error: Unknown action 'forget'. Valid actions are read, write, edit.", res.Output)
	assert.Equal(t, false, res.Aux["success"])
}

func TestMessageUser(t *testing.T) {
	var buf events.Buffer
	m := newManager(t, ManagerOptions{Events: &buf}, &MessageUserTool{})

	out := m.RunTool(context.Background(), call(NameMessageUser, map[string]any{"text": "halfway there"}), nil)
	assert.Equal(t, "Sent message to user", out)
	evs := buf.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeAgentResponse, evs[0].Type)
	assert.Equal(t, "halfway there", evs[0].Text())

	out = m.RunTool(context.Background(), call(NameMessageUser, map[string]any{"text": " "}), nil)
	assert.Contains(t, out, "model returned empty message")
}

func TestCompactifyMemory(t *testing.T) {
	trunc := compress.NewTruncating(compress.Budget{KeepFirst: 1, TailSize: 1}, tokens.Default(), nil)
	m := newManager(t, ManagerOptions{}, BuildTools(Options{Compressor: trunc})...)

	h := history.New()
	h.AddUserTurn("u0")
	h.AddAssistantTurn(content.TextResult{Text: "a1"})
	h.AddUserTurn("u2")
	h.AddAssistantTurn(content.TextResult{Text: "a3"})
	h.AddUserTurn("u4")
	c := content.ToolCall{ID: "c9", Name: NameCompactifyMemory, Input: map[string]any{}}
	h.AddAssistantTurn(c)

	out := m.RunTool(context.Background(), c, h)
	assert.Equal(t, "Memory compactified.", out)

	turns := h.Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, "u0", turns[0].Text())
	assert.True(t, content.IsSummary(turns[1]))
	assert.Equal(t, "u4", turns[2].Text())
	pending := h.PendingToolCalls()
	require.Len(t, pending, 1)
	assert.Equal(t, "c9", pending[0].ID)

	res, err := NewCompactifyMemoryTool(trunc).Execute(context.Background(), nil, Env{})
	require.NoError(t, err)
	assert.Equal(t, "Message history is required to compactify memory.", res.Output)
	assert.Equal(t, false, res.Aux["success"])
}

func TestFileTools(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, ManagerOptions{}, BuildTools(Options{Workspace: dir})...)
	ctx := context.Background()

	out := m.RunTool(ctx, call("write_file", map[string]any{"path": "sub/a.txt", "content": "hello"}), nil)
	assert.Equal(t, "Wrote 5 bytes to sub/a.txt", out)
	data, err := os.ReadFile(filepath.Join(dir, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	out = m.RunTool(ctx, call("read_file", map[string]any{"path": "sub/a.txt"}), nil)
	assert.Equal(t, "hello", out)

	out = m.RunTool(ctx, call("list_files", map[string]any{"path": "."}), nil)
	assert.Equal(t, "sub/", out)

	out = m.RunTool(ctx, call("read_file", map[string]any{"path": "../../etc/passwd"}), nil)
	assert.Contains(t, out, "outside the workspace")
}

func TestReadFileTruncatesOnRuneBoundary(t *testing.T) {
	dir := t.TempDir()
	// 3-byte runes so the limit lands inside one.
	big := strings.Repeat("日", MaxReadBytes/3+10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte(big), 0o644))
	m := newManager(t, ManagerOptions{}, BuildTools(Options{Workspace: dir})...)

	out := m.RunTool(context.Background(), call("read_file", map[string]any{"path": "big.txt"}), nil)
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "... (truncated,")
	assert.True(t, strings.HasPrefix(out, strings.Repeat("日", 100)))
}

func TestWriteFileRiskyOnOverwrite(t *testing.T) {
	dir := t.TempDir()
	ws := &Workspace{Root: dir}
	w := &WriteFileTool{ws: ws}
	assert.False(t, w.Risky(map[string]any{"path": "new.txt"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("x"), 0o644))
	assert.True(t, w.Risky(map[string]any{"path": "old.txt"}))
}
