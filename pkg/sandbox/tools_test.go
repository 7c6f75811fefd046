package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/tools"
)

type fakeManager struct {
	commands []string
	result   *Result
	err      error
}

func (f *fakeManager) Exec(ctx context.Context, sessionID, command string) (*Result, error) {
	f.commands = append(f.commands, sessionID+":"+command)
	return f.result, f.err
}
func (f *fakeManager) Stop(ctx context.Context, sessionID string) error { return nil }
func (f *fakeManager) Close() error                                     { return nil }

func TestBashTool(t *testing.T) {
	mgr := &fakeManager{result: &Result{Stdout: "a.txt", Stderr: "warning", ExitCode: 1}}
	tool := NewBashTool(mgr, "s1", false)

	res, err := tool.Execute(context.Background(), map[string]any{"command": "ls"}, tools.Env{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if want := "a.txt\nwarning\n(exit code 1)"; res.Output != want {
		t.Errorf("Output = %q, want %q", res.Output, want)
	}
	if len(mgr.commands) != 1 || mgr.commands[0] != "s1:ls" {
		t.Errorf("unexpected commands: %v", mgr.commands)
	}
	if tool.Risky(nil) {
		t.Errorf("expected tool not to require approval")
	}
}

func TestBashToolThroughManager(t *testing.T) {
	mgr := &fakeManager{err: errors.New("daemon unreachable")}
	approvals := 0
	m, err := tools.NewManager([]tools.Tool{NewBashTool(mgr, "s1", true)}, tools.ManagerOptions{
		Approver: tools.ApproverFunc(func(ctx context.Context, name string, input map[string]any) (bool, error) {
			approvals++
			return true, nil
		}),
	})
	if err != nil {
		t.Fatal(err)
	}

	out := m.RunTool(context.Background(), content.ToolCall{ID: "c1", Name: "bash", Input: map[string]any{"command": "ls"}}, nil)
	if !strings.HasPrefix(out, "Error: Tool 'bash' failed:") || !strings.Contains(out, "daemon unreachable") {
		t.Errorf("unexpected output %q", out)
	}
	if approvals != 1 {
		t.Errorf("approvals = %d, want 1", approvals)
	}
}

func TestBashToolTruncatesOnRuneBoundary(t *testing.T) {
	mgr := &fakeManager{result: &Result{Stdout: strings.Repeat("日", MaxOutputBytes/3+10)}}
	tool := NewBashTool(mgr, "s1", false)

	res, err := tool.Execute(context.Background(), map[string]any{"command": "cat jp.txt"}, tools.Env{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !utf8.ValidString(res.Output) {
		t.Errorf("output is not valid UTF-8")
	}
	if !strings.HasSuffix(res.Output, "\n... (output truncated)") {
		t.Errorf("expected truncation notice, got suffix %q", res.Output[len(res.Output)-30:])
	}
	if got := truncate("日本語", 4); got != "日..." {
		t.Errorf("truncate = %q", got)
	}
}

func TestResultOutput(t *testing.T) {
	r := &Result{}
	if r.Output() != "" {
		t.Errorf("expected empty output")
	}
	r = &Result{Stdout: "out\n", Stderr: "err"}
	if r.Output() != "out\nerr" {
		t.Errorf("got %q", r.Output())
	}
}
