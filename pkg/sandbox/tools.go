package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/tools"
)

const ToolNameBash = "bash"

// DefaultTimeout bounds a single command.
const DefaultTimeout = 2 * time.Minute

// MaxOutputBytes bounds the output returned to the model.
const MaxOutputBytes = 64 * 1024

// BashTool runs shell commands in a session's sandbox.
type BashTool struct {
	Manager   Manager
	SessionID string
	Timeout   time.Duration
	// RequireApproval marks every command as risky.
	RequireApproval bool
}

var _ tools.Tool = (*BashTool)(nil)
var _ tools.Risky = (*BashTool)(nil)

func NewBashTool(mgr Manager, sessionID string, requireApproval bool) *BashTool {
	return &BashTool{Manager: mgr, SessionID: sessionID, Timeout: DefaultTimeout, RequireApproval: requireApproval}
}

func (t *BashTool) Name() string { return ToolNameBash }

func (t *BashTool) Description() string {
	return "Run a bash command in the sandbox. The working directory is the workspace. " +
		"Returns stdout, stderr and a non-zero exit code if the command failed."
}

func (t *BashTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The bash command to run.",
			},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Risky(map[string]any) bool { return t.RequireApproval }

func (t *BashTool) Execute(ctx context.Context, input map[string]any, env tools.Env) (tools.Result, error) {
	command, _ := input["command"].(string)
	if command == "" {
		return tools.Result{}, errors.New("'command' parameter is required")
	}
	if t.Manager == nil {
		return tools.Result{}, errors.New("sandbox manager not available")
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := t.Manager.Exec(ctx, t.SessionID, command)
	if err != nil {
		return tools.Result{}, fmt.Errorf("running command: %w", err)
	}

	output := res.Output()
	if head, cut := content.Truncate(output, MaxOutputBytes); cut {
		output = head + "\n... (output truncated)"
	}
	if res.ExitCode != 0 {
		output += fmt.Sprintf("\n(exit code %d)", res.ExitCode)
	}
	if output == "" {
		output = "(No output)"
	}
	return tools.Result{
		Output:  output,
		Summary: fmt.Sprintf("Ran %q (exit %d)", truncate(command, 80), res.ExitCode),
		Aux:     map[string]any{"exit_code": res.ExitCode},
	}, nil
}

func truncate(s string, n int) string {
	if head, cut := content.Truncate(s, n); cut {
		return head + "..."
	}
	return s
}
