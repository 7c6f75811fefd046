package sandbox

import "context"

// Result represents the output of a sandbox execution.
type Result struct {
	// Stdout is the standard output.
	Stdout string `json:"stdout,omitempty"`
	// Stderr is the standard error.
	Stderr string `json:"stderr,omitempty"`
	// ExitCode is the command's exit status.
	ExitCode int `json:"exit_code"`
}

// Output combines stdout and stderr the way the bash tool reports them.
func (r *Result) Output() string {
	out := r.Stdout
	if r.Stderr != "" {
		if out != "" && out[len(out)-1] != '\n' {
			out += "\n"
		}
		out += r.Stderr
	}
	return out
}

// Manager defines the interface for managing sandboxes.
type Manager interface {
	// Exec runs a shell command within the sandbox for the given session.
	// This should lazily initialize the sandbox if it's not running.
	Exec(ctx context.Context, sessionID string, command string) (*Result, error)

	// Stop terminates the sandbox for the given session.
	Stop(ctx context.Context, sessionID string) error

	// Close releases any resources held by the manager (e.g. docker client).
	Close() error
}
