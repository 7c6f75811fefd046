package tools

import (
	"log/slog"

	"github.com/nstogner/agentcore/pkg/compress"
)

// Options selects the built-in tools.
type Options struct {
	// Workspace enables the file tools when non-empty.
	Workspace string
	// Compressor enables compactify_memory when set.
	Compressor  compress.Compressor
	Memory      bool
	MessageUser bool
	// Extra tools are appended as given, e.g. the sandbox bash tool.
	Extra  []Tool
	Logger *slog.Logger
}

// BuildTools returns the tools selected by opts. The completion tool is
// added by the Manager.
func BuildTools(opts Options) []Tool {
	var ts []Tool
	if opts.MessageUser {
		ts = append(ts, &MessageUserTool{})
	}
	if opts.Memory {
		ts = append(ts, NewSimpleMemoryTool())
	}
	if opts.Compressor != nil {
		ts = append(ts, NewCompactifyMemoryTool(opts.Compressor))
	}
	if opts.Workspace != "" {
		ts = append(ts, FileTools(&Workspace{Root: opts.Workspace, Logger: opts.Logger})...)
	}
	return append(ts, opts.Extra...)
}
