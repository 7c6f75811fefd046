package tools

import (
	"context"
	"sort"

	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/models"
)

// Tool defines the interface that all agent tools must implement.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any // JSON schema of the input object
	Execute(ctx context.Context, input map[string]any, env Env) (Result, error)
}

// Env is what a tool may reach during one invocation.
type Env struct {
	CallID  string
	History *history.History
	Events  events.Sink
}

// Result is the outcome of a tool execution.
type Result struct {
	// Output is embedded in the conversation for the model to read.
	Output string
	// Summary is a short line for logs and UIs.
	Summary string
	// Aux is never shown to the model.
	Aux map[string]any
}

// TextResult returns a Result whose output and summary are the same.
func TextResult(s string) Result {
	return Result{Output: s, Summary: s}
}

// Risky tools must be approved before they run.
type Risky interface {
	Risky(input map[string]any) bool
}

// Approver decides whether a risky tool call may run.
type Approver interface {
	Approve(ctx context.Context, toolName string, input map[string]any) (bool, error)
}

// ApproverFunc adapts a function to an Approver.
type ApproverFunc func(ctx context.Context, toolName string, input map[string]any) (bool, error)

func (f ApproverFunc) Approve(ctx context.Context, toolName string, input map[string]any) (bool, error) {
	return f(ctx, toolName, input)
}

// Registry manages the available tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry. A later tool with the same name
// replaces the earlier one.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	list := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Names returns the registered tool names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Specs describes the registered tools for a model request.
func (r *Registry) Specs() []models.ToolSpec {
	list := r.List()
	specs := make([]models.ToolSpec, 0, len(list))
	for _, t := range list {
		specs = append(specs, models.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return specs
}
