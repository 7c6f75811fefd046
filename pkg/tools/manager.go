package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/models"
)

// DefaultMaxErrorLength bounds error strings returned to the model.
const DefaultMaxErrorLength = 2000

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Interactive selects return_control_to_user instead of complete.
	Interactive bool
	// Approver gates Risky tools. Nil approves everything.
	Approver Approver
	// Events receives events emitted by tools such as message_user.
	Events         events.Sink
	Logger         *slog.Logger
	MaxErrorLength int
}

// Manager looks tools up by name, validates their input, runs them and turns
// every failure into a tool result string.
type Manager struct {
	registry *Registry
	finisher Finisher
	schemas  map[string]*jsonschema.Schema
	approver Approver
	sink     events.Sink
	logger   *slog.Logger
	maxErr   int
}

// NewManager registers ts plus the completion tool for the selected mode.
// Tool schemas are compiled up front; an invalid schema is an error.
func NewManager(ts []Tool, opts ManagerOptions) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Events == nil {
		opts.Events = events.Discard
	}
	if opts.MaxErrorLength <= 0 {
		opts.MaxErrorLength = DefaultMaxErrorLength
	}
	var fin Finisher
	if opts.Interactive {
		fin = NewReturnControlTool()
	} else {
		fin = NewCompleteTool()
	}

	m := &Manager{
		registry: NewRegistry(),
		finisher: fin,
		schemas:  map[string]*jsonschema.Schema{},
		approver: opts.Approver,
		sink:     opts.Events,
		logger:   opts.Logger,
		maxErr:   opts.MaxErrorLength,
	}
	for _, t := range append(ts, fin) {
		if _, dup := m.registry.Get(t.Name()); dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name())
		}
		sch, err := compileSchema(t.Name(), t.InputSchema())
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", t.Name(), err)
		}
		m.registry.Register(t)
		m.schemas[t.Name()] = sch
	}
	return m, nil
}

// Specs describes every tool for a model request.
func (m *Manager) Specs() []models.ToolSpec { return m.registry.Specs() }

// Tools returns the registered tools.
func (m *Manager) Tools() []Tool { return m.registry.List() }

// ShouldStop reports whether the completion tool has been called.
func (m *Manager) ShouldStop() bool { return m.finisher.ShouldStop() }

// FinalAnswer returns the completion tool's answer.
func (m *Manager) FinalAnswer() string { return m.finisher.Answer() }

// Reset clears the completion state before a new run.
func (m *Manager) Reset() { m.finisher.Reset() }

// RunTool executes call and returns the text to embed as its result. It never
// panics and never fails: unknown tools, invalid input, denials, errors and
// panics all become error strings the model can read.
func (m *Manager) RunTool(ctx context.Context, call content.ToolCall, hist *history.History) string {
	logger := m.logger.With("tool", call.Name, "toolCallID", call.ID)

	t, ok := m.registry.Get(call.Name)
	if !ok {
		logger.Warn("Unknown tool called")
		return fmt.Sprintf("Error: Tool '%s' not found. Available tools: %s", call.Name, strings.Join(m.registry.Names(), ", "))
	}

	input := call.Input
	if input == nil {
		input = map[string]any{}
	}
	if err := m.validate(call.Name, input); err != nil {
		logger.Info("Invalid tool input", "error", err)
		return m.bound(fmt.Sprintf("Error: Invalid input for tool '%s': %v", call.Name, err))
	}

	if r, ok := t.(Risky); ok && m.approver != nil && r.Risky(input) {
		approved, err := m.approver.Approve(ctx, call.Name, input)
		if err != nil {
			logger.Warn("Approval failed", "error", err)
		}
		if err != nil || !approved {
			return fmt.Sprintf("Tool '%s' was not approved by the user.", call.Name)
		}
	}

	logger.Info("Running tool", "input", input)
	res, err := m.execute(ctx, t, input, Env{CallID: call.ID, History: hist, Events: m.sink})
	if err != nil {
		logger.Error("Tool failed", "error", err)
		return m.bound(fmt.Sprintf("Error: Tool '%s' failed: %s", call.Name, describe(err)))
	}
	logger.Info("Tool finished", "summary", res.Summary)
	logger.Debug("Tool output", "output", res.Output, "aux", res.Aux)
	return res.Output
}

// panicError carries a recovered panic value.
type panicError struct{ value any }

func (p *panicError) Error() string { return fmt.Sprint(p.value) }

func (m *Manager) execute(ctx context.Context, t Tool, input map[string]any, env Env) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return t.Execute(ctx, input, env)
}

func describe(err error) string {
	var p *panicError
	if errors.As(err, &p) {
		return "panic: " + p.Error()
	}
	inner := err
	for {
		next := errors.Unwrap(inner)
		if next == nil {
			break
		}
		inner = next
	}
	return fmt.Sprintf("%T: %s", inner, err.Error())
}

func (m *Manager) bound(s string) string {
	if head, cut := content.Truncate(s, m.maxErr); cut {
		return head + "..."
	}
	return s
}

func (m *Manager) validate(name string, input map[string]any) error {
	sch := m.schemas[name]
	if sch == nil {
		return nil
	}
	inst, err := toJSONValue(input)
	if err != nil {
		return err
	}
	return sch.Validate(inst)
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	doc, err := toJSONValue(schema)
	if err != nil {
		return nil, err
	}
	url := "mem://tools/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// toJSONValue normalizes v into the representation the validator expects.
func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}
