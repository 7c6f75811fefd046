package models

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nstogner/agentcore/pkg/content"
)

// LevelTrace is used for wire-level request/response dumps.
const LevelTrace = slog.Level(-8)

// ToolSpec describes a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	// InputSchema is a JSON schema object for the tool arguments.
	InputSchema map[string]any
}

// Request is one model invocation.
type Request struct {
	System          string
	Turns           []content.Turn
	Tools           []ToolSpec
	MaxOutputTokens int
	// Thinking enables extended reasoning where the provider supports it.
	ThinkingBudget int
}

// Response is the output of one model invocation.
type Response struct {
	Blocks       []content.Block
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// ToolCalls returns the tool calls in the response, in order.
func (r *Response) ToolCalls() []content.ToolCall {
	return content.AssistantTurn(r.Blocks...).ToolCalls()
}

// Text returns the visible text of the response.
func (r *Response) Text() string {
	return content.AssistantTurn(r.Blocks...).Text()
}

// Client generates model output. Implementations are safe for concurrent use.
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

func (f ClientFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// MergeTurns folds consecutive turns of the same role into one. Providers that
// require strict alternation call this before converting turns.
func MergeTurns(turns []content.Turn) []content.Turn {
	var out []content.Turn
	for _, t := range turns {
		if len(out) > 0 && out[len(out)-1].Role == t.Role {
			last := &out[len(out)-1]
			last.Blocks = append(last.Blocks, t.Blocks...)
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

// GenerateText is a convenience for single-prompt calls such as summarization.
func GenerateText(ctx context.Context, c Client, system, prompt string, maxOutputTokens int) (string, error) {
	resp, err := c.Generate(ctx, Request{
		System:          system,
		Turns:           []content.Turn{content.UserTurn(content.TextPrompt{Text: prompt})},
		MaxOutputTokens: maxOutputTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}
