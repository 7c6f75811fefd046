// Package content defines the unit of conversation data exchanged between the
// agent loop, the history store and the model providers.
package content

import (
	"strings"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SummaryPrefix marks a synthetic turn produced by context compression.
const SummaryPrefix = "Conversation Summary:"

// Block is one typed piece of a turn. The set of implementations is closed;
// consumers switch over the concrete types below.
type Block interface {
	block()
}

// TextPrompt is text authored by the user (or synthesized on its behalf).
type TextPrompt struct {
	Text string
}

// TextResult is text authored by the model. Thinking holds the optional
// reasoning segment emitted alongside it.
type TextResult struct {
	Text     string
	Thinking string
	// Signature is an opaque provider token that must be replayed with the block.
	Signature []byte
}

// ImageBlock is an embedded image. Data is base64 encoded.
type ImageBlock struct {
	MediaType string
	Data      string
}

// ToolCall is the model's request to invoke a tool.
type ToolCall struct {
	ID        string
	Name      string
	Input     map[string]any
	Signature []byte
}

// ToolFormattedResult is the output of a ToolCall, keyed by CallID.
type ToolFormattedResult struct {
	CallID string
	Name   string
	Output string
}

func (TextPrompt) block()          {}
func (TextResult) block()          {}
func (ImageBlock) block()          {}
func (ToolCall) block()            {}
func (ToolFormattedResult) block() {}

// Turn is an ordered, non-empty list of blocks authored by one actor.
type Turn struct {
	Role   Role
	Blocks []Block
}

// UserTurn builds a user turn from the given blocks.
func UserTurn(blocks ...Block) Turn {
	return Turn{Role: RoleUser, Blocks: blocks}
}

// AssistantTurn builds an assistant turn from the given blocks.
func AssistantTurn(blocks ...Block) Turn {
	return Turn{Role: RoleAssistant, Blocks: blocks}
}

// ToolCalls returns the tool calls contained in the turn, in order.
func (t Turn) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range t.Blocks {
		if c, ok := b.(ToolCall); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

// ToolResults returns the tool results contained in the turn, in order.
func (t Turn) ToolResults() []ToolFormattedResult {
	var results []ToolFormattedResult
	for _, b := range t.Blocks {
		if r, ok := b.(ToolFormattedResult); ok {
			results = append(results, r)
		}
	}
	return results
}

// IsToolResult reports whether the turn carries only tool results.
func (t Turn) IsToolResult() bool {
	if len(t.Blocks) == 0 {
		return false
	}
	for _, b := range t.Blocks {
		if _, ok := b.(ToolFormattedResult); !ok {
			return false
		}
	}
	return true
}

// Text joins the visible text of the turn. Thinking is not included.
func (t Turn) Text() string {
	var parts []string
	for _, b := range t.Blocks {
		switch v := b.(type) {
		case TextPrompt:
			parts = append(parts, v.Text)
		case TextResult:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Clone returns a copy of the turn with its own block slice.
func (t Turn) Clone() Turn {
	blocks := make([]Block, len(t.Blocks))
	copy(blocks, t.Blocks)
	return Turn{Role: t.Role, Blocks: blocks}
}

// IsSummary reports whether the turn was synthesized by context compression.
func IsSummary(t Turn) bool {
	if t.Role != RoleUser || len(t.Blocks) != 1 {
		return false
	}
	p, ok := t.Blocks[0].(TextPrompt)
	return ok && strings.HasPrefix(p.Text, SummaryPrefix)
}

// SummaryText returns the summary body of a synthetic summary turn.
func SummaryText(t Turn) (string, bool) {
	if !IsSummary(t) {
		return "", false
	}
	p := t.Blocks[0].(TextPrompt)
	return strings.TrimSpace(strings.TrimPrefix(p.Text, SummaryPrefix)), true
}

// NewSummaryTurn wraps summary text in a synthetic user turn.
func NewSummaryTurn(summary string) Turn {
	return UserTurn(TextPrompt{Text: SummaryPrefix + "\n" + strings.TrimSpace(summary)})
}
