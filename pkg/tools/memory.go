package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nstogner/agentcore/pkg/compress"
	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/history"
)

const (
	NameSimpleMemory     = "simple_memory"
	NameCompactifyMemory = "compactify_memory"
)

// SimpleMemoryTool is a single string scratchpad the model can read, write
// and edit. It lives as long as the tool value.
type SimpleMemoryTool struct {
	mu     sync.Mutex
	memory string
}

func NewSimpleMemoryTool() *SimpleMemoryTool { return &SimpleMemoryTool{} }

func (t *SimpleMemoryTool) Name() string { return NameSimpleMemory }

func (t *SimpleMemoryTool) Description() string {
	return "Tool for managing persistent text memory with read, write and edit operations.\n\n" +
		"MEMORY STORAGE GUIDANCE:\n" +
		"Store information that needs to persist across agent interactions, including:\n" +
		"- User context: Requirements, goals, preferences, and clarifications\n" +
		"- Task state: Completed tasks, pending items, current progress\n" +
		"- Code context: File paths, function signatures, data structures, dependencies\n" +
		"- Research findings: Key facts, sources, URLs, and reference materials\n" +
		"- Configuration: Settings, parameters, and environment details\n" +
		"- Cross-session continuity: Information needed for future interactions\n\n" +
		"OPERATIONS:\n" +
		"- Read: Retrieves full memory contents as a string\n" +
		"- Write: Replaces entire memory (warns when overwriting existing data)\n" +
		"- Edit: Performs targeted string replacement (warns on multiple matches)\n\n" +
		"Use structured formats (JSON, YAML, or clear sections) for complex data.\n" +
		"Prioritize information essential for task completion and user experience."
}

func (t *SimpleMemoryTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write", "edit"},
				"description": "The action to perform on the memory.",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write to the memory. Defaults to empty string.",
			},
			"old_string": map[string]any{
				"type":        "string",
				"description": "The string to replace when editing. Defaults to empty string.",
			},
			"new_string": map[string]any{
				"type":        "string",
				"description": "The replacement string when editing. Defaults to empty string.",
			},
		},
		"required": []string{"action"},
	}
}

func (t *SimpleMemoryTool) Execute(ctx context.Context, input map[string]any, env Env) (Result, error) {
	action, _ := input["action"].(string)
	str := func(k string) string {
		s, _ := input[k].(string)
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch action {
	case "read":
		return Result{Output: t.memory, Summary: "Memory read successfully", Aux: success(true)}, nil
	case "write":
		prev := t.memory
		t.memory = str("content")
		out := "Memory updated successfully."
		if prev != "" {
			out = "Warning: Overwriting existing content. Previous content was:\n" + prev + "\n\n" + out
		}
		return Result{Output: out, Summary: "Memory updated successfully.", Aux: success(true)}, nil
	case "edit":
		oldStr, newStr := str("old_string"), str("new_string")
		var out string
		switch n := strings.Count(t.memory, oldStr); {
		case n == 0:
			out = fmt.Sprintf("Error: '%s' not found in memory.", oldStr)
		case n > 1:
			out = fmt.Sprintf("Warning: Found %d occurrences of '%s'. Please confirm which occurrence to replace or use more specific context.", n, oldStr)
		default:
			t.memory = strings.Replace(t.memory, oldStr, newStr, 1)
			out = "Edited memory: 1 occurrence replaced."
		}
		return Result{Output: out, Summary: out, Aux: success(true)}, nil
	}
	out := fmt.Sprintf("Error: Unknown action '%s'. Valid actions are read, write, edit.", action)
	return Result{Output: out, Summary: out, Aux: success(false)}, nil
}

// Memory returns the current scratchpad contents.
func (t *SimpleMemoryTool) Memory() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.memory
}

// CompactifyMemoryTool lets the model force a context compression.
type CompactifyMemoryTool struct {
	compressor compress.Compressor
}

func NewCompactifyMemoryTool(c compress.Compressor) *CompactifyMemoryTool {
	return &CompactifyMemoryTool{compressor: c}
}

func (t *CompactifyMemoryTool) Name() string { return NameCompactifyMemory }

func (t *CompactifyMemoryTool) Description() string {
	return "Compactifies the conversation memory using the configured context management strategy. " +
		"Use this tool when the conversation is getting long and you need to free up context space. " +
		"Helps maintain conversation continuity while staying within token limits."
}

func (t *CompactifyMemoryTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *CompactifyMemoryTool) Execute(ctx context.Context, input map[string]any, env Env) (Result, error) {
	if env.History == nil {
		out := "Message history is required to compactify memory."
		return Result{Output: out, Summary: out, Aux: success(false)}, nil
	}

	turns := env.History.Turns()
	// The turn carrying this call is still waiting for its result and must
	// survive compression untouched.
	end := len(turns)
	if end > 0 && hasCall(turns[end-1], env.CallID) {
		end--
	}
	snapshot := history.FromTurns(turns[:end])
	if err := t.compressor.Compress(ctx, snapshot); err != nil {
		return Result{}, err
	}
	if err := env.History.Replace(0, end, snapshot.Turns()...); err != nil {
		return Result{}, err
	}
	out := "Memory compactified."
	return Result{Output: out, Summary: out, Aux: success(true)}, nil
}

func hasCall(t content.Turn, id string) bool {
	if id == "" {
		return false
	}
	for _, c := range t.ToolCalls() {
		if c.ID == id {
			return true
		}
	}
	return false
}

func success(ok bool) map[string]any {
	return map[string]any{"success": ok}
}
