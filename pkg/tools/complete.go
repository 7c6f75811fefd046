package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
)

const (
	NameComplete      = "complete"
	NameReturnControl = "return_control_to_user"

	completedOutput = "Task completed"
)

// Finisher is a tool whose call ends the run.
type Finisher interface {
	Tool
	ShouldStop() bool
	Answer() string
	Reset()
}

type finishState struct {
	mu     sync.Mutex
	answer string
	stop   bool
}

func (s *finishState) finish(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = answer
	s.stop = true
}

func (s *finishState) ShouldStop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop
}

func (s *finishState) Answer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answer
}

func (s *finishState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = ""
	s.stop = false
}

// CompleteTool ends a batch run with a final answer.
type CompleteTool struct {
	finishState
}

var _ Finisher = (*CompleteTool)(nil)

func NewCompleteTool() *CompleteTool { return &CompleteTool{} }

func (t *CompleteTool) Name() string { return NameComplete }

func (t *CompleteTool) Description() string {
	return "Call this tool when you are done with the task, and supply your answer or summary."
}

func (t *CompleteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{
				"type":        "string",
				"description": "The answer to the question, or final summary of actions taken to accomplish the task.",
			},
		},
		"required": []string{"answer"},
	}
}

func (t *CompleteTool) Execute(ctx context.Context, input map[string]any, env Env) (Result, error) {
	answer, _ := input["answer"].(string)
	if strings.TrimSpace(answer) == "" {
		return Result{}, errors.New("model returned empty answer")
	}
	t.finish(answer)
	return TextResult(completedOutput), nil
}

// ReturnControlTool ends an interactive run and hands the turn back to the
// user.
type ReturnControlTool struct {
	finishState
}

var _ Finisher = (*ReturnControlTool)(nil)

func NewReturnControlTool() *ReturnControlTool { return &ReturnControlTool{} }

func (t *ReturnControlTool) Name() string { return NameReturnControl }

func (t *ReturnControlTool) Description() string {
	return "Return control back to the user. Use this tool when you are done with the task or need input from the user."
}

func (t *ReturnControlTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *ReturnControlTool) Execute(ctx context.Context, input map[string]any, env Env) (Result, error) {
	t.finish(completedOutput)
	return TextResult(completedOutput), nil
}
