package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/nstogner/agentcore/pkg/events"
)

// MessageUserTool sends a message to the user without ending the run.
type MessageUserTool struct{}

const NameMessageUser = "message_user"

func (t *MessageUserTool) Name() string { return NameMessageUser }

func (t *MessageUserTool) Description() string {
	return "Send a message to the user. Use this tool to communicate progress, ask a question, or share results."
}

func (t *MessageUserTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "description": "The message to send to the user."},
		},
		"required": []string{"text"},
	}
}

var errEmptyMessage = errors.New("model returned empty message")

func (t *MessageUserTool) Execute(ctx context.Context, input map[string]any, env Env) (Result, error) {
	text, _ := input["text"].(string)
	if strings.TrimSpace(text) == "" {
		return Result{}, errEmptyMessage
	}
	if env.Events != nil {
		env.Events.Record(ctx, events.New(events.TypeAgentResponse, map[string]any{events.KeyText: text}))
	}
	out := "Sent message to user"
	return Result{Output: out, Summary: out, Aux: success(true)}, nil
}
