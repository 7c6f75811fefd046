// Package openai implements models.Client for OpenAI-compatible chat
// completion endpoints.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/models"
)

// Config configures the provider. BaseURL targets compatible servers.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements models.Client.
type Provider struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

var _ models.Client = (*Provider)(nil)

func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("openai: missing model")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{client: openai.NewClient(opts...), model: cfg.Model, logger: logger}, nil
}

func (p *Provider) Generate(ctx context.Context, req models.Request) (*models.Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:             shared.ChatModel(p.model),
		Messages:          buildMessages(req.System, req.Turns),
		ParallelToolCalls: openai.Bool(false),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	p.logger.Debug("OpenAI request", "model", p.model, "messages", len(params.Messages), "tools", len(req.Tools))

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	out := &models.Response{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	if len(resp.Choices) == 0 {
		return nil, &models.ProviderError{Provider: "openai", Message: "no choices", Err: models.ErrEmptyResponse}
	}
	choice := resp.Choices[0]
	out.StopReason = string(choice.FinishReason)
	if txt := choice.Message.Content; txt != "" {
		out.Blocks = append(out.Blocks, content.TextResult{Text: txt})
	}
	for i, tc := range choice.Message.ToolCalls {
		args, err := models.DecodeArguments(tc.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("openai: tool %q: %w", tc.Function.Name, err)
		}
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("openai_call_%d", i+1)
		}
		out.Blocks = append(out.Blocks, content.ToolCall{ID: id, Name: tc.Function.Name, Input: args})
	}
	if len(out.Blocks) == 0 {
		return nil, &models.ProviderError{Provider: "openai", Message: "empty response", Err: models.ErrEmptyResponse}
	}
	return out, nil
}

func buildTools(specs []models.ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, s := range specs {
		fn := shared.FunctionDefinitionParam{
			Name:        s.Name,
			Description: openai.String(s.Description),
		}
		if len(s.InputSchema) > 0 {
			fn.Parameters = shared.FunctionParameters(s.InputSchema)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}

func buildMessages(system string, turns []content.Turn) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, t := range turns {
		if t.Role == content.RoleAssistant {
			out = append(out, assistantMessage(t))
			continue
		}
		var parts []openai.ChatCompletionContentPartUnionParam
		for _, b := range t.Blocks {
			switch v := b.(type) {
			case content.ToolFormattedResult:
				out = append(out, openai.ToolMessage(v.Output, v.CallID))
			case content.TextPrompt:
				parts = append(parts, openai.TextContentPart(v.Text))
			case content.ImageBlock:
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:" + v.MediaType + ";base64," + v.Data,
				}))
			}
		}
		if len(parts) > 0 {
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

func assistantMessage(t content.Turn) openai.ChatCompletionMessageParamUnion {
	var text strings.Builder
	var calls []openai.ChatCompletionMessageToolCallParam
	for _, b := range t.Blocks {
		switch v := b.(type) {
		case content.TextResult:
			if v.Text == "" {
				continue
			}
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(v.Text)
		case content.ToolCall:
			args, err := jsonString(v.Input)
			if err != nil {
				args = "{}"
			}
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID: v.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      v.Name,
					Arguments: args,
				},
			})
		}
	}
	if len(calls) == 0 {
		return openai.AssistantMessage(text.String())
	}
	msg := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if text.Len() > 0 {
		msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text.String())}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &models.ProviderError{Provider: "openai", StatusCode: apiErr.StatusCode, Message: apiErr.Message, Err: err}
	}
	return &models.ProviderError{Provider: "openai", Message: err.Error(), Err: err}
}

func jsonString(v map[string]any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
