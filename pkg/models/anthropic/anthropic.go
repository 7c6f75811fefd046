// Package anthropic implements models.Client for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/models"
)

const defaultMaxTokens = 8192

// Config configures the provider.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements models.Client.
type Provider struct {
	client anthropic.Client
	model  string
	logger *slog.Logger
}

var _ models.Client = (*Provider)(nil)

func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("anthropic: missing model")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Provider{client: anthropic.NewClient(opts...), model: cfg.Model, logger: logger}, nil
}

func (p *Provider) Generate(ctx context.Context, req models.Request) (*models.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: defaultMaxTokens,
		Messages:  buildMessages(req.Turns),
		Tools:     buildTools(req.Tools),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = int64(req.MaxOutputTokens)
	}
	if req.ThinkingBudget >= 1024 && int64(req.ThinkingBudget) < params.MaxTokens {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(req.ThinkingBudget))
	}
	if s := strings.TrimSpace(req.System); s != "" {
		params.System = []anthropic.TextBlockParam{{Text: s}}
	}
	p.logger.Debug("Anthropic request", "model", p.model, "messages", len(params.Messages), "tools", len(params.Tools))

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}

	out := &models.Response{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		StopReason:   string(msg.StopReason),
	}
	var result content.TextResult
	var calls []content.Block
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			if result.Text != "" {
				result.Text += "\n"
			}
			result.Text += v.Text
		case anthropic.ThinkingBlock:
			result.Thinking += v.Thinking
			result.Signature = []byte(v.Signature)
		case anthropic.ToolUseBlock:
			input, err := models.DecodeArguments(string(v.Input))
			if err != nil {
				return nil, fmt.Errorf("anthropic: tool %q arguments: %w", v.Name, err)
			}
			calls = append(calls, content.ToolCall{ID: v.ID, Name: v.Name, Input: input})
		}
	}
	if result.Text != "" || result.Thinking != "" {
		out.Blocks = append(out.Blocks, result)
	}
	out.Blocks = append(out.Blocks, calls...)
	if len(out.Blocks) == 0 {
		return nil, &models.ProviderError{Provider: "anthropic", Message: "empty response", Err: models.ErrEmptyResponse}
	}
	return out, nil
}

func buildTools(specs []models.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		param := anthropic.ToolParam{
			Name:        s.Name,
			Description: anthropic.String(s.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: models.SchemaProperties(s.InputSchema),
				Required:   models.StringSlice(s.InputSchema["required"]),
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func buildMessages(turns []content.Turn) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range models.MergeTurns(turns) {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.Blocks))
		for _, b := range t.Blocks {
			switch v := b.(type) {
			case content.TextPrompt:
				if v.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(v.Text))
				}
			case content.TextResult:
				if v.Thinking != "" && len(v.Signature) > 0 {
					blocks = append(blocks, anthropic.NewThinkingBlock(string(v.Signature), v.Thinking))
				}
				if v.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(v.Text))
				}
			case content.ImageBlock:
				blocks = append(blocks, anthropic.NewImageBlockBase64(v.MediaType, v.Data))
			case content.ToolCall:
				input := v.Input
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(v.ID, input, v.Name))
			case content.ToolFormattedResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(v.CallID, v.Output, false))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if t.Role == content.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Error()
		if raw := apiErr.RawJSON(); raw != "" {
			var body struct {
				Error struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			if json.Unmarshal([]byte(raw), &body) == nil && body.Error.Message != "" {
				msg = body.Error.Message
			}
		}
		return &models.ProviderError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Message: msg, Err: err}
	}
	return &models.ProviderError{Provider: "anthropic", Message: err.Error(), Err: err}
}
