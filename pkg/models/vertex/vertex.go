// Package vertex implements models.Client with the Google Gen AI SDK, which
// serves both Vertex AI and the Gemini Developer API.
package vertex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/models"
)

// Config selects the backend. With Project set the Vertex AI backend is used,
// otherwise APIKey authenticates against the Gemini Developer API.
type Config struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

// Provider implements models.Client.
type Provider struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// Verify interface compliance.
var _ models.Client = (*Provider)(nil)

// New creates a new provider.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.Project != "" {
		cc = &genai.ClientConfig{Project: cfg.Project, Location: cfg.Location, Backend: genai.BackendVertexAI}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Provider{client: client, model: cfg.Model, logger: logger}, nil
}

// List returns models that support content generation.
func (p *Provider) List(ctx context.Context) ([]string, error) {
	var names []string
	for m, err := range p.client.Models.All(ctx) {
		if err != nil {
			return nil, wrapError(err)
		}
		for _, action := range m.SupportedActions {
			if action == "generateContent" {
				names = append(names, m.Name)
				break
			}
		}
	}
	return names, nil
}

// Generate streams a response and aggregates it into a single reply.
func (p *Provider) Generate(ctx context.Context, req models.Request) (*models.Response, error) {
	p.logger.Debug("GenAI request", "model", p.model, "turns", len(req.Turns), "tools", len(req.Tools))

	contents, err := toContents(req.Turns)
	if err != nil {
		return nil, err
	}
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.ThinkingBudget > 0 {
		budget := int32(req.ThinkingBudget)
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true, ThinkingBudget: &budget}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.InputSchema,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		text, thinking strings.Builder
		textSignature  []byte
		calls          []content.Block
		out            models.Response
	)
	for resp, err := range p.client.Models.GenerateContentStream(streamCtx, p.model, contents, config) {
		if err != nil {
			return nil, wrapError(err)
		}
		if resp == nil {
			continue
		}
		if u := resp.UsageMetadata; u != nil {
			out.InputTokens = int(u.PromptTokenCount)
			out.OutputTokens = int(u.CandidatesTokenCount)
		}
		for _, cand := range resp.Candidates {
			if cand.FinishReason != "" {
				out.StopReason = string(cand.FinishReason)
			}
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					id := part.FunctionCall.ID
					if id == "" {
						id = "call-" + uuid.New().String()
					}
					calls = append(calls, content.ToolCall{
						ID:        id,
						Name:      part.FunctionCall.Name,
						Input:     part.FunctionCall.Args,
						Signature: part.ThoughtSignature,
					})
				case part.Thought:
					thinking.WriteString(part.Text)
				case part.Text != "":
					if len(part.ThoughtSignature) > 0 {
						textSignature = part.ThoughtSignature
					}
					text.WriteString(part.Text)
				}
			}
		}
	}

	if text.Len() > 0 || thinking.Len() > 0 {
		out.Blocks = append(out.Blocks, content.TextResult{
			Text:      text.String(),
			Thinking:  thinking.String(),
			Signature: textSignature,
		})
	}
	out.Blocks = append(out.Blocks, calls...)
	if len(out.Blocks) == 0 {
		return nil, &models.ProviderError{Provider: "genai", Message: "empty response", Err: models.ErrEmptyResponse}
	}
	return &out, nil
}

func toContents(turns []content.Turn) ([]*genai.Content, error) {
	var contents []*genai.Content
	for _, t := range models.MergeTurns(turns) {
		var parts []*genai.Part
		for _, b := range t.Blocks {
			switch v := b.(type) {
			case content.TextPrompt:
				parts = append(parts, &genai.Part{Text: v.Text})
			case content.TextResult:
				if v.Text != "" {
					parts = append(parts, &genai.Part{Text: v.Text, ThoughtSignature: v.Signature})
				}
			case content.ImageBlock:
				data, err := models.DecodeImage(v.Data)
				if err != nil {
					return nil, err
				}
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: v.MediaType, Data: data}})
			case content.ToolCall:
				parts = append(parts, &genai.Part{
					FunctionCall:     &genai.FunctionCall{ID: v.ID, Name: v.Name, Args: v.Input},
					ThoughtSignature: v.Signature,
				})
			case content.ToolFormattedResult:
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       v.CallID,
						Name:     v.Name,
						Response: map[string]any{"result": v.Output},
					},
				})
			}
		}
		if len(parts) == 0 {
			continue
		}
		role := genai.RoleUser
		if t.Role == content.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{Role: string(role), Parts: parts})
	}
	if len(contents) == 0 {
		return nil, errors.New("genai: conversation has no content")
	}
	return contents, nil
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &models.ProviderError{Provider: "genai", StatusCode: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &models.ProviderError{Provider: "genai", StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message, Err: err}
	}
	return &models.ProviderError{Provider: "genai", Message: err.Error(), Err: err}
}
