package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/models"
)

// Client implements models.Client using the Gemini API.
type Client struct {
	client    *genai.Client
	modelName string
	logger    *slog.Logger
}

var _ models.Client = (*Client)(nil)

// New creates a new Client for the named model.
func New(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := &http.Client{
		Transport: &loggingTransport{
			base:   http.DefaultTransport,
			apiKey: apiKey,
			logger: logger,
		},
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{client: client, modelName: modelName, logger: logger}, nil
}

type loggingTransport struct {
	base   http.RoundTripper
	apiKey string
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// A custom http.Client bypasses the library's API key injection.
	if t.apiKey != "" && req.Header.Get("x-goog-api-key") == "" && req.URL.Query().Get("key") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("x-goog-api-key", t.apiKey)
	}

	if !t.logger.Enabled(req.Context(), models.LevelTrace) {
		return t.base.RoundTrip(req)
	}

	if reqDump, err := httputil.DumpRequestOut(req, true); err == nil {
		t.logger.Log(req.Context(), models.LevelTrace, "Gemini REST Request", "url", req.URL.String(), "dump", string(reqDump))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// Streaming bodies are not dumped; reading them would block the caller.
	isStream := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") ||
		strings.Contains(req.URL.Query().Get("alt"), "sse")
	if respDump, err := httputil.DumpResponse(resp, !isStream); err == nil {
		t.logger.Log(req.Context(), models.LevelTrace, "Gemini REST Response", "isStream", isStream, "dump", string(respDump))
	}
	return resp, nil
}

// Close releases resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// List returns available models.
func (c *Client) List(ctx context.Context) ([]string, error) {
	it := c.client.ListModels(ctx)
	var names []string
	for {
		model, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapError(err)
		}
		names = append(names, model.Name)
	}
	return names, nil
}

// Generate sends the conversation to Gemini and aggregates the streamed reply.
func (c *Client) Generate(ctx context.Context, req models.Request) (*models.Response, error) {
	if len(req.Turns) == 0 {
		return nil, errors.New("gemini: no turns to send")
	}
	c.logger.Debug("Gemini request", "model", c.modelName, "turns", len(req.Turns), "tools", len(req.Tools))

	gm := c.client.GenerativeModel(c.modelName)
	if req.System != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.MaxOutputTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.MaxOutputTokens))
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaFromMap(t.InputSchema),
			})
		}
		gm.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	history, err := toContents(models.MergeTurns(req.Turns))
	if err != nil {
		return nil, err
	}
	cs := gm.StartChat()
	cs.History = history[:len(history)-1]
	last := history[len(history)-1]

	it := cs.SendMessageStream(ctx, last.Parts...)
	return c.collect(it)
}

func (c *Client) collect(it *genai.GenerateContentResponseIterator) (*models.Response, error) {
	var (
		text  strings.Builder
		calls []content.Block
		out   models.Response
	)
	for {
		resp, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapError(err)
		}
		if resp.UsageMetadata != nil {
			out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		for _, cand := range resp.Candidates {
			out.StopReason = cand.FinishReason.String()
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch p := part.(type) {
				case genai.Text:
					text.WriteString(string(p))
				case genai.FunctionCall:
					calls = append(calls, content.ToolCall{
						ID:    "call-" + uuid.New().String(),
						Name:  p.Name,
						Input: p.Args,
					})
				}
			}
		}
	}

	if text.Len() > 0 {
		out.Blocks = append(out.Blocks, content.TextResult{Text: text.String()})
	}
	out.Blocks = append(out.Blocks, calls...)
	if len(out.Blocks) == 0 {
		return nil, &models.ProviderError{Provider: "gemini", Message: "empty response", Err: models.ErrEmptyResponse}
	}
	return &out, nil
}

func toContents(turns []content.Turn) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		var parts []genai.Part
		for _, b := range t.Blocks {
			switch v := b.(type) {
			case content.TextPrompt:
				parts = append(parts, genai.Text(v.Text))
			case content.TextResult:
				if v.Text != "" {
					parts = append(parts, genai.Text(v.Text))
				}
			case content.ImageBlock:
				data, err := models.DecodeImage(v.Data)
				if err != nil {
					return nil, err
				}
				parts = append(parts, genai.Blob{MIMEType: v.MediaType, Data: data})
			case content.ToolCall:
				parts = append(parts, genai.FunctionCall{Name: v.Name, Args: v.Input})
			case content.ToolFormattedResult:
				parts = append(parts, genai.FunctionResponse{
					Name:     v.Name,
					Response: map[string]any{"result": v.Output},
				})
			}
		}
		if len(parts) == 0 {
			continue
		}
		role := "user"
		if t.Role == content.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	if len(out) == 0 {
		return nil, errors.New("gemini: conversation has no content")
	}
	return out, nil
}

func schemaFromMap(m map[string]any) *genai.Schema {
	if len(m) == 0 {
		return nil
	}
	s := &genai.Schema{}
	switch m["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "string":
		s.Type = genai.TypeString
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	case "array":
		s.Type = genai.TypeArray
	}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}
	s.Enum = models.StringSlice(m["enum"])
	s.Required = models.StringSlice(m["required"])
	if props := models.SchemaProperties(m); len(props) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				s.Properties[name] = schemaFromMap(sub)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = schemaFromMap(items)
	}
	return s
}

func wrapError(err error) error {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return &models.ProviderError{Provider: "gemini", StatusCode: apiErr.HTTPCode(), Message: apiErr.Error(), Err: err}
	}
	return &models.ProviderError{Provider: "gemini", Message: err.Error(), Err: err}
}
