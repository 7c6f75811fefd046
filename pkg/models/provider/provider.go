// Package provider builds a models.Client from configuration.
package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nstogner/agentcore/pkg/models"
	"github.com/nstogner/agentcore/pkg/models/anthropic"
	"github.com/nstogner/agentcore/pkg/models/gemini"
	"github.com/nstogner/agentcore/pkg/models/openai"
	"github.com/nstogner/agentcore/pkg/models/vertex"
)

// Names of the supported providers.
const (
	Gemini    = "gemini"
	Vertex    = "vertex"
	Anthropic = "anthropic"
	OpenAI    = "openai"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	// Project and Location select the Vertex AI backend for the vertex provider.
	Project  string
	Location string
	Retry    models.RetryConfig
}

// Client is a models.Client that may hold resources.
type Client struct {
	models.Client
	closer io.Closer
}

// Close releases the underlying provider, if it holds anything.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// New returns the configured provider wrapped with retries.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", cfg.Provider, "model", cfg.Model)

	var (
		base   models.Client
		closer io.Closer
	)
	switch cfg.Provider {
	case Gemini, "":
		c, err := gemini.New(ctx, cfg.APIKey, cfg.Model, logger)
		if err != nil {
			return nil, err
		}
		base, closer = c, c
	case Vertex:
		p, err := vertex.New(ctx, vertex.Config{
			APIKey:   cfg.APIKey,
			Project:  cfg.Project,
			Location: cfg.Location,
			Model:    cfg.Model,
		}, logger)
		if err != nil {
			return nil, err
		}
		base = p
	case Anthropic:
		p, err := anthropic.New(anthropic.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, logger)
		if err != nil {
			return nil, err
		}
		base = p
	case OpenAI:
		p, err := openai.New(openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, logger)
		if err != nil {
			return nil, err
		}
		base = p
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = models.DefaultRetryConfig()
	}
	logger.Info("Model client ready", "maxAttempts", retry.MaxAttempts)
	return &Client{Client: models.NewRetrying(base, retry, logger), closer: closer}, nil
}
