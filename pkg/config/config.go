// Package config loads agentcore configuration.
//
// Values are resolved in order: built-in defaults, then the YAML file (if
// any), then environment variables. The result is validated against a CUE
// schema before use. Command line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete agentcore configuration.
type Config struct {
	Model       ModelConfig       `yaml:"model" json:"model"`
	Agent       AgentConfig       `yaml:"agent" json:"agent"`
	Compression CompressionConfig `yaml:"compression" json:"compression"`
	Tools       ToolsConfig       `yaml:"tools" json:"tools"`
	Sandbox     SandboxConfig     `yaml:"sandbox" json:"sandbox"`
	Store       StoreConfig       `yaml:"store" json:"store"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Log         LogConfig         `yaml:"log" json:"log"`
}

// ModelConfig selects the model provider.
type ModelConfig struct {
	// Provider is one of gemini, vertex, anthropic, openai.
	Provider string `yaml:"provider" json:"provider"`
	Name     string `yaml:"name" json:"name"`
	// APIKey falls back to the provider's conventional environment variable.
	APIKey  string `yaml:"api_key" json:"api_key"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Project and Location are used by the vertex provider.
	Project           string `yaml:"project" json:"project"`
	Location          string `yaml:"location" json:"location"`
	MaxAttempts       int    `yaml:"max_attempts" json:"max_attempts"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
	ThinkingBudget    int    `yaml:"thinking_budget" json:"thinking_budget"`
}

type AgentConfig struct {
	SystemPrompt    string `yaml:"system_prompt" json:"system_prompt"`
	MaxTurns        int    `yaml:"max_turns" json:"max_turns"`
	MaxOutputTokens int    `yaml:"max_output_tokens" json:"max_output_tokens"`
}

// CompressionConfig configures the context compressor.
type CompressionConfig struct {
	// Strategy is summarize, truncate or none.
	Strategy string `yaml:"strategy" json:"strategy"`
	// Estimator is chars, bpe or gemini.
	Estimator    string `yaml:"estimator" json:"estimator"`
	TokenBudget  int    `yaml:"token_budget" json:"token_budget"`
	MaxTurnCount int    `yaml:"max_turn_count" json:"max_turn_count"`
	KeepFirst    int    `yaml:"keep_first" json:"keep_first"`
	TailSize     int    `yaml:"tail_size" json:"tail_size"`
}

type ToolsConfig struct {
	// Workspace is the directory the file tools operate in.
	Workspace string `yaml:"workspace" json:"workspace"`
	// Interactive registers return_control_to_user instead of complete.
	Interactive     bool `yaml:"interactive" json:"interactive"`
	RequireApproval bool `yaml:"require_approval" json:"require_approval"`
}

type SandboxConfig struct {
	// Enabled registers the bash tool backed by docker.
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Image   string `yaml:"image" json:"image"`
	// Ports are published from the sandbox container, e.g. "8080:8080".
	Ports []string `yaml:"ports" json:"ports"`
}

type StoreConfig struct {
	// Backend is jsonl or sqlite.
	Backend string `yaml:"backend" json:"backend"`
	// Path is a directory for jsonl and a database file for sqlite.
	Path string `yaml:"path" json:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

type LogConfig struct {
	// Level is trace, debug, info, warn or error.
	Level string `yaml:"level" json:"level"`
	// File, when set, receives JSON logs in addition to stderr.
	File    string `yaml:"file" json:"file"`
	Journal bool   `yaml:"journal" json:"journal"`
}

// Default returns the built-in configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, ".agentcore")

	return &Config{
		Model: ModelConfig{
			Provider:    "gemini",
			Name:        "gemini-2.5-pro",
			MaxAttempts: 3,
		},
		Agent: AgentConfig{
			MaxTurns:        200,
			MaxOutputTokens: 8192,
		},
		Compression: CompressionConfig{
			Strategy:     "summarize",
			Estimator:    "chars",
			TokenBudget:  120000,
			MaxTurnCount: 200,
			KeepFirst:    1,
			TailSize:     6,
		},
		Tools: ToolsConfig{
			Workspace: ".",
		},
		Sandbox: SandboxConfig{
			Image: "ubuntu:24.04",
		},
		Store: StoreConfig{
			Backend: "jsonl",
			Path:    root,
		},
		Server: ServerConfig{
			Addr: "localhost:8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path (optional), applies environment overrides and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// apiKeyEnv names the conventional key variable for each provider.
var apiKeyEnv = map[string][]string{
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"vertex":    {"GOOGLE_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
}

// ApplyEnv overrides values from AGENTCORE_* variables and fills the API key
// from the provider's variable when the file did not set one.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"AGENTCORE_PROVIDER":      &c.Model.Provider,
		"AGENTCORE_MODEL":         &c.Model.Name,
		"AGENTCORE_BASE_URL":      &c.Model.BaseURL,
		"AGENTCORE_PROJECT":       &c.Model.Project,
		"AGENTCORE_LOCATION":      &c.Model.Location,
		"AGENTCORE_WORKSPACE":     &c.Tools.Workspace,
		"AGENTCORE_STORE_BACKEND": &c.Store.Backend,
		"AGENTCORE_STORE_PATH":    &c.Store.Path,
		"AGENTCORE_ADDR":          &c.Server.Addr,
		"AGENTCORE_LOG_LEVEL":     &c.Log.Level,
		"AGENTCORE_LOG_FILE":      &c.Log.File,
	}
	for name, dst := range strs {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"AGENTCORE_MAX_TURNS":    &c.Agent.MaxTurns,
		"AGENTCORE_TOKEN_BUDGET": &c.Compression.TokenBudget,
	}
	var errs []error
	for name, dst := range ints {
		v := getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*dst = n
	}

	if c.Model.APIKey == "" {
		if v := getenv("AGENTCORE_API_KEY"); v != "" {
			c.Model.APIKey = v
		}
		for _, name := range apiKeyEnv[c.Model.Provider] {
			if c.Model.APIKey != "" {
				break
			}
			c.Model.APIKey = getenv(name)
		}
	}
	return errors.Join(errs...)
}
