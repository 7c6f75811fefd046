package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  provider: anthropic
  name: claude-sonnet-4-5
compression:
  strategy: truncate
  tail_size: 10
sandbox:
  enabled: true
  ports: ["8080:8080"]
store:
  backend: sqlite
  path: /tmp/agentcore.db
`), 0o644))

	cfg := Default()
	require.NoError(t, cfg.loadFile(path))
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Model.Name)
	assert.Equal(t, "truncate", cfg.Compression.Strategy)
	assert.Equal(t, 10, cfg.Compression.TailSize)
	assert.Equal(t, []string{"8080:8080"}, cfg.Sandbox.Ports)
	// Untouched values keep their defaults.
	assert.Equal(t, 120000, cfg.Compression.TokenBudget)
	assert.Equal(t, 200, cfg.Agent.MaxTurns)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		"AGENTCORE_PROVIDER":  "openai",
		"AGENTCORE_MODEL":     "gpt-4.1",
		"AGENTCORE_MAX_TURNS": "12",
		"OPENAI_API_KEY":      "sk-test",
		"GEMINI_API_KEY":      "not-this-one",
	})))
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "gpt-4.1", cfg.Model.Name)
	assert.Equal(t, 12, cfg.Agent.MaxTurns)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
}

func TestApplyEnvKeepsExplicitKey(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKey = "from-file"
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{"GEMINI_API_KEY": "from-env"})))
	assert.Equal(t, "from-file", cfg.Model.APIKey)
}

func TestApplyEnvBadInt(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{"AGENTCORE_TOKEN_BUDGET": "lots"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTCORE_TOKEN_BUDGET")
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Model.Provider = "llama" }},
		{"empty model", func(c *Config) { c.Model.Name = "" }},
		{"zero max turns", func(c *Config) { c.Agent.MaxTurns = 0 }},
		{"negative budget", func(c *Config) { c.Compression.TokenBudget = -1 }},
		{"unknown strategy", func(c *Config) { c.Compression.Strategy = "forget" }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
