package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"trace": LevelTrace,
		"DEBUG": slog.LevelDebug,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn, err := New(Options{Level: "info", Stderr: &buf})
	require.NoError(t, err)
	defer closeFn()

	logger.Debug("hidden")
	logger.Info("shown", "key", "value")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "key=value")
}

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Level: "trace", Stderr: &buf})
	require.NoError(t, err)

	logger.Log(t.Context(), LevelTrace, "wire dump")
	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestFanoutToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "agentcore.log")
	logger, closeFn, err := New(Options{Level: "debug", Stderr: &buf, File: path})
	require.NoError(t, err)

	logger.Info("to both", "turns", 3)
	require.NoError(t, closeFn())

	assert.Contains(t, buf.String(), "to both")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &rec))
	assert.Equal(t, "to both", rec["msg"])
	assert.Equal(t, float64(3), rec["turns"])
}

func TestJournalKey(t *testing.T) {
	assert.Equal(t, "SESSION_ID", toJournalKey("session-id"))
	assert.Equal(t, "TOOL_NAME", toJournalKey("tool.name"))
}
