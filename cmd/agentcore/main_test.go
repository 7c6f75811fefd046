package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/agentcore/pkg/config"
	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/store"
)

func TestReadInstruction(t *testing.T) {
	got, err := readInstruction([]string{"list files"}, strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "list files", got)

	got, err = readInstruction([]string{"-"}, strings.NewReader("  from stdin\n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readInstruction(nil, strings.NewReader("\n"))
	assert.Error(t, err)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "first line", title("first line\nsecond"))
	long := strings.Repeat("x", 80)
	assert.Equal(t, strings.Repeat("x", 60)+"...", title(long))
}

func TestClipLines(t *testing.T) {
	assert.Equal(t, "a\nb", clipLines("a\nb\n", 3))
	assert.Equal(t, "a\nb\n... (2 more lines)", clipLines("a\nb\nc\nd", 2))
}

func TestPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{w: &buf, json: true}
	p.Record(context.Background(), events.New(events.TypeAgentResponse, map[string]any{events.KeyText: "done"}))

	var e events.Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &e))
	assert.Equal(t, events.TypeAgentResponse, e.Type)
	assert.Equal(t, "done", e.Text())
}

func TestFormatEventSkipsBookkeeping(t *testing.T) {
	assert.Empty(t, formatEvent(events.New(events.TypeProcessing, nil)))
	assert.Contains(t, formatEvent(events.New(events.TypeToolCall, map[string]any{
		events.KeyToolName:  "read_file",
		events.KeyToolInput: map[string]any{"path": "a.txt"},
	})), "read_file")
	assert.Contains(t, formatEvent(events.New(events.TypeError, map[string]any{events.KeyMessage: "boom"})), "boom")
}

func TestOpenStoreBackends(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{"jsonl", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			st, err := openStore(config.StoreConfig{Backend: backend, Path: filepath.Join(dir, backend)}, nil)
			require.NoError(t, err)
			defer st.Close()

			sess := &store.Session{Title: "t"}
			require.NoError(t, st.CreateSession(t.Context(), sess))
			got, err := st.GetSession(t.Context(), sess.ID)
			require.NoError(t, err)
			assert.Equal(t, "t", got.Title)
		})
	}

	_, err := openStore(config.StoreConfig{Backend: "postgres", Path: dir}, nil)
	assert.Error(t, err)
}

func TestForkSessionCopiesHistory(t *testing.T) {
	st, err := openStore(config.StoreConfig{Backend: "jsonl", Path: t.TempDir()}, nil)
	require.NoError(t, err)
	defer st.Close()
	ctx := t.Context()

	src := &store.Session{Title: "original"}
	require.NoError(t, st.CreateSession(ctx, src))
	h := history.New()
	h.AddUserTurn("hello")
	h.AddAssistantTurn(content.TextResult{Text: "hi"})
	require.NoError(t, st.SaveHistory(ctx, src.ID, h))

	id, err := forkSession(ctx, st, src.ID)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, id)

	got, err := st.LoadHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, "hi", got.LastAssistantText())
	sess, err := st.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "fork of original", sess.Title)

	_, err = forkSession(ctx, st, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRootFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.PersistentFlags().Parse([]string{"-m", "gpt-4.1", "--provider", "openai", "--sandbox"}))
	model, err := cmd.PersistentFlags().GetString("model")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", model)
	sb, err := cmd.PersistentFlags().GetBool("sandbox")
	require.NoError(t, err)
	assert.True(t, sb)
}
