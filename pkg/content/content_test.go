package content

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnJSON(t *testing.T) {
	turn := AssistantTurn(
		TextResult{Text: "listing", Thinking: "need ls"},
		ToolCall{ID: "t1", Name: "bash", Input: map[string]any{"command": "ls"}},
	)

	data, err := json.Marshal(turn)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"tool_call"`)
	assert.Contains(t, string(data), `"input":{"command":"ls"}`)

	var decoded Turn
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, turn, decoded)
}

func TestUnknownBlockType(t *testing.T) {
	var decoded Turn
	err := json.Unmarshal([]byte(`{"role":"user","blocks":[{"type":"video"}]}`), &decoded)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video")
}

func TestSummaryTurn(t *testing.T) {
	turn := NewSummaryTurn("  goals: ship it ")
	assert.True(t, IsSummary(turn))

	text, ok := SummaryText(turn)
	require.True(t, ok)
	assert.Equal(t, "goals: ship it", text)

	assert.False(t, IsSummary(UserTurn(TextPrompt{Text: "hello"})))
	assert.False(t, IsSummary(AssistantTurn(TextResult{Text: SummaryPrefix})))
}

func TestTurnHelpers(t *testing.T) {
	results := UserTurn(
		ToolFormattedResult{CallID: "a", Output: "1"},
		ToolFormattedResult{CallID: "b", Output: "2"},
	)
	assert.True(t, results.IsToolResult())
	assert.Len(t, results.ToolResults(), 2)

	mixed := UserTurn(TextPrompt{Text: "hi"}, ImageBlock{MediaType: "image/png", Data: "AAAA"})
	assert.False(t, mixed.IsToolResult())
	assert.Equal(t, "hi", mixed.Text())
	assert.Empty(t, mixed.ToolCalls())
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	s := strings.Repeat("日", 5000)
	got, cut := Truncate(s, 8000)
	assert.True(t, cut)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, 7998)

	got, cut = Truncate("héllo", 2)
	assert.True(t, cut)
	assert.Equal(t, "h", got)

	got, cut = Truncate("short", 10)
	assert.False(t, cut)
	assert.Equal(t, "short", got)
}
