package compress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/models/modeltest"
	"github.com/nstogner/agentcore/pkg/tokens"
)

func longHistory(n int) *history.History {
	h := history.New()
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("turn %d %s", i, strings.Repeat("x", 100))
		if i%2 == 0 {
			h.AddUserTurn(text)
		} else {
			h.AddAssistantTurn(content.TextResult{Text: text})
		}
	}
	return h
}

func modelTokens(t *testing.T, h *history.History) int {
	t.Helper()
	turns, err := h.MessagesForModel()
	require.NoError(t, err)
	return tokens.Default().Count(turns)
}

func TestSummarizingCompressesMiddle(t *testing.T) {
	client := modeltest.New(modeltest.Text("the user asked for things"))
	c := NewSummarizing(client, Budget{TokenBudget: 100, KeepFirst: 1, TailSize: 1}, tokens.Default(), nil)
	h := longHistory(10)
	before := h.Turns()

	require.True(t, c.ShouldCompress(h))
	changed, err := c.ApplyIfNeeded(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, changed)

	turns := h.Turns()
	require.Len(t, turns, 3)
	assert.Equal(t, before[0], turns[0])
	summary, ok := content.SummaryText(turns[1])
	require.True(t, ok)
	assert.Equal(t, "the user asked for things", summary)
	assert.Equal(t, before[9], turns[2])
	assert.LessOrEqual(t, modelTokens(t, h), 100)
	assert.False(t, c.ShouldCompress(h))
	assert.Equal(t, 1, client.Calls())
}

func TestSummarizingPreservesToolPairsAndThinking(t *testing.T) {
	call := content.ToolCall{ID: "c1", Name: "bash", Input: map[string]any{"command": "ls"}}
	h := history.FromTurns([]content.Turn{
		content.UserTurn(content.TextPrompt{Text: "start"}),
		content.AssistantTurn(content.TextResult{Text: strings.Repeat("a", 400)}),
		content.UserTurn(content.TextPrompt{Text: strings.Repeat("b", 400)}),
		content.AssistantTurn(call),
		content.UserTurn(content.ToolFormattedResult{CallID: "c1", Name: "bash", Output: strings.Repeat("c", 400)}),
		content.UserTurn(content.TextPrompt{Text: "and now?"}),
		content.AssistantTurn(content.TextResult{Text: "done", Thinking: "checked the listing"}),
	})
	before := h.Turns()
	c := NewSummarizing(modeltest.New(modeltest.Text("ran ls")), Budget{TokenBudget: 100, KeepFirst: 1, TailSize: 2}, tokens.Default(), nil)

	require.NoError(t, c.Compress(context.Background(), h))
	turns := h.Turns()
	require.Len(t, turns, 4)
	assert.Equal(t, before[0], turns[0])
	assert.True(t, content.IsSummary(turns[1]))
	assert.Equal(t, before[5], turns[2])
	assert.Equal(t, before[6], turns[3])
	assert.LessOrEqual(t, modelTokens(t, h), 100)
}

func TestSummarizingPromptIsValidUTF8(t *testing.T) {
	client := modeltest.New(modeltest.Text("lots of kanji"))
	c := NewSummarizing(client, Budget{TokenBudget: 100, KeepFirst: 1, TailSize: 1}, tokens.Default(), nil)
	call := content.ToolCall{ID: "c1", Name: "read_file", Input: map[string]any{"path": "jp.txt"}}
	h := history.FromTurns([]content.Turn{
		content.UserTurn(content.TextPrompt{Text: "read it"}),
		content.AssistantTurn(call),
		content.UserTurn(content.ToolFormattedResult{CallID: "c1", Name: "read_file", Output: strings.Repeat("日", 5000)}),
		content.UserTurn(content.TextPrompt{Text: "thanks"}),
	})

	changed, err := c.ApplyIfNeeded(context.Background(), h)
	require.NoError(t, err)
	require.True(t, changed)
	reqs := client.Requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Turns[0].Text()
	assert.True(t, utf8.ValidString(prompt))
	assert.Contains(t, prompt, "... (truncated)")
}

func TestSummarizingIsIdempotent(t *testing.T) {
	client := modeltest.New(modeltest.Text("summary"))
	// The tail alone exceeds the budget, so ShouldCompress stays true.
	c := NewSummarizing(client, Budget{TokenBudget: 10, KeepFirst: 1, TailSize: 2}, tokens.Default(), nil)
	h := longHistory(8)

	changed, err := c.ApplyIfNeeded(context.Background(), h)
	require.NoError(t, err)
	require.True(t, changed)
	after := h.Turns()

	changed, err = c.ApplyIfNeeded(context.Background(), h)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, after, h.Turns())
	assert.Equal(t, 1, client.Calls())
}

func TestSummarizingFailureLeavesHistory(t *testing.T) {
	boom := errors.New("model down")
	client := modeltest.New(modeltest.Fail(boom), modeltest.Fail(boom))
	c := NewSummarizing(client, Budget{TokenBudget: 100, KeepFirst: 1, TailSize: 1}, tokens.Default(), nil)
	h := longHistory(10)
	before := h.Turns()

	changed, err := c.ApplyIfNeeded(context.Background(), h)
	require.ErrorIs(t, err, ErrSummarizationFailed)
	assert.ErrorIs(t, err, boom)
	assert.False(t, changed)
	assert.Equal(t, before, h.Turns())
	// One retry.
	assert.Equal(t, 2, client.Calls())
}

func TestSummarizingRetriesEmptySummary(t *testing.T) {
	client := modeltest.New(modeltest.Text("   "), modeltest.Text("second try"))
	c := NewSummarizing(client, Budget{TokenBudget: 100, KeepFirst: 1, TailSize: 1}, tokens.Default(), nil)
	h := longHistory(10)

	require.NoError(t, c.Compress(context.Background(), h))
	summary, ok := content.SummaryText(h.Turns()[1])
	require.True(t, ok)
	assert.Equal(t, "second try", summary)
}

func TestSummarizingFeedsPreviousSummary(t *testing.T) {
	client := modeltest.New(modeltest.Text("first"), modeltest.Text("second"))
	c := NewSummarizing(client, Budget{TokenBudget: 100, KeepFirst: 1, TailSize: 1}, tokens.Default(), nil)
	h := longHistory(10)
	require.NoError(t, c.Compress(context.Background(), h))

	h.AddUserTurn("more " + strings.Repeat("y", 200))
	h.AddAssistantTurn(content.TextResult{Text: "ok " + strings.Repeat("z", 200)})
	require.NoError(t, c.Compress(context.Background(), h))

	reqs := client.Requests()
	require.Len(t, reqs, 2)
	prompt := reqs[1].Turns[0].Text()
	assert.Contains(t, prompt, "<PREVIOUS SUMMARY>\nfirst\n</PREVIOUS SUMMARY>")
	assert.NotContains(t, prompt, content.SummaryPrefix)

	turns := h.Turns()
	require.Len(t, turns, 3)
	summary, _ := content.SummaryText(turns[1])
	assert.Equal(t, "second", summary)
}

func TestTailNeverSplitsToolPair(t *testing.T) {
	call := content.ToolCall{ID: "c1", Name: "bash", Input: map[string]any{"command": "ls"}}
	h := history.FromTurns([]content.Turn{
		content.UserTurn(content.TextPrompt{Text: "do it " + strings.Repeat("a", 300)}),
		content.AssistantTurn(content.TextResult{Text: strings.Repeat("b", 300)}),
		content.UserTurn(content.TextPrompt{Text: strings.Repeat("c", 300)}),
		content.AssistantTurn(call),
		content.UserTurn(content.ToolFormattedResult{CallID: "c1", Name: "bash", Output: "ok"}),
	})
	c := NewSummarizing(modeltest.New(modeltest.Text("s")), Budget{TokenBudget: 100, KeepFirst: 1, TailSize: 1}, tokens.Default(), nil)

	require.NoError(t, c.Compress(context.Background(), h))
	turns := h.Turns()
	require.Len(t, turns, 4)
	assert.True(t, content.IsSummary(turns[1]))
	assert.Len(t, turns[2].ToolCalls(), 1)
	assert.True(t, turns[3].IsToolResult())
}

func TestShouldCompressOnTurnCount(t *testing.T) {
	c := NewTruncating(Budget{MaxTurnCount: 4, KeepFirst: 1, TailSize: 1}, tokens.Default(), nil)
	assert.False(t, c.ShouldCompress(longHistory(4)))
	assert.True(t, c.ShouldCompress(longHistory(5)))
}

func TestTruncating(t *testing.T) {
	c := NewTruncating(Budget{TokenBudget: 100, KeepFirst: 1, TailSize: 1}, tokens.Default(), nil)
	h := longHistory(10)

	changed, err := c.ApplyIfNeeded(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, changed)
	turns := h.Turns()
	require.Len(t, turns, 3)
	summary, ok := content.SummaryText(turns[1])
	require.True(t, ok)
	assert.Equal(t, OmittedNotice, summary)

	changed, err = c.ApplyIfNeeded(context.Background(), h)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPartition(t *testing.T) {
	user := content.UserTurn(content.TextPrompt{Text: "u"})
	asst := content.AssistantTurn(content.TextResult{Text: "a"})
	call := content.AssistantTurn(content.ToolCall{ID: "1", Name: "x"})
	result := content.UserTurn(content.ToolFormattedResult{CallID: "1", Name: "x"})

	tests := []struct {
		name      string
		turns     []content.Turn
		keep      int
		tail      int
		headEnd   int
		tailStart int
	}{
		{"plain", []content.Turn{user, asst, user, asst}, 1, 1, 1, 3},
		{"tail covers all", []content.Turn{user, asst}, 1, 5, 1, 1},
		{"head absorbs results", []content.Turn{call, result, user, asst}, 1, 1, 2, 3},
		{"tail extends to call", []content.Turn{user, asst, call, result}, 1, 1, 1, 2},
		{"empty", nil, 1, 1, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			headEnd, tailStart := partition(tc.turns, tc.keep, tc.tail)
			assert.Equal(t, tc.headEnd, headEnd)
			assert.Equal(t, tc.tailStart, tailStart)
		})
	}
}
