// Package compress keeps conversation history within a model's context
// budget by replacing older turns with a synthetic summary turn.
package compress

import (
	"context"
	"errors"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/tokens"
)

// ErrSummarizationFailed is returned by Compress when the summary could not
// be produced. The history is left unchanged.
var ErrSummarizationFailed = errors.New("summarization failed")

// Budget bounds the history sent to the model.
type Budget struct {
	// TokenBudget is the ceiling for the estimated history cost.
	TokenBudget int
	// MaxTurnCount triggers compression on turn count alone. Zero disables it.
	MaxTurnCount int
	// KeepFirst is the number of leading turns never summarized.
	KeepFirst int
	// TailSize is the minimum number of trailing turns kept verbatim.
	TailSize int
}

// DefaultBudget returns the budget used when none is configured.
func DefaultBudget() Budget {
	return Budget{TokenBudget: 120_000, MaxTurnCount: 200, KeepFirst: 1, TailSize: 6}
}

// Compressor decides when history must shrink and rewrites it in place.
// Implementations are stateless with respect to a History and may be shared.
type Compressor interface {
	ShouldCompress(h *history.History) bool
	Compress(ctx context.Context, h *history.History) error
	// ApplyIfNeeded compresses when ShouldCompress is true. It reports whether
	// the history changed. Calling it again without new turns is a no-op.
	ApplyIfNeeded(ctx context.Context, h *history.History) (bool, error)
}

// shouldCompress is shared by the strategies: over the token budget or over
// the turn count.
func shouldCompress(acct tokens.Accountant, b Budget, h *history.History) bool {
	if b.MaxTurnCount > 0 && h.Len() > b.MaxTurnCount {
		return true
	}
	if b.TokenBudget <= 0 {
		return false
	}
	turns, err := h.MessagesForModel()
	if err != nil {
		return false
	}
	return acct.Count(turns) > b.TokenBudget
}

// partition splits turns into head [0, headEnd), middle [headEnd, tailStart)
// and tail [tailStart, n). The tail is extended backwards so it never starts
// with results whose calls would be summarized away, and the head is extended
// forward over results answering its last turn.
func partition(turns []content.Turn, keepFirst, tailSize int) (headEnd, tailStart int) {
	n := len(turns)
	headEnd = min(max(keepFirst, 0), n)
	for headEnd < n && turns[headEnd].IsToolResult() {
		headEnd++
	}
	tailStart = max(n-max(tailSize, 0), headEnd)
	for tailStart > headEnd && turns[tailStart-1].Role == content.RoleAssistant && tailStart < n && turns[tailStart].IsToolResult() {
		tailStart--
	}
	return headEnd, tailStart
}

// foldable reports whether the middle holds anything beyond a prior summary.
func foldable(middle []content.Turn) bool {
	switch len(middle) {
	case 0:
		return false
	case 1:
		return !content.IsSummary(middle[0])
	}
	return true
}
