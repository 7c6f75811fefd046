// Package tokens estimates the token cost of conversation history.
package tokens

import (
	"encoding/json"
	"fmt"

	"github.com/nstogner/agentcore/pkg/content"
)

const (
	// DefaultImageTokens is charged for every image regardless of its size.
	DefaultImageTokens = 1500
	// DefaultTurnOverhead covers role markers and separators of one turn.
	DefaultTurnOverhead = 3
)

// Accountant estimates the token cost of turns. It holds no mutable state and
// may be shared across sessions.
type Accountant struct {
	Estimator    Estimator
	ImageTokens  int
	TurnOverhead int
}

// New returns an Accountant with default costs using the given estimator.
func New(e Estimator) Accountant {
	return Accountant{Estimator: e, ImageTokens: DefaultImageTokens, TurnOverhead: DefaultTurnOverhead}
}

// Default returns an Accountant using character-based estimation.
func Default() Accountant {
	return New(CharEstimator{})
}

// Count returns the estimated cost of the turns. Thinking text is charged only
// in the last turn.
func (a Accountant) Count(turns []content.Turn) int {
	total := 0
	for i, t := range turns {
		total += a.CountTurn(t, i == len(turns)-1)
	}
	return total
}

// CountTurn returns the cost of a single turn. final selects whether thinking
// text is charged.
func (a Accountant) CountTurn(t content.Turn, final bool) int {
	total := a.TurnOverhead
	for _, b := range t.Blocks {
		total += a.CountBlock(b, final)
	}
	return total
}

// CountBlock returns the cost of a single block.
func (a Accountant) CountBlock(b content.Block, final bool) int {
	switch v := b.(type) {
	case content.TextPrompt:
		return a.text(v.Text)
	case content.TextResult:
		n := a.text(v.Text)
		if final {
			n += a.text(v.Thinking)
		}
		return n
	case content.ImageBlock:
		return a.ImageTokens
	case content.ToolCall:
		return a.structured(map[string]any{"id": v.ID, "name": v.Name, "input": v.Input})
	case content.ToolFormattedResult:
		return a.structured(map[string]any{"tool_call_id": v.CallID, "name": v.Name, "output": v.Output})
	default:
		panic(fmt.Sprintf("tokens: unsupported block type %T", b))
	}
}

func (a Accountant) text(s string) int {
	if s == "" {
		return 0
	}
	if a.Estimator == nil {
		return CharEstimator{}.Estimate(s)
	}
	return a.Estimator.Estimate(s)
}

func (a Accountant) structured(v map[string]any) int {
	data, err := json.Marshal(v)
	if err != nil {
		// Inputs that cannot be marshaled still occupy context; cost their
		// printed form instead.
		return a.text(fmt.Sprint(v))
	}
	return a.text(string(data))
}
