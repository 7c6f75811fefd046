package history

import (
	"fmt"

	"github.com/nstogner/agentcore/pkg/content"
)

// EnsureIntegrity repairs the pairing between tool calls and results so the
// history can be sent to a model:
//
//   - a call without a result gets a synthesized CancelledOutput result placed
//     right after the calling turn;
//   - a result that does not answer a call of the preceding assistant turn is
//     dropped, as is a repeated identical result;
//   - two calls sharing an id, or two different results for one call, cannot be
//     repaired and yield ErrDuplicateCallID without modifying the history.
func (h *History) EnsureIntegrity() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	repaired, err := repair(h.turns)
	if err != nil {
		return err
	}
	h.turns = repaired
	return nil
}

func repair(turns []content.Turn) ([]content.Turn, error) {
	seenCalls := map[string]bool{}
	out := make([]content.Turn, 0, len(turns))

	// open holds the calls of the most recent assistant turn, keyed by id,
	// with the output recorded for each once answered.
	var (
		openOrder []content.ToolCall
		answered  map[string]*string
		callTurn  = -1
	)

	flush := func() {
		if callTurn < 0 {
			return
		}
		var missing []content.Block
		for _, c := range openOrder {
			if answered[c.ID] == nil {
				missing = append(missing, content.ToolFormattedResult{CallID: c.ID, Name: c.Name, Output: CancelledOutput})
			}
		}
		if len(missing) > 0 {
			// Place synthesized results in the first tool result turn after
			// the call, or in a new turn directly after it.
			idx := callTurn + 1
			if idx < len(out) && out[idx].IsToolResult() {
				out[idx].Blocks = append(out[idx].Blocks, missing...)
			} else {
				tail := append([]content.Turn{content.UserTurn(missing...)}, out[idx:]...)
				out = append(out[:idx], tail...)
			}
		}
		openOrder, answered, callTurn = nil, nil, -1
	}

	for _, t := range turns {
		t = t.Clone()
		switch t.Role {
		case content.RoleAssistant:
			flush()
			calls := t.ToolCalls()
			for _, c := range calls {
				if seenCalls[c.ID] {
					return nil, fmt.Errorf("%w: %q", ErrDuplicateCallID, c.ID)
				}
				seenCalls[c.ID] = true
			}
			out = append(out, t)
			if len(calls) > 0 {
				openOrder = calls
				answered = make(map[string]*string, len(calls))
				callTurn = len(out) - 1
			}
		default:
			kept := t.Blocks[:0]
			for _, b := range t.Blocks {
				r, ok := b.(content.ToolFormattedResult)
				if !ok {
					kept = append(kept, b)
					continue
				}
				if callTurn < 0 || !containsCall(openOrder, r.CallID) {
					continue
				}
				if prev := answered[r.CallID]; prev != nil {
					if *prev != r.Output {
						return nil, fmt.Errorf("%w: conflicting results for %q", ErrDuplicateCallID, r.CallID)
					}
					continue
				}
				output := r.Output
				answered[r.CallID] = &output
				kept = append(kept, r)
			}
			t.Blocks = kept
			if len(t.Blocks) == 0 {
				continue
			}
			out = append(out, t)
		}
	}
	flush()
	return out, nil
}

func containsCall(calls []content.ToolCall, id string) bool {
	for _, c := range calls {
		if c.ID == id {
			return true
		}
	}
	return false
}
