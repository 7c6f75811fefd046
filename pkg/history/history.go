// Package history keeps the ordered turn log of one agent session and
// enforces the pairing between tool calls and their results.
package history

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nstogner/agentcore/pkg/content"
)

var (
	// ErrUnknownToolCall is returned when a result is added for a call that is
	// not pending. It means the loop and the history disagree.
	ErrUnknownToolCall = errors.New("tool call is not pending")
	// ErrDuplicateCallID is returned when two tool calls share an id.
	ErrDuplicateCallID = errors.New("duplicate tool call id")
	// ErrInvalidRange is returned by Replace for out of bounds ranges.
	ErrInvalidRange = errors.New("invalid turn range")
)

// CancelledOutput is the synthetic result attached to unanswered tool calls.
const CancelledOutput = "Tool call was cancelled."

// History is the turn log of a session. A mutex guards it so adapters may
// read it while the owning loop writes.
type History struct {
	mu    sync.RWMutex
	turns []content.Turn
}

// New returns an empty history.
func New() *History {
	return &History{}
}

// FromTurns returns a history holding copies of the given turns.
func FromTurns(turns []content.Turn) *History {
	h := New()
	h.SetTurns(turns)
	return h
}

// AddUserTurn appends a user turn with the text and any images.
func (h *History) AddUserTurn(text string, images ...content.ImageBlock) {
	blocks := []content.Block{content.TextPrompt{Text: text}}
	for _, img := range images {
		blocks = append(blocks, img)
	}
	h.append(content.UserTurn(blocks...))
}

// AddAssistantTurn appends model output. Empty output is recorded as an
// empty text result so the turn stays non-empty.
func (h *History) AddAssistantTurn(blocks ...content.Block) {
	if len(blocks) == 0 {
		blocks = []content.Block{content.TextResult{}}
	}
	h.append(content.AssistantTurn(blocks...))
}

// PendingToolCalls returns calls in the most recent assistant turn that have
// no result yet.
func (h *History) PendingToolCalls() []content.ToolCall {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return pending(h.turns)
}

// AddToolCallResult appends the result of a pending call.
func (h *History) AddToolCallResult(call content.ToolCall, output string) error {
	return h.AddToolCallResults([]content.ToolCall{call}, []string{output})
}

// AddToolCallResults appends results for several pending calls as one turn.
func (h *History) AddToolCallResults(calls []content.ToolCall, outputs []string) error {
	if len(calls) != len(outputs) {
		return fmt.Errorf("got %d calls and %d outputs", len(calls), len(outputs))
	}
	if len(calls) == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	open := map[string]bool{}
	for _, c := range pending(h.turns) {
		open[c.ID] = true
	}
	blocks := make([]content.Block, 0, len(calls))
	for i, c := range calls {
		if !open[c.ID] {
			return fmt.Errorf("%w: %q (%s)", ErrUnknownToolCall, c.ID, c.Name)
		}
		delete(open, c.ID)
		blocks = append(blocks, content.ToolFormattedResult{CallID: c.ID, Name: c.Name, Output: outputs[i]})
	}
	h.turns = append(h.turns, content.UserTurn(blocks...))
	return nil
}

// MessagesForModel repairs the history and returns a copy ready to send.
func (h *History) MessagesForModel() ([]content.Turn, error) {
	if err := h.EnsureIntegrity(); err != nil {
		return nil, err
	}
	return h.Turns(), nil
}

// ClearFromLastUserMessage removes the most recent user-authored turn and
// everything after it. Tool result turns do not count as user-authored.
func (h *History) ClearFromLastUserMessage() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.turns) - 1; i >= 0; i-- {
		t := h.turns[i]
		if t.Role == content.RoleUser && !t.IsToolResult() {
			h.turns = h.turns[:i]
			return
		}
	}
}

// Len returns the number of turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// Turns returns a copy of the turns.
func (h *History) Turns() []content.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneTurns(h.turns)
}

// SetTurns replaces the whole history.
func (h *History) SetTurns(turns []content.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = cloneTurns(turns)
}

// Replace swaps turns [start, end) for the given turns. Only compressors
// should rewrite history this way.
func (h *History) Replace(start, end int, with ...content.Turn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if start < 0 || end > len(h.turns) || start > end {
		return fmt.Errorf("%w: [%d, %d) of %d", ErrInvalidRange, start, end, len(h.turns))
	}
	next := make([]content.Turn, 0, len(h.turns)-(end-start)+len(with))
	next = append(next, h.turns[:start]...)
	next = append(next, cloneTurns(with)...)
	next = append(next, h.turns[end:]...)
	h.turns = next
	return nil
}

// Clear removes every turn.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

// LastAssistantText returns the text of the most recent assistant turn.
func (h *History) LastAssistantText() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.turns) - 1; i >= 0; i-- {
		if h.turns[i].Role == content.RoleAssistant {
			return h.turns[i].Text()
		}
	}
	return ""
}

func (h *History) append(t content.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, t)
}

func pending(turns []content.Turn) []content.ToolCall {
	last := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == content.RoleAssistant {
			last = i
			break
		}
	}
	if last < 0 {
		return nil
	}
	answered := map[string]bool{}
	for _, t := range turns[last+1:] {
		for _, r := range t.ToolResults() {
			answered[r.CallID] = true
		}
	}
	var out []content.ToolCall
	for _, c := range turns[last].ToolCalls() {
		if !answered[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func cloneTurns(turns []content.Turn) []content.Turn {
	if turns == nil {
		return nil
	}
	out := make([]content.Turn, len(turns))
	for i, t := range turns {
		out[i] = t.Clone()
	}
	return out
}
