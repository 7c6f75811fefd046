// Package modeltest provides a deterministic models.Client for tests.
package modeltest

import (
	"context"
	"errors"
	"sync"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/models"
)

// ErrExhausted is returned when the script has no replies left.
var ErrExhausted = errors.New("modeltest: script exhausted")

// Step is one scripted reply. Exactly one of Blocks or Err is normally set.
// Before, when set, runs before the reply is returned.
type Step struct {
	Blocks []content.Block
	Err    error
	Before func(ctx context.Context, req models.Request)
}

// Scripted replays steps in order and records every request.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []models.Request
	// Repeat, when true, keeps replaying the final step once the script ends.
	Repeat bool
}

var _ models.Client = (*Scripted)(nil)

// New returns a client that replays the steps.
func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Text is a step answering with plain text.
func Text(text string) Step {
	return Step{Blocks: []content.Block{content.TextResult{Text: text}}}
}

// Call is a step answering with a single tool call.
func Call(id, name string, input map[string]any) Step {
	return Step{Blocks: []content.Block{content.ToolCall{ID: id, Name: name, Input: input}}}
}

// Fail is a step answering with an error.
func Fail(err error) Step {
	return Step{Err: err}
}

func (s *Scripted) Generate(ctx context.Context, req models.Request) (*models.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return nil, ErrExhausted
	}
	step := s.steps[0]
	if len(s.steps) > 1 || !s.Repeat {
		s.steps = s.steps[1:]
	}
	s.mu.Unlock()

	if step.Before != nil {
		step.Before(ctx, req)
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blocks := make([]content.Block, len(step.Blocks))
	copy(blocks, step.Blocks)
	return &models.Response{Blocks: blocks, InputTokens: 10, OutputTokens: 5}, nil
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []models.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Calls returns the number of requests received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
