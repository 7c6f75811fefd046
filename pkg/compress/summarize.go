package compress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/models"
	"github.com/nstogner/agentcore/pkg/tokens"
)

const (
	defaultMaxSummaryTokens = 2000
	defaultMaxBlockChars    = 8000
)

const summaryInstructions = `You are maintaining a context-aware state summary for an interactive software agent.
You will be given a list of events corresponding to actions taken by the agent, plus the most recent previous summary if one exists.
Track:

USER_CONTEXT: (Preserve essential user requirements, goals, and clarifications in concise form)

COMPLETED: (Tasks completed so far, with brief results)
PENDING: (Tasks that still need to be done)
CURRENT_STATE: (Current variables, data structures, or relevant state)

For code-specific tasks, also include:
CODE_STATE: {File paths, function signatures, data structures}
TESTS: {Failing cases, error messages, outputs}
CHANGES: {Code edits, variable updates}
DEPS: {Dependencies, imports, external calls}
VERSION_CONTROL_STATUS: {Repository state, current branch, PR status, commit history}

PRIORITIZE:
1. Adapt tracking format to match the actual task type
2. Capture key user requirements and goals
3. Distinguish between completed and pending tasks
4. Keep all sections concise and relevant

SKIP: Tracking irrelevant details for the current task type

Example formats:

For code tasks:
USER_CONTEXT: Fix FITS card float representation issue
COMPLETED: Modified mod_float() in card.py, all tests passing
PENDING: Create PR, update documentation
CODE_STATE: mod_float() in card.py updated
TESTS: test_format() passed
CHANGES: str(val) replaces f"{val:.16G}"
DEPS: None modified
VERSION_CONTROL_STATUS: Branch: fix-float-precision, Latest commit: a1b2c3d

For other tasks:
USER_CONTEXT: Write 20 haikus based on coin flip results
COMPLETED: 15 haikus written for results [T,H,T,H,T,H,T,T,H,T,H,T,H,T,H]
PENDING: 5 more haikus needed
CURRENT_STATE: Last flip: Heads, Haiku count: 15/20`

// Summarizing folds the middle of the history into a single summary turn
// produced by a model.
type Summarizing struct {
	Client     models.Client
	Budget     Budget
	Accountant tokens.Accountant
	Logger     *slog.Logger

	// MaxSummaryTokens caps the summarizer's output.
	MaxSummaryTokens int
	// MaxBlockChars truncates each rendered block in the summarization prompt.
	MaxBlockChars int
}

var _ Compressor = (*Summarizing)(nil)

// NewSummarizing returns a compressor using client for summaries.
func NewSummarizing(client models.Client, budget Budget, acct tokens.Accountant, logger *slog.Logger) *Summarizing {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizing{
		Client:           client,
		Budget:           budget,
		Accountant:       acct,
		Logger:           logger,
		MaxSummaryTokens: defaultMaxSummaryTokens,
		MaxBlockChars:    defaultMaxBlockChars,
	}
}

func (s *Summarizing) ShouldCompress(h *history.History) bool {
	return shouldCompress(s.Accountant, s.Budget, h)
}

func (s *Summarizing) ApplyIfNeeded(ctx context.Context, h *history.History) (bool, error) {
	if !s.ShouldCompress(h) {
		return false, nil
	}
	return s.fold(ctx, h)
}

// Compress replaces the middle of the history with a summary turn. On
// failure the history is unchanged and ErrSummarizationFailed is returned.
func (s *Summarizing) Compress(ctx context.Context, h *history.History) error {
	_, err := s.fold(ctx, h)
	return err
}

func (s *Summarizing) fold(ctx context.Context, h *history.History) (bool, error) {
	if err := h.EnsureIntegrity(); err != nil {
		return false, err
	}
	turns := h.Turns()
	headEnd, tailStart := partition(turns, s.Budget.KeepFirst, s.Budget.TailSize)
	middle := turns[headEnd:tailStart]
	if !foldable(middle) {
		s.Logger.Debug("Nothing to compress", "turns", len(turns))
		return false, nil
	}

	prompt := s.prompt(middle)
	summary, err := s.summarize(ctx, prompt)
	if err != nil {
		s.Logger.Warn("Summarization failed, keeping history as is", "error", err, "middleTurns", len(middle))
		return false, fmt.Errorf("%w: %w", ErrSummarizationFailed, err)
	}

	if err := h.Replace(headEnd, tailStart, content.NewSummaryTurn(summary)); err != nil {
		return false, err
	}
	s.Logger.Info("Compressed history",
		"before", len(turns),
		"after", h.Len(),
		"summarizedTurns", len(middle),
	)
	return true, nil
}

// summarize calls the model, retrying once. An empty summary counts as a
// failure.
func (s *Summarizing) summarize(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		text, err := models.GenerateText(ctx, s.Client, "", prompt, s.MaxSummaryTokens)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = models.ErrEmptyResponse
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		s.Logger.Debug("Summarization attempt failed", "attempt", attempt+1, "error", err)
	}
	return "", lastErr
}

func (s *Summarizing) prompt(middle []content.Turn) string {
	var b strings.Builder
	b.WriteString(summaryInstructions)
	b.WriteString("\n\n")

	events := middle
	if prev, ok := content.SummaryText(middle[0]); ok {
		b.WriteString("<PREVIOUS SUMMARY>\n")
		b.WriteString(prev)
		b.WriteString("\n</PREVIOUS SUMMARY>\n\n")
		events = middle[1:]
	}
	for _, t := range events {
		s.render(&b, t)
	}
	b.WriteString("\nNow summarize the events using the rules above.")
	return b.String()
}

func (s *Summarizing) render(b *strings.Builder, t content.Turn) {
	for _, blk := range t.Blocks {
		switch v := blk.(type) {
		case content.TextPrompt:
			fmt.Fprintf(b, "<EVENT>\nUSER: %s\n</EVENT>\n", s.clip(v.Text))
		case content.TextResult:
			if v.Text != "" {
				fmt.Fprintf(b, "<EVENT>\nASSISTANT: %s\n</EVENT>\n", s.clip(v.Text))
			}
		case content.ImageBlock:
			fmt.Fprintf(b, "<EVENT>\nUSER: [image %s]\n</EVENT>\n", v.MediaType)
		case content.ToolCall:
			input, _ := json.Marshal(v.Input)
			fmt.Fprintf(b, "<EVENT>\nASSISTANT called tool %s with input %s\n</EVENT>\n", v.Name, s.clip(string(input)))
		case content.ToolFormattedResult:
			fmt.Fprintf(b, "<EVENT>\nTOOL RESULT (%s): %s\n</EVENT>\n", v.Name, s.clip(v.Output))
		}
	}
}

func (s *Summarizing) clip(text string) string {
	if s.MaxBlockChars <= 0 {
		return text
	}
	if head, cut := content.Truncate(text, s.MaxBlockChars); cut {
		return head + "... (truncated)"
	}
	return text
}
