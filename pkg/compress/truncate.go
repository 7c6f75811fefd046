package compress

import (
	"context"
	"log/slog"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/tokens"
)

// OmittedNotice is the summary text left in place of dropped turns.
const OmittedNotice = "Earlier turns were omitted to fit the context window."

// Truncating drops the middle of the history without calling a model.
type Truncating struct {
	Budget     Budget
	Accountant tokens.Accountant
	Logger     *slog.Logger
}

var _ Compressor = (*Truncating)(nil)

func NewTruncating(budget Budget, acct tokens.Accountant, logger *slog.Logger) *Truncating {
	if logger == nil {
		logger = slog.Default()
	}
	return &Truncating{Budget: budget, Accountant: acct, Logger: logger}
}

func (t *Truncating) ShouldCompress(h *history.History) bool {
	return shouldCompress(t.Accountant, t.Budget, h)
}

func (t *Truncating) ApplyIfNeeded(ctx context.Context, h *history.History) (bool, error) {
	if !t.ShouldCompress(h) {
		return false, nil
	}
	return t.fold(h)
}

func (t *Truncating) Compress(_ context.Context, h *history.History) error {
	_, err := t.fold(h)
	return err
}

func (t *Truncating) fold(h *history.History) (bool, error) {
	if err := h.EnsureIntegrity(); err != nil {
		return false, err
	}
	turns := h.Turns()
	headEnd, tailStart := partition(turns, t.Budget.KeepFirst, t.Budget.TailSize)
	if !foldable(turns[headEnd:tailStart]) {
		return false, nil
	}
	if err := h.Replace(headEnd, tailStart, content.NewSummaryTurn(OmittedNotice)); err != nil {
		return false, err
	}
	t.Logger.Info("Truncated history", "before", len(turns), "after", h.Len())
	return true, nil
}
