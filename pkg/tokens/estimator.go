package tokens

import (
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
	"google.golang.org/genai"
	genaitokenizer "google.golang.org/genai/tokenizer"
)

// DefaultCharsPerToken is the ratio used by CharEstimator when none is set.
const DefaultCharsPerToken = 3

// Estimator converts text into an approximate token count.
type Estimator interface {
	Estimate(text string) int
}

// CharEstimator counts characters and divides by a fixed ratio, rounding up.
type CharEstimator struct {
	CharsPerToken int
}

func (e CharEstimator) Estimate(text string) int {
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = DefaultCharsPerToken
	}
	n := utf8.RuneCountInString(text)
	return (n + ratio - 1) / ratio
}

// BPEEstimator counts tokens with an embedded BPE vocabulary.
type BPEEstimator struct {
	codec    tokenizer.Codec
	fallback CharEstimator
}

// NewBPEEstimator loads the o200k_base encoding.
func NewBPEEstimator() (*BPEEstimator, error) {
	codec, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		return nil, err
	}
	return &BPEEstimator{codec: codec}, nil
}

func (e *BPEEstimator) Estimate(text string) int {
	n, err := e.codec.Count(text)
	if err != nil {
		return e.fallback.Estimate(text)
	}
	return n
}

// GeminiEstimator counts tokens with the Gemini local tokenizer. The model
// vocabulary is fetched on first use; until then, and on any failure, it
// falls back to character counting.
type GeminiEstimator struct {
	model    string
	logger   *slog.Logger
	load     func() (*genaitokenizer.LocalTokenizer, error)
	fallback CharEstimator
}

func NewGeminiEstimator(model string, logger *slog.Logger) *GeminiEstimator {
	if logger == nil {
		logger = slog.Default()
	}
	e := &GeminiEstimator{model: model, logger: logger}
	e.load = sync.OnceValues(func() (*genaitokenizer.LocalTokenizer, error) {
		return genaitokenizer.NewLocalTokenizer(model)
	})
	return e
}

func (e *GeminiEstimator) Estimate(text string) int {
	tok, err := e.load()
	if err != nil {
		e.logger.Debug("gemini tokenizer unavailable", "model", e.model, "error", err)
		return e.fallback.Estimate(text)
	}
	resp, err := tok.CountTokens([]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return e.fallback.Estimate(text)
	}
	return int(resp.TotalTokens)
}

// NewEstimator returns the estimator registered under name: "chars" (default),
// "bpe" or "gemini". Unavailable estimators degrade to "chars".
func NewEstimator(name, model string, logger *slog.Logger) Estimator {
	switch name {
	case "bpe":
		e, err := NewBPEEstimator()
		if err != nil {
			if logger != nil {
				logger.Warn("bpe estimator unavailable, using character estimate", "error", err)
			}
			return CharEstimator{}
		}
		return e
	case "gemini":
		return NewGeminiEstimator(model, logger)
	default:
		return CharEstimator{}
	}
}
