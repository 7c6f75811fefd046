// Package agent drives the turn-by-turn loop between the model and the
// tools for a single session.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nstogner/agentcore/pkg/compress"
	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/models"
	"github.com/nstogner/agentcore/pkg/tools"
)

// Results and history entries written when a run ends without an answer.
const (
	MaxTurnsMessage = "Agent did not complete after max turns"

	AgentInterruptMessage      = "Agent interrupted by user"
	ToolResultInterruptMessage = "Tool execution interrupted by user"

	AgentInterruptFakeResponse    = "Agent interrupted by user. You can resume by providing a new instruction."
	ToolCallInterruptFakeResponse = "Tool call interrupted by user. You can resume by providing a new instruction."

	// SkippedToolCallOutput answers calls beyond the first in one model turn.
	SkippedToolCallOutput = "Tool call was not executed: only one tool call is run per turn. Call it again if still needed."
)

const (
	DefaultMaxTurns        = 200
	DefaultMaxOutputTokens = 8192
)

// ErrBusy is returned when RunAgent is called while a run is in progress.
var ErrBusy = errors.New("agent is already running")

// Config configures an Agent.
type Config struct {
	SystemPrompt    string
	MaxTurns        int
	MaxOutputTokens int
	ThinkingBudget  int
	// Workspace resolves relative attachment paths.
	Workspace string
}

// Agent owns one session's history and runs the orchestration loop over it.
type Agent struct {
	cfg        Config
	client     models.Client
	tools      *tools.Manager
	compressor compress.Compressor
	sink       events.Sink
	logger     *slog.Logger
	hist       *history.History

	mu          sync.Mutex
	running     bool
	interrupted bool
	cancelRun   context.CancelFunc
}

// New returns an agent with an empty history. compressor may be nil.
func New(cfg Config, client models.Client, tm *tools.Manager, compressor compress.Compressor, sink events.Sink, logger *slog.Logger) *Agent {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if sink == nil {
		sink = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		cfg:        cfg,
		client:     client,
		tools:      tm,
		compressor: compressor,
		sink:       sink,
		logger:     logger,
		hist:       history.New(),
	}
}

// History returns the agent's history. Callers must not mutate it while a
// run is in progress.
func (a *Agent) History() *history.History {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hist
}

// SetHistory replaces the history, e.g. with one restored from a checkpoint.
func (a *Agent) SetHistory(h *history.History) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hist = h
}

// Interrupted reports whether the last run was cancelled.
func (a *Agent) Interrupted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interrupted
}

// Running reports whether a run is in progress.
func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Cancel interrupts the current run at the next suspension point. The
// history is left resumable.
func (a *Agent) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interrupted = true
	if a.cancelRun != nil {
		a.cancelRun()
	}
}

// Clear empties the history and resets the interrupt flag.
func (a *Agent) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hist.Clear()
	a.interrupted = false
}

func (a *Agent) begin(ctx context.Context) (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil, ErrBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.running = true
	a.interrupted = false
	a.cancelRun = cancel
	return runCtx, nil
}

func (a *Agent) end() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelRun != nil {
		a.cancelRun()
	}
	a.cancelRun = nil
	a.running = false
}

func (a *Agent) stopped(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interrupted || ctx.Err() != nil
}

func (a *Agent) emit(ctx context.Context, t events.Type, payload map[string]any) {
	// Events go out even after the run context is cancelled.
	a.sink.Record(context.WithoutCancel(ctx), events.New(t, payload))
}

// RunAgent appends instruction as a user turn and loops until the model
// answers without a tool call, a completion tool is called, the turn limit is
// reached or the run is cancelled. Without resume the history is cleared
// first. The returned error is non-nil only when the model call fails or the
// history cannot be repaired.
func (a *Agent) RunAgent(ctx context.Context, instruction string, files []string, resume bool) (string, error) {
	runCtx, err := a.begin(ctx)
	if err != nil {
		return "", err
	}
	defer a.end()

	logger := a.logger
	h := a.History()
	a.tools.Reset()
	if !resume {
		h.Clear()
	} else if err := h.EnsureIntegrity(); err != nil {
		a.emit(ctx, events.TypeError, map[string]any{events.KeyMessage: err.Error()})
		return "", fmt.Errorf("repairing history: %w", err)
	}

	text, images, err := a.userTurn(instruction, files)
	if err != nil {
		a.emit(ctx, events.TypeError, map[string]any{events.KeyMessage: err.Error()})
		return "", err
	}
	h.AddUserTurn(text, images...)
	a.emit(ctx, events.TypeProcessing, map[string]any{events.KeyMessage: "Processing your request..."})
	logger.Info("Agent run started", "resume", resume, "files", len(files), "historyTurns", h.Len())

	for turn := 0; turn < a.cfg.MaxTurns; turn++ {
		if a.stopped(runCtx) {
			return a.interrupt(ctx, h, AgentInterruptFakeResponse, AgentInterruptMessage), nil
		}

		if a.compressor != nil {
			if _, err := a.compressor.ApplyIfNeeded(runCtx, h); err != nil {
				logger.Warn("Context compression failed, continuing uncompressed", "error", err)
			}
		}

		turns, err := h.MessagesForModel()
		if err != nil {
			a.emit(ctx, events.TypeError, map[string]any{events.KeyMessage: err.Error()})
			return "", fmt.Errorf("preparing messages: %w", err)
		}

		logger.Debug("Calling model", "turn", turn, "messages", len(turns))
		resp, err := a.client.Generate(runCtx, models.Request{
			System:          a.cfg.SystemPrompt,
			Turns:           turns,
			Tools:           a.tools.Specs(),
			MaxOutputTokens: a.cfg.MaxOutputTokens,
			ThinkingBudget:  a.cfg.ThinkingBudget,
		})
		if a.stopped(runCtx) {
			return a.interrupt(ctx, h, AgentInterruptFakeResponse, AgentInterruptMessage), nil
		}
		if err != nil {
			logger.Error("Model call failed", "turn", turn, "error", err)
			a.emit(ctx, events.TypeError, map[string]any{events.KeyMessage: "Model call failed: " + err.Error()})
			return "", fmt.Errorf("model call failed: %w", err)
		}
		logger.Debug("Model responded", "turn", turn, "inputTokens", resp.InputTokens, "outputTokens", resp.OutputTokens, "stopReason", resp.StopReason)

		h.AddAssistantTurn(resp.Blocks...)
		for _, b := range resp.Blocks {
			if r, ok := b.(content.TextResult); ok && r.Thinking != "" {
				a.emit(ctx, events.TypeAgentThinking, map[string]any{events.KeyText: r.Thinking})
			}
		}

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			answer := resp.Text()
			a.emit(ctx, events.TypeAgentResponse, map[string]any{events.KeyText: answer})
			logger.Info("Agent run finished", "turns", turn+1)
			return answer, nil
		}

		if len(calls) > 1 {
			logger.Warn("Model requested several tool calls, running only the first", "count", len(calls))
		}
		call := calls[0]
		a.emit(ctx, events.TypeToolCall, map[string]any{
			events.KeyToolCallID: call.ID,
			events.KeyToolName:   call.Name,
			events.KeyToolInput:  call.Input,
		})

		output := a.tools.RunTool(runCtx, call, h)
		interrupted := a.stopped(runCtx)
		if interrupted {
			output = ToolResultInterruptMessage
		}

		outputs := make([]string, len(calls))
		outputs[0] = output
		for i := 1; i < len(calls); i++ {
			outputs[i] = SkippedToolCallOutput
		}
		if err := h.AddToolCallResults(calls, outputs); err != nil {
			a.emit(ctx, events.TypeError, map[string]any{events.KeyMessage: err.Error()})
			return "", fmt.Errorf("recording tool result: %w", err)
		}
		a.emit(ctx, events.TypeToolResult, map[string]any{
			events.KeyToolCallID: call.ID,
			events.KeyToolName:   call.Name,
			events.KeyResult:     output,
		})

		if interrupted {
			h.AddAssistantTurn(content.TextResult{Text: ToolCallInterruptFakeResponse})
			a.emit(ctx, events.TypeAgentResponseInterrupted, map[string]any{events.KeyText: ToolResultInterruptMessage})
			return ToolResultInterruptMessage, nil
		}

		if a.tools.ShouldStop() {
			answer := a.tools.FinalAnswer()
			a.emit(ctx, events.TypeAgentResponse, map[string]any{events.KeyText: answer})
			logger.Info("Agent run completed by tool", "tool", call.Name, "turns", turn+1)
			return answer, nil
		}
	}

	logger.Warn("Agent hit max turns", "maxTurns", a.cfg.MaxTurns)
	a.emit(ctx, events.TypeAgentResponse, map[string]any{events.KeyText: MaxTurnsMessage})
	return MaxTurnsMessage, nil
}

// interrupt records a fake assistant reply so the history stays resumable.
func (a *Agent) interrupt(ctx context.Context, h *history.History, fake, message string) string {
	a.mu.Lock()
	a.interrupted = true
	a.mu.Unlock()
	h.AddAssistantTurn(content.TextResult{Text: fake})
	a.emit(ctx, events.TypeAgentResponseInterrupted, map[string]any{events.KeyText: message})
	a.logger.Info("Agent run interrupted")
	return message
}
