// Package events defines the outbound event stream emitted while an agent
// runs, and sinks that consume it.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies an event.
type Type string

const (
	TypeConnectionEstablished    Type = "connection_established"
	TypeAgentInitialized         Type = "agent_initialized"
	TypeProcessing               Type = "processing"
	TypeUserMessage              Type = "user_message"
	TypeAgentThinking            Type = "agent_thinking"
	TypeToolCall                 Type = "tool_call"
	TypeToolResult               Type = "tool_result"
	TypeAgentResponse            Type = "agent_response"
	TypeAgentResponseInterrupted Type = "agent_response_interrupted"
	TypeSystem                   Type = "system"
	TypeError                    Type = "error"
	TypePong                     Type = "pong"
)

// Payload keys.
const (
	KeyToolCallID = "tool_call_id"
	KeyToolName   = "tool_name"
	KeyToolInput  = "tool_input"
	KeyResult     = "result"
	KeyText       = "text"
	KeyMessage    = "message"
	KeySessionID  = "session_id"
)

// Event is one entry of the outbound stream.
type Event struct {
	ID      string         `json:"id,omitempty"`
	Type    Type           `json:"type"`
	Content map[string]any `json:"content"`
	Time    time.Time      `json:"time,omitzero"`
}

// New returns an event with a fresh id and timestamp.
func New(t Type, content map[string]any) Event {
	if content == nil {
		content = map[string]any{}
	}
	return Event{ID: uuid.NewString(), Type: t, Content: content, Time: time.Now().UTC()}
}

// Text returns Content[KeyText] when it is a string.
func (e Event) Text() string {
	s, _ := e.Content[KeyText].(string)
	return s
}

// Sink consumes events. Record must not block the caller for long and must
// not panic; delivery failures are the sink's problem.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(context.Context, Event) {}

// Func adapts a function to a Sink.
type Func func(ctx context.Context, e Event)

func (f Func) Record(ctx context.Context, e Event) { f(ctx, e) }

// Channel delivers events to a channel in order. Record blocks until the
// event is received or ctx is done.
type Channel chan Event

func (c Channel) Record(ctx context.Context, e Event) {
	select {
	case c <- e:
	case <-ctx.Done():
	}
}

// Fanout delivers each event to every sink in order. A panicking sink is
// logged and skipped.
type Fanout struct {
	Sinks  []Sink
	Logger *slog.Logger
}

func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{Sinks: sinks, Logger: logger}
}

func (f *Fanout) Record(ctx context.Context, e Event) {
	for _, s := range f.Sinks {
		f.record(ctx, s, e)
	}
}

func (f *Fanout) record(ctx context.Context, s Sink, e Event) {
	defer func() {
		if r := recover(); r != nil {
			f.Logger.Error("Event sink panicked", "type", e.Type, "panic", r)
		}
	}()
	s.Record(ctx, e)
}

// Saver persists events for a session.
type Saver interface {
	SaveEvent(ctx context.Context, sessionID string, e Event) error
}

// Recorder persists events through a Saver. Failures are logged.
type Recorder struct {
	Saver     Saver
	SessionID string
	Logger    *slog.Logger
}

func (r *Recorder) Record(ctx context.Context, e Event) {
	// Events are saved even after the run is cancelled.
	if err := r.Saver.SaveEvent(context.WithoutCancel(ctx), r.SessionID, e); err != nil && r.Logger != nil {
		r.Logger.Warn("Failed to save event", "sessionID", r.SessionID, "type", e.Type, "error", err)
	}
}

// Buffer keeps every event in memory. It is safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

func (b *Buffer) Record(_ context.Context, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

// Events returns a copy of the recorded events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Types returns the recorded event types in order.
func (b *Buffer) Types() []Type {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Type, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}
