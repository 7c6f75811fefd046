// Package store persists sessions, their event streams and history
// checkpoints.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/history"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

const (
	SessionStatusActive = "active"
	SessionStatusClosed = "closed"
)

// Session is the metadata recorded for one conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is implemented by the jsonl and sqlite backends.
type Store interface {
	// CreateSession persists a new session. An empty ID is filled in.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession returns ErrNotFound for unknown ids.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns sessions, most recently updated first.
	ListSessions(ctx context.Context) ([]Session, error)

	// SetSessionStatus updates the status of a session.
	SetSessionStatus(ctx context.Context, id, status string) error

	// SaveEvent appends an event to the session's stream.
	SaveEvent(ctx context.Context, sessionID string, e events.Event) error

	// SessionEvents returns the session's events in the order they were saved.
	SessionEvents(ctx context.Context, sessionID string) ([]events.Event, error)

	// SaveHistory stores a checkpoint of h, replacing the previous one.
	SaveHistory(ctx context.Context, sessionID string, h *history.History) error

	// LoadHistory restores the latest checkpoint. A session without one yields
	// an empty history.
	LoadHistory(ctx context.Context, sessionID string) (*history.History, error)

	// Subscribe returns a channel that receives session ids whenever an
	// event is saved.
	Subscribe() <-chan string

	Close() error
}

// Store implementations double as event savers.
var _ events.Saver = (Store)(nil)
