package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/store"
)

// maxLineSize bounds a single event line. Tool results can be large.
const maxLineSize = 16 * 1024 * 1024

// SaveEvent appends e as one JSON line to the session's log. The index is
// not rewritten; the new UpdatedAt is held in memory until the next history
// save, status change or Close.
func (s *Store) SaveEvent(ctx context.Context, sessionID string, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.eventsPath(sessionID), os.O_APPEND|os.O_WRONLY, 0644)
	if os.IsNotExist(err) {
		return fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to open session file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	s.touched[sessionID] = time.Now().UTC()

	s.Publish(sessionID)
	return nil
}

func (s *Store) SessionEvents(ctx context.Context, sessionID string) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.eventsPath(sessionID))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var evs []events.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e events.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			// A torn final line from a crash is skipped.
			s.logger.Warn("Skipping unreadable event line", "sessionID", sessionID, "error", err)
			continue
		}
		evs = append(evs, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return evs, nil
}

func (s *Store) SaveHistory(ctx context.Context, sessionID string, h *history.History) error {
	data, err := h.Checkpoint()
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateSession(sessionID, func(sess *store.Session) {
		sess.UpdatedAt = time.Now().UTC()
	}); err != nil {
		return err
	}
	return writeFileAtomic(s.checkpointPath(sessionID), data)
}

func (s *Store) LoadHistory(ctx context.Context, sessionID string) (*history.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.checkpointPath(sessionID))
	if os.IsNotExist(err) {
		if _, statErr := os.Stat(s.eventsPath(sessionID)); os.IsNotExist(statErr) {
			return nil, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
		}
		return history.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return history.RestoreCheckpoint(data)
}
