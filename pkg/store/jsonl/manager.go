// Package jsonl implements store.Store on plain files: an index.json with
// session metadata, one <id>.jsonl event log and one <id>.ckpt history
// checkpoint per session.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/agentcore/pkg/store"
)

// Store implements the store.Store interface using JSONL files.
type Store struct {
	sessDir string
	logger  *slog.Logger

	mu sync.RWMutex
	// touched holds UpdatedAt bumps from SaveEvent not yet written to the
	// index.
	touched map[string]time.Time
	store.Notifier
}

var _ store.Store = (*Store)(nil)

// New creates the sessions directory under rootDir if needed.
func New(rootDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		sessDir: filepath.Join(rootDir, "sessions"),
		logger:  logger,
		touched: map[string]time.Time{},
	}
	if err := os.MkdirAll(s.sessDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return s, nil
}

// Index represents the index.json structure
type Index struct {
	Sessions []store.Session `json:"sessions"`
}

func (s *Store) indexPath() string { return filepath.Join(s.sessDir, "index.json") }
func (s *Store) eventsPath(id string) string {
	return filepath.Join(s.sessDir, id+".jsonl")
}
func (s *Store) checkpointPath(id string) string {
	return filepath.Join(s.sessDir, id+".ckpt")
}

// readIndex returns the indexed sessions with pending UpdatedAt bumps applied.
func (s *Store) readIndex() ([]store.Session, error) {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse session index: %w", err)
	}
	for i := range idx.Sessions {
		if t, ok := s.touched[idx.Sessions[i].ID]; ok && t.After(idx.Sessions[i].UpdatedAt) {
			idx.Sessions[i].UpdatedAt = t
		}
	}
	return idx.Sessions, nil
}

func (s *Store) writeIndex(sessions []store.Session) error {
	data, err := json.MarshalIndent(Index{Sessions: sessions}, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.indexPath(), data); err != nil {
		return err
	}
	clear(s.touched)
	return nil
}

// updateSession applies fn to the indexed session with the given id.
// Callers hold s.mu.
func (s *Store) updateSession(id string, fn func(*store.Session)) error {
	sessions, err := s.readIndex()
	if err != nil {
		return err
	}
	for i := range sessions {
		if sessions[i].ID == id {
			fn(&sessions[i])
			return s.writeIndex(sessions)
		}
	}
	return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
}

func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.Status == "" {
		sess.Status = store.SessionStatusActive
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	sessions, err := s.readIndex()
	if err != nil {
		return err
	}
	for _, existing := range sessions {
		if existing.ID == sess.ID {
			return fmt.Errorf("session %s already exists", sess.ID)
		}
	}

	f, err := os.OpenFile(s.eventsPath(sess.ID), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	f.Close()

	if err := s.writeIndex(append(sessions, *sess)); err != nil {
		return fmt.Errorf("failed to update session index: %w", err)
	}
	s.logger.Debug("Session created", "sessionID", sess.ID)
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if sess.ID == id {
			return &sess, nil
		}
	}
	return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
}

func (s *Store) ListSessions(ctx context.Context) ([]store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (s *Store) SetSessionStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSession(id, func(sess *store.Session) {
		sess.Status = status
		sess.UpdatedAt = time.Now().UTC()
	})
}

// Close writes pending UpdatedAt bumps to the index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.touched) == 0 {
		return nil
	}
	sessions, err := s.readIndex()
	if err != nil {
		return err
	}
	return s.writeIndex(sessions)
}

// writeFileAtomic replaces path so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
