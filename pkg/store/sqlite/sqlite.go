package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/store"
)

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
	store.Notifier
}

// Verify interface compliance at compile time.
var _ store.Store = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		model TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '{}',
		timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		seq INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_events_session_seq ON events(session_id, seq);

	CREATE TABLE IF NOT EXISTS checkpoints (
		session_id TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		turns INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func notFound(id string) error {
	return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
}

func (s *Store) CreateSession(ctx context.Context, sess *store.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.Status == "" {
		sess.Status = store.SessionStatusActive
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, status, model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.Status, sess.Model, sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (*store.Session, error) {
	sess := &store.Session{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, status, model, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Title, &sess.Status, &sess.Model, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	return sess, err
}

func (s *Store) ListSessions(ctx context.Context) ([]store.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, status, model, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []store.Session
	for rows.Next() {
		var sess store.Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.Status, &sess.Model, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) SetSessionStatus(ctx context.Context, id, status string) error {
	return s.touch(ctx, s.db, id, `UPDATE sessions SET status=?, updated_at=? WHERE id=?`, status)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// touch runs an UPDATE on the sessions row and reports a missing session.
// The query's final two placeholders must be updated_at and id.
func (s *Store) touch(ctx context.Context, db execer, id, query string, args ...any) error {
	args = append(args, time.Now().UTC(), id)
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *Store) SaveEvent(ctx context.Context, sessionID string, e events.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(e.Content)
	if err != nil {
		return fmt.Errorf("encoding event content: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.touch(ctx, tx, sessionID, `UPDATE sessions SET updated_at=? WHERE id=?`); err != nil {
		return err
	}
	// Get next sequence number.
	var maxSeq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE session_id=?`, sessionID,
	).Scan(&maxSeq); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, session_id, type, content, timestamp, seq) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, sessionID, string(e.Type), string(payload), e.Time, maxSeq+1,
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.Publish(sessionID)
	return nil
}

func (s *Store) SessionEvents(ctx context.Context, sessionID string) ([]events.Event, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, content, timestamp FROM events WHERE session_id=? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evs []events.Event
	for rows.Next() {
		var (
			e       events.Event
			typ     string
			payload string
		)
		if err := rows.Scan(&e.ID, &typ, &payload, &e.Time); err != nil {
			return nil, err
		}
		e.Type = events.Type(typ)
		if err := json.Unmarshal([]byte(payload), &e.Content); err != nil {
			return nil, fmt.Errorf("decoding event %s: %w", e.ID, err)
		}
		evs = append(evs, e)
	}
	return evs, rows.Err()
}

func (s *Store) SaveHistory(ctx context.Context, sessionID string, h *history.History) error {
	data, err := h.Checkpoint()
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.touch(ctx, tx, sessionID, `UPDATE sessions SET updated_at=? WHERE id=?`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (session_id, data, turns, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET data=excluded.data, turns=excluded.turns, updated_at=excluded.updated_at`,
		sessionID, data, h.Len(), time.Now().UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) LoadHistory(ctx context.Context, sessionID string) (*history.History, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM checkpoints WHERE session_id=?`, sessionID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.GetSession(ctx, sessionID); err != nil {
			return nil, err
		}
		return history.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return history.RestoreCheckpoint(data)
}
