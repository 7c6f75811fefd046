package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/store"
	"github.com/nstogner/agentcore/pkg/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "test.db")
	s, err := New(tmpFile)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		os.Remove(tmpFile)
	})
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestEventSequenceIsPerSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &store.Session{ID: "a"}
	b := &store.Session{ID: "b"}
	for _, sess := range []*store.Session{a, b} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		s.SaveEvent(ctx, "a", events.New(events.TypeSystem, map[string]any{events.KeyMessage: "a"}))
		s.SaveEvent(ctx, "b", events.New(events.TypeSystem, map[string]any{events.KeyMessage: "b"}))
	}

	evs, err := s.SessionEvents(ctx, "a")
	if err != nil {
		t.Fatalf("SessionEvents: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evs))
	}
	for _, e := range evs {
		if e.Content[events.KeyMessage] != "a" {
			t.Errorf("unexpected event from another session: %v", e.Content)
		}
	}

	var seqs []int
	rows, err := s.db.QueryContext(ctx, `SELECT seq FROM events WHERE session_id='b' ORDER BY seq`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var n int
		rows.Scan(&n)
		seqs = append(seqs, n)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Errorf("seqs = %v, want [1 2 3]", seqs)
	}
}

func TestCheckpointRowTracksTurns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := &store.Session{}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	h, _ := s.LoadHistory(ctx, sess.ID)
	h.AddUserTurn("hello")
	if err := s.SaveHistory(ctx, sess.ID, h); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	var turns int
	if err := s.db.QueryRowContext(ctx, `SELECT turns FROM checkpoints WHERE session_id=?`, sess.ID).Scan(&turns); err != nil {
		t.Fatal(err)
	}
	if turns != 1 {
		t.Errorf("turns = %d, want 1", turns)
	}
}
