package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/store"
	"github.com/nstogner/agentcore/pkg/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestTornLineIsSkipped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	sess := &store.Session{}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveEvent(ctx, sess.ID, events.New(events.TypeSystem, map[string]any{events.KeyMessage: "ok"})); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(s.eventsPath(sess.ID), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString(`{"id":"torn","type":`)
	f.Close()

	evs, err := s.SessionEvents(ctx, sess.ID)
	if err != nil {
		t.Fatalf("SessionEvents: %v", err)
	}
	if len(evs) != 1 {
		t.Errorf("expected 1 event, got %d", len(evs))
	}
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSession(ctx, &store.Session{ID: "persisted", Title: "kept"}); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.GetSession(ctx, "persisted")
	if err != nil {
		t.Fatalf("GetSession after reopen: %v", err)
	}
	if got.Title != "kept" {
		t.Errorf("Title = %q, want kept", got.Title)
	}
	if _, err := os.Stat(filepath.Join(dir, "sessions", "index.json")); err != nil {
		t.Errorf("index.json missing: %v", err)
	}
}

func TestSaveEventDefersIndexWrite(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	sess := &store.Session{ID: "busy"}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	indexBefore, err := os.ReadFile(s.indexPath())
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := s.SaveEvent(ctx, sess.ID, events.New(events.TypeSystem, nil)); err != nil {
			t.Fatalf("SaveEvent: %v", err)
		}
	}
	indexAfter, err := os.ReadFile(s.indexPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(indexBefore) != string(indexAfter) {
		t.Errorf("index.json rewritten by SaveEvent")
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.UpdatedAt.After(sess.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want after %v", got.UpdatedAt, sess.UpdatedAt)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	persisted, err := reopened.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !persisted.UpdatedAt.Equal(got.UpdatedAt) {
		t.Errorf("persisted UpdatedAt = %v, want %v", persisted.UpdatedAt, got.UpdatedAt)
	}
}
