// Package storetest holds behaviour tests shared by the store backends.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nstogner/agentcore/pkg/content"
	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/history"
	"github.com/nstogner/agentcore/pkg/store"
)

// Run exercises a backend. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("SessionCRUD", func(t *testing.T) { testSessionCRUD(t, newStore(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newStore(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, newStore(t)) })
	t.Run("UnknownSession", func(t *testing.T) { testUnknownSession(t, newStore(t)) })
	t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, newStore(t)) })
}

func testSessionCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := &store.Session{Title: "first", Model: "gemini-2.5-pro"}
	if err := s.CreateSession(ctx, first); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated session ID")
	}
	if first.Status != store.SessionStatusActive {
		t.Errorf("Status = %q, want %q", first.Status, store.SessionStatusActive)
	}

	time.Sleep(10 * time.Millisecond)
	second := &store.Session{ID: "fixed-id", Title: "second"}
	if err := s.CreateSession(ctx, second); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.CreateSession(ctx, &store.Session{ID: "fixed-id"}); err == nil {
		t.Error("expected error creating duplicate session")
	}

	got, err := s.GetSession(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Title != "first" || got.Model != "gemini-2.5-pro" {
		t.Errorf("GetSession = %+v", got)
	}

	list, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListSessions len = %d, want 2", len(list))
	}
	if list[0].ID != "fixed-id" {
		t.Errorf("expected most recent session first, got %s", list[0].ID)
	}

	if err := s.SetSessionStatus(ctx, first.ID, store.SessionStatusClosed); err != nil {
		t.Fatalf("SetSessionStatus: %v", err)
	}
	got, _ = s.GetSession(ctx, first.ID)
	if got.Status != store.SessionStatusClosed {
		t.Errorf("Status = %q, want %q", got.Status, store.SessionStatusClosed)
	}
}

func testEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	sess := &store.Session{Title: "events"}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	want := []events.Event{
		events.New(events.TypeUserMessage, map[string]any{events.KeyText: "hello"}),
		events.New(events.TypeToolCall, map[string]any{
			events.KeyToolCallID: "c1",
			events.KeyToolName:   "bash",
			events.KeyToolInput:  map[string]any{"command": "ls"},
		}),
		events.New(events.TypeAgentResponse, map[string]any{events.KeyText: "done"}),
	}
	for _, e := range want {
		if err := s.SaveEvent(ctx, sess.ID, e); err != nil {
			t.Fatalf("SaveEvent: %v", err)
		}
	}

	got, err := s.SessionEvents(ctx, sess.ID)
	if err != nil {
		t.Fatalf("SessionEvents: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("SessionEvents len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Type != want[i].Type {
			t.Errorf("event %d = %s/%s, want %s/%s", i, got[i].ID, got[i].Type, want[i].ID, want[i].Type)
		}
	}
	if got[0].Text() != "hello" {
		t.Errorf("Text = %q, want hello", got[0].Text())
	}
	input, _ := got[1].Content[events.KeyToolInput].(map[string]any)
	if input["command"] != "ls" {
		t.Errorf("tool input = %v", got[1].Content[events.KeyToolInput])
	}
	if !got[0].Time.Equal(want[0].Time) {
		t.Errorf("Time = %v, want %v", got[0].Time, want[0].Time)
	}
}

func testHistory(t *testing.T, s store.Store) {
	ctx := context.Background()
	sess := &store.Session{}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	empty, err := s.LoadHistory(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadHistory before save: %v", err)
	}
	if empty.Len() != 0 {
		t.Errorf("expected empty history, got %d turns", empty.Len())
	}

	h := history.New()
	h.AddUserTurn("list files")
	call := content.ToolCall{ID: "c1", Name: "list_files", Input: map[string]any{"path": "."}}
	h.AddAssistantTurn(content.TextResult{Text: "Listing."}, call)
	if err := h.AddToolCallResult(call, "main.go"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveHistory(ctx, sess.ID, h); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}

	h.AddAssistantTurn(content.TextResult{Text: "There is one file."})
	if err := s.SaveHistory(ctx, sess.ID, h); err != nil {
		t.Fatalf("SaveHistory overwrite: %v", err)
	}

	got, err := s.LoadHistory(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if got.Len() != 4 {
		t.Fatalf("Len = %d, want 4", got.Len())
	}
	if got.LastAssistantText() != "There is one file." {
		t.Errorf("LastAssistantText = %q", got.LastAssistantText())
	}
	results := got.Turns()[2].ToolResults()
	if len(results) != 1 || results[0].Output != "main.go" {
		t.Errorf("tool results = %+v", results)
	}
}

func testUnknownSession(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetSession err = %v, want ErrNotFound", err)
	}
	if err := s.SaveEvent(ctx, "missing", events.New(events.TypeSystem, nil)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SaveEvent err = %v, want ErrNotFound", err)
	}
	if _, err := s.LoadHistory(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LoadHistory err = %v, want ErrNotFound", err)
	}
	if err := s.SetSessionStatus(ctx, "missing", store.SessionStatusClosed); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("SetSessionStatus err = %v, want ErrNotFound", err)
	}
}

func testSubscribe(t *testing.T, s store.Store) {
	ctx := context.Background()
	ch := s.Subscribe()
	sess := &store.Session{}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.SaveEvent(ctx, sess.ID, events.New(events.TypeSystem, map[string]any{events.KeyMessage: "hi"})); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	select {
	case id := <-ch:
		if id != sess.ID {
			t.Errorf("notified %q, want %q", id, sess.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for notification")
	}
}
