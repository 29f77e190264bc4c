package hub

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/workroomhq/workroom/internal/store"
	"github.com/workroomhq/workroom/internal/task"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureRestoresEndedStatus(t *testing.T) {
	st := newTestStore(t)

	h := New(Options{Store: st, Logger: discardLogger()})
	if _, err := h.Ensure("s1"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := h.Teardown("s1"); err != nil {
		t.Fatalf("Teardown: %v", err)
	}

	// A fresh hub over the same store must not revive the session.
	h2 := New(Options{Store: st, Logger: discardLogger()})
	s, err := h2.Ensure("s1")
	if err != nil {
		t.Fatalf("Ensure after restart: %v", err)
	}
	if s.Status() != SessionEnded {
		t.Errorf("restored status = %q, want %q", s.Status(), SessionEnded)
	}
}

func TestEnsureRestoresTaskHistory(t *testing.T) {
	st := newTestStore(t)

	h := New(Options{Store: st, Logger: discardLogger()})
	s, err := h.Ensure("s1")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	created := s.Registry.Create("restore me", "", task.KindGeneric, 0)
	if err := s.Registry.Complete(created.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	h2 := New(Options{Store: st, Logger: discardLogger()})
	s2, err := h2.Ensure("s1")
	if err != nil {
		t.Fatalf("Ensure after restart: %v", err)
	}
	list := s2.Registry.List(true)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("restored tasks = %+v, want the one created task", list)
	}
	if list[0].Status != task.StatusCompleted {
		t.Errorf("restored status = %q, want completed", list[0].Status)
	}
}
