package checkin

import (
	"testing"

	"github.com/example/campus-presence/internal/model"
)

func TestMachine(t *testing.T) {
	t.Run("begin moves idle to active", func(t *testing.T) {
		m := NewMachine()
		if m.State() != Idle {
			t.Fatalf("expected idle, got %v", m.State())
		}
		if _, replaced := m.Begin(model.CheckIn{SessionID: "s1", LocationID: "lib"}); replaced {
			t.Fatal("expected no prior session")
		}
		got, ok := m.Active()
		if !ok || got.SessionID != "s1" {
			t.Fatalf("expected active s1, got %v (%v)", got, ok)
		}
	})

	t.Run("begin over an active session keeps a single slot", func(t *testing.T) {
		m := NewMachine()
		m.Begin(model.CheckIn{SessionID: "s1", LocationID: "lib"})

		prior, replaced := m.Begin(model.CheckIn{SessionID: "s2", LocationID: "gym"})
		if !replaced || prior.SessionID != "s1" {
			t.Fatalf("expected s1 to be replaced, got %v (%v)", prior, replaced)
		}
		got, _ := m.Active()
		if got.SessionID != "s2" {
			t.Fatalf("expected s2 active, got %v", got)
		}
	})

	t.Run("end with a different location is a no-op", func(t *testing.T) {
		m := NewMachine()
		m.Begin(model.CheckIn{SessionID: "s1", LocationID: "lib"})

		if _, ok := m.End("gym"); ok {
			t.Fatal("expected mismatched end to be ignored")
		}
		if m.State() != Active {
			t.Fatalf("expected still active, got %v", m.State())
		}
		ended, ok := m.End("lib")
		if !ok || ended.SessionID != "s1" {
			t.Fatalf("expected s1 ended, got %v (%v)", ended, ok)
		}
		if m.State() != Idle {
			t.Fatalf("expected idle, got %v", m.State())
		}
	})

	t.Run("end session matches by backend id", func(t *testing.T) {
		m := NewMachine()
		m.Begin(model.CheckIn{SessionID: "s1", LocationID: "lib"})
		if _, ok := m.EndSession("s0"); ok {
			t.Fatal("expected stale session id to be ignored")
		}
		if _, ok := m.EndSession("s1"); !ok {
			t.Fatal("expected s1 to end")
		}
	})
}

func TestJoinedSet(t *testing.T) {
	s := NewJoinedSet()

	if !s.Toggle("lib") {
		t.Fatal("expected first toggle to join")
	}
	s.Add("gym")
	if got := s.List(); len(got) != 2 || got[0] != "gym" || got[1] != "lib" {
		t.Fatalf("expected sorted [gym lib], got %v", got)
	}
	if s.Toggle("lib") {
		t.Fatal("expected second toggle to leave")
	}
	if s.Has("lib") {
		t.Fatal("expected lib to be removed")
	}
	s.Reset()
	if len(s.List()) != 0 {
		t.Fatalf("expected empty set, got %v", s.List())
	}
}
