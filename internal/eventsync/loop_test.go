package eventsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/campus-presence/internal/model"
	"github.com/example/campus-presence/internal/testfixtures"
)

type sourceStub struct {
	mu      sync.Mutex
	calls   int
	results [][]model.Event
	errs    []error
	block   map[int]chan struct{}
	entered chan int
}

func (s *sourceStub) FetchEvents(ctx context.Context) ([]model.Event, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	gate := s.block[n]
	var events []model.Event
	var err error
	if n-1 < len(s.results) {
		events = s.results[n-1]
	}
	if n-1 < len(s.errs) {
		err = s.errs[n-1]
	}
	s.mu.Unlock()

	if gate != nil {
		if s.entered != nil {
			s.entered <- n
		}
		<-gate
	}
	return events, err
}

func (s *sourceStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type storeStub struct {
	seed  []model.Event
	saved [][]model.Event
}

func (s *storeStub) LoadEvents(ctx context.Context) ([]model.Event, bool, error) {
	if s.seed == nil {
		return nil, false, nil
	}
	return s.seed, true, nil
}

func (s *storeStub) SaveEvents(ctx context.Context, events []model.Event) error {
	s.saved = append(s.saved, events)
	return nil
}

func events(ids ...string) []model.Event {
	out := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Event{ID: id, Title: "Event " + id})
	}
	return out
}

func TestLoop_Start(t *testing.T) {
	t.Run("ticks immediately and then on the interval", func(t *testing.T) {
		clk := testfixtures.NewClock(time.Time{})
		src := &sourceStub{results: [][]model.Event{events("e1"), events("e1", "e2")}}
		l := New(src, WithClock(clk))

		l.Start(context.Background())
		defer l.Stop()

		if src.Calls() != 1 {
			t.Fatalf("expected immediate tick, got %d calls", src.Calls())
		}
		if got := l.Events(); len(got) != 1 || got[0].ID != "e1" {
			t.Fatalf("expected [e1], got %v", got)
		}

		clk.Advance(DefaultInterval - time.Second)
		if src.Calls() != 1 {
			t.Fatalf("expected no tick before the interval, got %d calls", src.Calls())
		}
		clk.Advance(time.Second)
		if src.Calls() != 2 {
			t.Fatalf("expected second tick, got %d calls", src.Calls())
		}
		if got := l.Events(); len(got) != 2 {
			t.Fatalf("expected 2 events after second tick, got %v", got)
		}
		if !l.LastSyncedAt().Equal(clk.Now()) {
			t.Fatalf("expected last sync at %v, got %v", clk.Now(), l.LastSyncedAt())
		}
	})

	t.Run("stop cancels future ticks", func(t *testing.T) {
		clk := testfixtures.NewClock(time.Time{})
		src := &sourceStub{}
		l := New(src, WithClock(clk), WithInterval(time.Minute))

		l.Start(context.Background())
		l.Stop()
		l.Stop()
		clk.Advance(10 * time.Minute)

		if src.Calls() != 1 {
			t.Fatalf("expected only the startup tick, got %d", src.Calls())
		}
		if l.Running() {
			t.Fatal("expected loop to be stopped")
		}
		if clk.Pending() != 0 {
			t.Fatalf("expected no pending timers, got %d", clk.Pending())
		}
	})

	t.Run("seeds from the snapshot store", func(t *testing.T) {
		clk := testfixtures.NewClock(time.Time{})
		src := &sourceStub{errs: []error{errors.New("offline")}}
		store := &storeStub{seed: events("cached")}
		l := New(src, WithClock(clk), WithSnapshotStore(store))

		l.Start(context.Background())
		defer l.Stop()

		if got := l.Events(); len(got) != 1 || got[0].ID != "cached" {
			t.Fatalf("expected cached snapshot to survive failed tick, got %v", got)
		}
	})
}

func TestLoop_Tick(t *testing.T) {
	t.Run("empty result replaces a non-empty list", func(t *testing.T) {
		src := &sourceStub{results: [][]model.Event{events("e1", "e2"), {}}}
		l := New(src)

		if _, err := l.Tick(context.Background()); err != nil {
			t.Fatalf("first tick: %v", err)
		}
		if _, err := l.Tick(context.Background()); err != nil {
			t.Fatalf("second tick: %v", err)
		}
		if got := l.Events(); len(got) != 0 {
			t.Fatalf("expected empty list, got %v", got)
		}
	})

	t.Run("failure keeps the previous list and the loop keeps going", func(t *testing.T) {
		clk := testfixtures.NewClock(time.Time{})
		boom := errors.New("backend down")
		src := &sourceStub{
			results: [][]model.Event{events("e1"), nil, events("e3")},
			errs:    []error{nil, boom, nil},
		}
		l := New(src, WithClock(clk))
		l.Start(context.Background())
		defer l.Stop()

		clk.Advance(DefaultInterval)
		if !errors.Is(l.LastError(), boom) {
			t.Fatalf("expected last error to be recorded, got %v", l.LastError())
		}
		if got := l.Events(); len(got) != 1 || got[0].ID != "e1" {
			t.Fatalf("expected previous list retained, got %v", got)
		}

		clk.Advance(DefaultInterval)
		if l.LastError() != nil {
			t.Fatalf("expected error cleared, got %v", l.LastError())
		}
		if got := l.Events(); len(got) != 1 || got[0].ID != "e3" {
			t.Fatalf("expected [e3], got %v", got)
		}
	})

	t.Run("saves successful results", func(t *testing.T) {
		store := &storeStub{}
		src := &sourceStub{results: [][]model.Event{events("e1")}, errs: []error{nil, errors.New("x")}}
		l := New(src, WithSnapshotStore(store))

		l.Tick(context.Background())
		l.Tick(context.Background())

		if len(store.saved) != 1 {
			t.Fatalf("expected one snapshot save, got %d", len(store.saved))
		}
	})

	t.Run("timer firing during an outstanding tick is skipped", func(t *testing.T) {
		clk := testfixtures.NewClock(time.Time{})
		gate := make(chan struct{})
		src := &sourceStub{
			block:   map[int]chan struct{}{2: gate},
			entered: make(chan int, 1),
		}
		l := New(src, WithClock(clk))
		l.Start(context.Background())
		defer l.Stop()

		done := make(chan struct{})
		go func() {
			l.Tick(context.Background())
			close(done)
		}()
		<-src.entered

		clk.Advance(DefaultInterval)
		if src.Calls() != 2 {
			t.Fatalf("expected overlapping tick to be skipped, got %d calls", src.Calls())
		}

		close(gate)
		<-done

		clk.Advance(DefaultInterval)
		if src.Calls() != 3 {
			t.Fatalf("expected cadence to continue, got %d calls", src.Calls())
		}
	})

	t.Run("returned and stored lists are independent copies", func(t *testing.T) {
		src := &sourceStub{results: [][]model.Event{{{ID: "e1", Attendees: []string{"u1"}}}}}
		l := New(src)
		got, _ := l.Tick(context.Background())
		got[0].Attendees[0] = "mutated"

		if l.Events()[0].Attendees[0] != "u1" {
			t.Fatal("expected internal list to be isolated from callers")
		}
	})

	t.Run("reports missing source", func(t *testing.T) {
		l := New(nil)
		if _, err := l.Tick(context.Background()); !errors.Is(err, ErrNoSource) {
			t.Fatalf("expected ErrNoSource, got %v", err)
		}
	})
}

func TestLoop_OnChange(t *testing.T) {
	src := &sourceStub{results: [][]model.Event{events("e1")}}
	l := New(src)
	var seen []model.Event
	l.OnChange(func(evts []model.Event) { seen = evts })

	l.Tick(context.Background())

	if len(seen) != 1 || seen[0].ID != "e1" {
		t.Fatalf("expected change callback with [e1], got %v", seen)
	}
}
