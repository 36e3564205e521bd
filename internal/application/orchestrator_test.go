package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/campus-presence/internal/activity"
	"github.com/example/campus-presence/internal/backend"
	"github.com/example/campus-presence/internal/model"
	"github.com/example/campus-presence/internal/notify"
	"github.com/example/campus-presence/internal/testfixtures"
)

type publisherStub struct {
	mu  sync.Mutex
	got []activity.Activity
	err error
}

func (p *publisherStub) Publish(_ context.Context, a activity.Activity) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.got = append(p.got, a)
	return nil
}

func (p *publisherStub) kinds() []activity.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]activity.Kind, 0, len(p.got))
	for _, a := range p.got {
		out = append(out, a.Kind)
	}
	return out
}

type promptCounter struct {
	mu sync.Mutex
	n  int
}

func (p *promptCounter) PromptSignIn() {
	p.mu.Lock()
	p.n++
	p.mu.Unlock()
}

func (p *promptCounter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrchestrator(t *testing.T, b *testfixtures.Backend, opts ...Option) (*Orchestrator, *testfixtures.Clock) {
	t.Helper()
	clock := testfixtures.NewClock(time.Time{})
	base := []Option{
		WithClock(clock),
		WithLogger(discardLogger()),
		WithEntropy(testfixtures.ZeroEntropy()),
	}
	o, err := New(b, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(o.Close)
	return o, clock
}

func signIn(t *testing.T, o *Orchestrator, b *testfixtures.Backend, userID string) {
	t.Helper()
	rec := testfixtures.UserRecord(userID, userID)
	b.AddAccount(rec, "pw")
	if err := o.SignIn(context.Background(), rec.Email, "pw"); err != nil {
		t.Fatalf("sign in %s: %v", userID, err)
	}
}

func hasNote(o *Orchestrator, message string, severity model.Severity) bool {
	for _, n := range o.Snapshot().Notifications {
		if n.Message == message && n.Severity == severity {
			return true
		}
	}
	return false
}

func countNotes(o *Orchestrator, message string) int {
	n := 0
	for _, note := range o.Snapshot().Notifications {
		if note.Message == message {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew(t *testing.T) {
	t.Run("requires a client", func(t *testing.T) {
		if _, err := New(nil); err == nil {
			t.Fatal("expected error for nil client")
		}
	})

	t.Run("rejects a default channel that is not static", func(t *testing.T) {
		if _, err := New(testfixtures.NewBackend(), WithDefaultChannel("dm-u2")); err == nil {
			t.Fatal("expected error for unknown default channel")
		}
	})

	t.Run("starts signed out on the default channel", func(t *testing.T) {
		o, _ := newOrchestrator(t, testfixtures.NewBackend())
		snap := o.Snapshot()
		if snap.User != nil || snap.Stats != nil || snap.ActiveCheckIn != nil {
			t.Fatalf("expected signed-out snapshot, got %+v", snap)
		}
		if snap.ActiveChannel != "global" || snap.Surface != model.SurfaceDashboard {
			t.Fatalf("expected global/dashboard, got %s/%s", snap.ActiveChannel, snap.Surface)
		}
		if len(snap.Channels) != len(DefaultChannels) {
			t.Fatalf("expected %d static channels, got %d", len(DefaultChannels), len(snap.Channels))
		}
	})
}

func TestOrchestrator_JoinEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("signed out prompts sign-in without side effects", func(t *testing.T) {
		b := testfixtures.NewBackend()
		prompt := &promptCounter{}
		o, _ := newOrchestrator(t, b, WithAuthPrompter(prompt))

		err := o.JoinEvent(ctx, "e1")
		if !errors.Is(err, ErrAuthRequired) {
			t.Fatalf("expected ErrAuthRequired, got %v", err)
		}
		if prompt.count() != 1 {
			t.Fatalf("expected one sign-in prompt, got %d", prompt.count())
		}
		if calls := b.Calls(); len(calls) != 0 {
			t.Fatalf("expected no backend calls, got %+v", calls)
		}
		snap := o.Snapshot()
		if len(snap.Channels) != len(DefaultChannels) {
			t.Fatalf("expected no channel to be created, got %+v", snap.Channels)
		}
		if len(snap.Notifications) != 0 {
			t.Fatalf("expected no notifications, got %+v", snap.Notifications)
		}
	})

	t.Run("creates the event channel once and notifies on every join", func(t *testing.T) {
		b := testfixtures.NewBackend()
		pub := &publisherStub{}
		o, _ := newOrchestrator(t, b, WithPublisher(pub))
		fixture := testfixtures.NewEventFixture(testfixtures.WithEventID("e1"), testfixtures.WithEventTitle("Hack Night"))
		b.SetEvents(fixture.Record())
		signIn(t, o, b, "u1")
		if _, err := o.SyncEvents(ctx); err != nil {
			t.Fatalf("sync: %v", err)
		}

		if err := o.JoinEvent(ctx, "e1"); err != nil {
			t.Fatalf("join: %v", err)
		}
		if err := o.JoinEvent(ctx, "e1"); err != nil {
			t.Fatalf("second join: %v", err)
		}

		if b.Count(testfixtures.OpJoinEvent) != 2 {
			t.Fatalf("expected two join calls, got %d", b.Count(testfixtures.OpJoinEvent))
		}
		label := ""
		count := 0
		for _, ch := range o.Snapshot().Channels {
			if ch.ID == "event-e1" {
				label = ch.Label
				count++
			}
		}
		if count != 1 || label != "Hack Night Chat" {
			t.Fatalf("expected one event channel labelled Hack Night Chat, got %d %q", count, label)
		}
		if countNotes(o, "Joined the event!") != 2 || countNotes(o, "Event chat created: Hack Night") != 2 {
			t.Fatalf("unexpected notifications %+v", o.Snapshot().Notifications)
		}
		ev, ok := o.events.Find("e1")
		if !ok || !ev.HasAttendee("u1") {
			t.Fatalf("expected re-synced event to list u1, got %+v", ev)
		}
		if kinds := pub.kinds(); len(kinds) != 2 || kinds[0] != activity.KindEventJoined {
			t.Fatalf("expected two join activities, got %v", kinds)
		}
	})

	t.Run("backend failure queues an error and creates no channel", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		b.SetEvents(testfixtures.NewEventFixture(testfixtures.WithEventID("e1")).Record())
		signIn(t, o, b, "u1")
		_, _ = o.SyncEvents(ctx)
		b.Fail(testfixtures.OpJoinEvent, errors.New("503"))

		err := o.JoinEvent(ctx, "e1")
		if !errors.Is(err, ErrBackend) {
			t.Fatalf("expected ErrBackend, got %v", err)
		}
		if !hasNote(o, "Could not join event", model.SeverityError) {
			t.Fatalf("expected error notification, got %+v", o.Snapshot().Notifications)
		}
		if o.channels.Has("event-e1") {
			t.Fatal("expected no event channel after failure")
		}
	})
}

func TestOrchestrator_DeleteEvent(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, userID string) (*Orchestrator, *testfixtures.Backend) {
		t.Helper()
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		b.SetEvents(testfixtures.NewEventFixture(testfixtures.WithEventID("e2"), testfixtures.WithEventCreator("u1")).Record())
		signIn(t, o, b, userID)
		if _, err := o.SyncEvents(ctx); err != nil {
			t.Fatalf("sync: %v", err)
		}
		return o, b
	}

	t.Run("creator deletes and re-syncs", func(t *testing.T) {
		o, b := setup(t, "u1")

		if err := o.DeleteEvent(ctx, "e2"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if b.Count(testfixtures.OpDeleteEvent) != 1 || b.LastArg(testfixtures.OpDeleteEvent) != "e2" {
			t.Fatalf("expected one delete call for e2, got %+v", b.Calls())
		}
		if b.Count(testfixtures.OpListEvents) != 2 {
			t.Fatalf("expected a re-sync after delete, got %d list calls", b.Count(testfixtures.OpListEvents))
		}
		if events := o.Snapshot().Events; len(events) != 0 {
			t.Fatalf("expected empty event list, got %+v", events)
		}
		if !hasNote(o, "Event deleted successfully", model.SeveritySuccess) {
			t.Fatalf("expected success notification, got %+v", o.Snapshot().Notifications)
		}
	})

	t.Run("non-creator is denied without a backend call", func(t *testing.T) {
		o, b := setup(t, "u2")

		err := o.DeleteEvent(ctx, "e2")
		if !errors.Is(err, ErrAuthorizationDenied) {
			t.Fatalf("expected ErrAuthorizationDenied, got %v", err)
		}
		if b.Count(testfixtures.OpDeleteEvent) != 0 {
			t.Fatalf("expected no delete call, got %d", b.Count(testfixtures.OpDeleteEvent))
		}
		if !hasNote(o, "Only event creator can delete", model.SeverityError) {
			t.Fatalf("expected authorization notification, got %+v", o.Snapshot().Notifications)
		}
		if len(o.Snapshot().Events) != 1 {
			t.Fatal("expected event to remain")
		}
	})

	t.Run("unknown event", func(t *testing.T) {
		o, b := setup(t, "u1")

		if err := o.DeleteEvent(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if b.Count(testfixtures.OpDeleteEvent) != 0 {
			t.Fatal("expected no delete call")
		}
		if !hasNote(o, "Could not delete event", model.SeverityError) {
			t.Fatalf("expected error notification, got %+v", o.Snapshot().Notifications)
		}
	})
}

func TestOrchestrator_CreateEvent(t *testing.T) {
	ctx := context.Background()
	b := testfixtures.NewBackend()
	pub := &publisherStub{}
	o, clock := newOrchestrator(t, b, WithPublisher(pub))

	if err := o.CreateEvent(ctx, backend.EventDraft{Title: "Quiz"}); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	signIn(t, o, b, "u1")

	var vErr *ValidationError
	if err := o.CreateEvent(ctx, backend.EventDraft{Title: "   "}); !errors.As(err, &vErr) || vErr.FieldErrors["title"] == "" {
		t.Fatalf("expected title validation error, got %v", err)
	}
	if b.Count(testfixtures.OpCreateEvent) != 0 {
		t.Fatal("expected no create call for invalid draft")
	}

	if err := o.CreateEvent(ctx, backend.EventDraft{Title: " Quiz "}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.LastArg(testfixtures.OpCreateEvent) != "Quiz" {
		t.Fatalf("expected trimmed title, got %q", b.LastArg(testfixtures.OpCreateEvent))
	}
	events := o.Snapshot().Events
	if len(events) != 1 || events[0].Title != "Quiz" || events[0].CreatorID != "u1" {
		t.Fatalf("expected the created event after re-sync, got %+v", events)
	}
	if !events[0].StartTime.Equal(clock.Now()) {
		t.Fatalf("expected start time to default to now, got %v", events[0].StartTime)
	}
	if !hasNote(o, "Event created successfully", model.SeveritySuccess) {
		t.Fatalf("expected success notification, got %+v", o.Snapshot().Notifications)
	}
	if kinds := pub.kinds(); len(kinds) != 1 || kinds[0] != activity.KindEventCreated {
		t.Fatalf("expected event.created activity, got %v", kinds)
	}

	b.Fail(testfixtures.OpCreateEvent, errors.New("boom"))
	if err := o.CreateEvent(ctx, backend.EventDraft{Title: "Again"}); !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if !hasNote(o, "Failed to create event", model.SeverityError) {
		t.Fatal("expected failure notification")
	}
}

func TestOrchestrator_ToggleCheckIn(t *testing.T) {
	ctx := context.Background()

	t.Run("second toggle checks out", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		signIn(t, o, b, "u1")
		loc := testfixtures.NewLocationFixture(testfixtures.WithLocationID("lib"), testfixtures.WithLocationName("Library")).Model()

		if err := o.ToggleCheckIn(ctx, loc); err != nil {
			t.Fatalf("check in: %v", err)
		}
		snap := o.Snapshot()
		if snap.ActiveCheckIn == nil || snap.ActiveCheckIn.LocationID != "lib" || snap.ActiveCheckIn.SessionID != "session-1" {
			t.Fatalf("expected active session at lib, got %+v", snap.ActiveCheckIn)
		}
		if !hasNote(o, "Checked in to Library!", model.SeveritySuccess) {
			t.Fatal("expected check-in notification")
		}

		if err := o.ToggleCheckIn(ctx, loc); err != nil {
			t.Fatalf("check out: %v", err)
		}
		snap = o.Snapshot()
		if snap.ActiveCheckIn != nil || len(snap.JoinedLocations) != 0 {
			t.Fatalf("expected idle with empty joined set, got %+v %v", snap.ActiveCheckIn, snap.JoinedLocations)
		}
		if b.LastArg(testfixtures.OpCheckOut) != "session-1" {
			t.Fatalf("expected checkout of session-1, got %q", b.LastArg(testfixtures.OpCheckOut))
		}
		if !hasNote(o, "Checked out from Library", model.SeverityInfo) {
			t.Fatal("expected check-out notification")
		}
	})

	t.Run("failed check-out keeps the joined-set removal", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		signIn(t, o, b, "u1")
		loc := testfixtures.NewLocationFixture(testfixtures.WithLocationID("lib")).Model()
		if err := o.ToggleCheckIn(ctx, loc); err != nil {
			t.Fatalf("check in: %v", err)
		}

		b.Fail(testfixtures.OpCheckOut, errors.New("timeout"))
		if err := o.ToggleCheckIn(ctx, loc); !errors.Is(err, ErrBackend) {
			t.Fatalf("expected ErrBackend, got %v", err)
		}
		snap := o.Snapshot()
		if len(snap.JoinedLocations) != 0 {
			t.Fatalf("expected lib to stay removed from joined set, got %v", snap.JoinedLocations)
		}
		if snap.ActiveCheckIn == nil || snap.ActiveCheckIn.LocationID != "lib" {
			t.Fatalf("expected session to stay active, got %+v", snap.ActiveCheckIn)
		}
	})

	t.Run("failed check-in keeps the optimistic membership", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		signIn(t, o, b, "u1")
		b.Fail(testfixtures.OpCheckIn, errors.New("timeout"))
		loc := testfixtures.NewLocationFixture(testfixtures.WithLocationID("lab"), testfixtures.WithLocationName("Lab")).Model()

		if err := o.ToggleCheckIn(ctx, loc); !errors.Is(err, ErrBackend) {
			t.Fatalf("expected ErrBackend, got %v", err)
		}
		snap := o.Snapshot()
		if snap.ActiveCheckIn != nil {
			t.Fatalf("expected idle machine, got %+v", snap.ActiveCheckIn)
		}
		if len(snap.JoinedLocations) != 1 || snap.JoinedLocations[0] != "lab" {
			t.Fatalf("expected lab in joined set, got %v", snap.JoinedLocations)
		}
		if !hasNote(o, "Failed to check in to Lab", model.SeverityError) {
			t.Fatal("expected failure notification")
		}
	})

	t.Run("switching location checks out first", func(t *testing.T) {
		b := testfixtures.NewBackend()
		pub := &publisherStub{}
		o, _ := newOrchestrator(t, b, WithPublisher(pub))
		signIn(t, o, b, "u1")
		a := testfixtures.NewLocationFixture(testfixtures.WithLocationID("a")).Model()
		c := testfixtures.NewLocationFixture(testfixtures.WithLocationID("c")).Model()

		if err := o.ToggleCheckIn(ctx, a); err != nil {
			t.Fatalf("check in a: %v", err)
		}
		if err := o.ToggleCheckIn(ctx, c); err != nil {
			t.Fatalf("check in c: %v", err)
		}
		snap := o.Snapshot()
		if snap.ActiveCheckIn == nil || snap.ActiveCheckIn.LocationID != "c" {
			t.Fatalf("expected active session at c, got %+v", snap.ActiveCheckIn)
		}
		if len(snap.JoinedLocations) != 1 || snap.JoinedLocations[0] != "c" {
			t.Fatalf("expected only c joined, got %v", snap.JoinedLocations)
		}
		if b.LastArg(testfixtures.OpCheckOut) != "session-1" {
			t.Fatalf("expected checkout of the first session, got %q", b.LastArg(testfixtures.OpCheckOut))
		}
		want := []activity.Kind{activity.KindCheckIn, activity.KindCheckOut, activity.KindCheckIn}
		got := pub.kinds()
		if len(got) != len(want) {
			t.Fatalf("expected %v, got %v", want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected %v, got %v", want, got)
			}
		}
	})

	t.Run("switch aborts when the prior check-out fails", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		signIn(t, o, b, "u1")
		a := testfixtures.NewLocationFixture(testfixtures.WithLocationID("a")).Model()
		c := testfixtures.NewLocationFixture(testfixtures.WithLocationID("c")).Model()
		if err := o.ToggleCheckIn(ctx, a); err != nil {
			t.Fatalf("check in a: %v", err)
		}

		b.Fail(testfixtures.OpCheckOut, errors.New("timeout"))
		if err := o.ToggleCheckIn(ctx, c); !errors.Is(err, ErrBackend) {
			t.Fatalf("expected ErrBackend, got %v", err)
		}
		if b.Count(testfixtures.OpCheckIn) != 1 {
			t.Fatalf("expected no second check-in call, got %d", b.Count(testfixtures.OpCheckIn))
		}
		snap := o.Snapshot()
		if snap.ActiveCheckIn == nil || snap.ActiveCheckIn.LocationID != "a" {
			t.Fatalf("expected session to stay at a, got %+v", snap.ActiveCheckIn)
		}
		if len(snap.JoinedLocations) != 2 {
			t.Fatalf("expected both locations in joined set, got %v", snap.JoinedLocations)
		}
	})

	t.Run("overlapping check-ins leave one open session", func(t *testing.T) {
		b := testfixtures.NewBackend()
		pub := &publisherStub{}
		o, _ := newOrchestrator(t, b, WithPublisher(pub))
		signIn(t, o, b, "u1")
		a := testfixtures.NewLocationFixture(testfixtures.WithLocationID("a"), testfixtures.WithLocationName("Atrium")).Model()
		c := testfixtures.NewLocationFixture(testfixtures.WithLocationID("c"), testfixtures.WithLocationName("Cafe")).Model()

		var nestedErr error
		nested := false
		b.OnCall(func(op string) {
			if op == testfixtures.OpCheckIn && !nested {
				nested = true
				nestedErr = o.ToggleCheckIn(ctx, c)
			}
		})

		if err := o.ToggleCheckIn(ctx, a); err != nil {
			t.Fatalf("check in a: %v", err)
		}
		if nestedErr != nil {
			t.Fatalf("check in c: %v", nestedErr)
		}
		if b.Count(testfixtures.OpCheckIn) != 2 || b.Count(testfixtures.OpCheckOut) != 1 {
			t.Fatalf("expected two check-ins and one check-out, got %+v", b.Calls())
		}
		if b.LastArg(testfixtures.OpCheckOut) != "session-1" {
			t.Fatalf("expected displaced session-1 to be closed, got %q", b.LastArg(testfixtures.OpCheckOut))
		}
		snap := o.Snapshot()
		if snap.ActiveCheckIn == nil || snap.ActiveCheckIn.SessionID != "session-2" || snap.ActiveCheckIn.LocationID != "a" {
			t.Fatalf("expected session-2 active at a, got %+v", snap.ActiveCheckIn)
		}
		if len(snap.JoinedLocations) != 1 || snap.JoinedLocations[0] != "a" {
			t.Fatalf("expected only a joined, got %v", snap.JoinedLocations)
		}
		if got := pub.kinds(); len(got) != 3 || got[2] != activity.KindCheckOut {
			t.Fatalf("expected check-out activity for the displaced session, got %v", got)
		}
	})

	t.Run("failed close of a displaced session is reported", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		signIn(t, o, b, "u1")
		a := testfixtures.NewLocationFixture(testfixtures.WithLocationID("a")).Model()
		c := testfixtures.NewLocationFixture(testfixtures.WithLocationID("c"), testfixtures.WithLocationName("Cafe")).Model()
		b.Fail(testfixtures.OpCheckOut, errors.New("timeout"))

		nested := false
		b.OnCall(func(op string) {
			if op == testfixtures.OpCheckIn && !nested {
				nested = true
				_ = o.ToggleCheckIn(ctx, c)
			}
		})

		if err := o.ToggleCheckIn(ctx, a); err != nil {
			t.Fatalf("check in a: %v", err)
		}
		if !hasNote(o, "Could not check out from Cafe", model.SeverityError) {
			t.Fatalf("expected error notification, got %+v", o.Snapshot().Notifications)
		}
		snap := o.Snapshot()
		if snap.ActiveCheckIn == nil || snap.ActiveCheckIn.LocationID != "a" {
			t.Fatalf("expected session at a, got %+v", snap.ActiveCheckIn)
		}
	})

	t.Run("check-out response after sign-out is dropped", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		signIn(t, o, b, "u1")
		loc := testfixtures.NewLocationFixture(testfixtures.WithLocationID("lib")).Model()
		if err := o.ToggleCheckIn(ctx, loc); err != nil {
			t.Fatalf("check in: %v", err)
		}
		b.OnCall(func(op string) {
			if op == testfixtures.OpCheckOut {
				o.applySession(nil)
			}
		})

		if err := o.ToggleCheckIn(ctx, loc); !errors.Is(err, ErrStaleResponse) {
			t.Fatalf("expected ErrStaleResponse, got %v", err)
		}
		snap := o.Snapshot()
		if snap.ActiveCheckIn != nil || len(snap.JoinedLocations) != 0 {
			t.Fatalf("expected cleared session state, got %+v %v", snap.ActiveCheckIn, snap.JoinedLocations)
		}
	})

	t.Run("response after sign-out is dropped", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		signIn(t, o, b, "u1")
		b.OnCall(func(op string) {
			if op == testfixtures.OpCheckIn {
				o.applySession(nil)
			}
		})

		err := o.ToggleCheckIn(ctx, testfixtures.NewLocationFixture().Model())
		if !errors.Is(err, ErrStaleResponse) {
			t.Fatalf("expected ErrStaleResponse, got %v", err)
		}
		snap := o.Snapshot()
		if snap.ActiveCheckIn != nil || snap.User != nil {
			t.Fatalf("expected signed-out idle state, got %+v", snap)
		}
		for _, n := range snap.Notifications {
			if n.Severity == model.SeverityError {
				t.Fatalf("expected no error notification, got %+v", n)
			}
		}
	})

	t.Run("signed out", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		if err := o.ToggleCheckIn(ctx, testfixtures.NewLocationFixture().Model()); !errors.Is(err, ErrAuthRequired) {
			t.Fatalf("expected ErrAuthRequired, got %v", err)
		}
		if len(o.Snapshot().JoinedLocations) != 0 {
			t.Fatal("expected joined set to stay empty")
		}
	})
}

func TestOrchestrator_Channels(t *testing.T) {
	ctx := context.Background()
	b := testfixtures.NewBackend()
	o, clock := newOrchestrator(t, b)
	signIn(t, o, b, "u1")

	if err := o.MessagePerson(ctx, model.Member{ID: "u1", Name: "Me"}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for self, got %v", err)
	}
	if err := o.MessagePerson(ctx, model.Member{}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for empty id, got %v", err)
	}
	if err := o.OpenEventChat(ctx, model.Event{Title: "No id"}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for event without id, got %v", err)
	}

	if err := o.MessagePerson(ctx, model.Member{ID: "u2", Name: "Bob"}); err != nil {
		t.Fatalf("message: %v", err)
	}
	if err := o.MessagePerson(ctx, model.Member{ID: "u2", Name: "Robert"}); err != nil {
		t.Fatalf("message again: %v", err)
	}
	snap := o.Snapshot()
	if snap.ActiveChannel != "dm-u2" || snap.Surface != model.SurfaceChat {
		t.Fatalf("expected dm-u2 on chat surface, got %s/%s", snap.ActiveChannel, snap.Surface)
	}
	if label, _ := o.channels.Label("dm-u2"); label != "Bob" {
		t.Fatalf("expected first label to win, got %q", label)
	}
	if len(snap.Channels) != len(DefaultChannels)+1 {
		t.Fatalf("expected one derived channel, got %+v", snap.Channels)
	}

	if err := o.OpenEventChat(ctx, model.Event{ID: "e9", Title: "Demo Day"}); err != nil {
		t.Fatalf("open event chat: %v", err)
	}
	if o.Snapshot().ActiveChannel != "event-e9" {
		t.Fatal("expected event channel to be active")
	}

	if err := o.LeaveChannel(ctx, "global"); !errors.Is(err, ErrChannelNotLeavable) {
		t.Fatalf("expected ErrChannelNotLeavable, got %v", err)
	}
	if len(o.Snapshot().Channels) != len(DefaultChannels)+2 {
		t.Fatal("expected registry unchanged after leaving a static channel")
	}

	if err := o.LeaveChannel(ctx, "event-e9"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := o.Snapshot().ActiveChannel; got != "global" {
		t.Fatalf("expected fallback to global, got %s", got)
	}
	if !hasNote(o, `Left "Demo Day Chat"`, model.SeverityInfo) {
		t.Fatalf("expected leave notification, got %+v", o.Snapshot().Notifications)
	}

	if err := o.SelectChannel("dm-u2"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := o.SelectChannel("event-e9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a left channel, got %v", err)
	}
	if err := o.SetSurface("inbox"); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget for unknown surface, got %v", err)
	}

	clock.Advance(notify.DefaultTTL)
	if notes := o.Snapshot().Notifications; len(notes) != 0 {
		t.Fatalf("expected notifications to expire, got %+v", notes)
	}
}

func TestOrchestrator_Account(t *testing.T) {
	ctx := context.Background()

	t.Run("sign in loads profile and stats", func(t *testing.T) {
		b := testfixtures.NewBackend()
		b.SetStats(testfixtures.StatsRecord(4, 180, 2, 1))
		o, _ := newOrchestrator(t, b)
		signIn(t, o, b, "u1")

		snap := o.Snapshot()
		if snap.User == nil || snap.User.ID != "u1" {
			t.Fatalf("expected user u1, got %+v", snap.User)
		}
		if snap.Stats == nil || snap.Stats.StudyMinutes != 180 || snap.Stats.Streak != 2 {
			t.Fatalf("unexpected stats %+v", snap.Stats)
		}
		if !hasNote(o, "Welcome, u1!", model.SeveritySuccess) {
			t.Fatalf("expected welcome notification, got %+v", snap.Notifications)
		}
		if o.UserID() != "u1" {
			t.Fatalf("expected UserID u1, got %q", o.UserID())
		}
	})

	t.Run("invalid credentials", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		err := o.SignIn(ctx, "nobody@example.com", "pw")
		if !errors.Is(err, backend.ErrInvalidCredentials) || !errors.Is(err, ErrBackend) {
			t.Fatalf("expected invalid credentials backend error, got %v", err)
		}
		if !hasNote(o, "Invalid email or password", model.SeverityError) {
			t.Fatal("expected credentials notification")
		}
		var vErr *ValidationError
		if err := o.SignIn(ctx, "", ""); !errors.As(err, &vErr) || len(vErr.FieldErrors) != 2 {
			t.Fatalf("expected two field errors, got %v", err)
		}
	})

	t.Run("logout keeps shared data", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		b.SetEvents(testfixtures.NewEventFixture().Record())
		b.SetLocations(testfixtures.NewLocationFixture().Record())
		signIn(t, o, b, "u1")
		if err := o.RefreshLocations(ctx); err != nil {
			t.Fatalf("locations: %v", err)
		}
		if _, err := o.SyncEvents(ctx); err != nil {
			t.Fatalf("sync: %v", err)
		}
		if err := o.ToggleCheckIn(ctx, testfixtures.NewLocationFixture().Model()); err != nil {
			t.Fatalf("check in: %v", err)
		}
		if err := o.MessagePerson(ctx, model.Member{ID: "u2", Name: "Bob"}); err != nil {
			t.Fatalf("message: %v", err)
		}

		if err := o.Logout(ctx); err != nil {
			t.Fatalf("logout: %v", err)
		}
		snap := o.Snapshot()
		if snap.User != nil || snap.Stats != nil || snap.ActiveCheckIn != nil || len(snap.JoinedLocations) != 0 {
			t.Fatalf("expected user state cleared, got %+v", snap)
		}
		if len(snap.Events) != 1 || len(snap.Locations) != 1 || len(snap.Channels) != len(DefaultChannels)+1 {
			t.Fatalf("expected shared data kept, got %+v", snap)
		}
		if !hasNote(o, "Signed out safely", model.SeverityInfo) {
			t.Fatal("expected sign-out notification")
		}
		if err := o.Logout(ctx); !errors.Is(err, ErrAuthRequired) {
			t.Fatalf("expected ErrAuthRequired when already signed out, got %v", err)
		}
	})

	t.Run("logout failure keeps the session", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		signIn(t, o, b, "u1")
		b.Fail(testfixtures.OpLogout, errors.New("offline"))

		if err := o.Logout(ctx); !errors.Is(err, ErrBackend) {
			t.Fatalf("expected ErrBackend, got %v", err)
		}
		if o.UserID() != "u1" || !hasNote(o, "Failed to sign out", model.SeverityError) {
			t.Fatal("expected session kept with an error notification")
		}
	})

	t.Run("update profile", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, _ := newOrchestrator(t, b)
		signIn(t, o, b, "u1")

		var vErr *ValidationError
		if err := o.UpdateProfile(ctx, backend.SettingsPayload{}); !errors.As(err, &vErr) {
			t.Fatalf("expected validation error for empty payload, got %v", err)
		}
		blank := "  "
		if err := o.UpdateProfile(ctx, backend.SettingsPayload{Username: &blank}); !errors.As(err, &vErr) {
			t.Fatalf("expected validation error for blank username, got %v", err)
		}

		name := "ada"
		if err := o.UpdateProfile(ctx, backend.SettingsPayload{Username: &name}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if snap := o.Snapshot(); snap.User == nil || snap.User.Username != "ada" {
			t.Fatalf("expected username ada, got %+v", snap.User)
		}
		if !hasNote(o, "Profile updated!", model.SeveritySuccess) {
			t.Fatal("expected profile notification")
		}

		b.Fail(testfixtures.OpUpdateSettings, errors.New("500"))
		if err := o.UpdateProfile(ctx, backend.SettingsPayload{Username: &name}); !errors.Is(err, ErrBackend) {
			t.Fatalf("expected ErrBackend, got %v", err)
		}
		if !hasNote(o, "Failed to update profile", model.SeverityError) {
			t.Fatal("expected failure notification")
		}
	})
}

func TestOrchestrator_SyncEvents(t *testing.T) {
	ctx := context.Background()
	b := testfixtures.NewBackend()
	o, _ := newOrchestrator(t, b)
	b.SetEvents(testfixtures.NewEventFixture().Record(), testfixtures.NewEventFixture().Record())

	if _, err := o.SyncEvents(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	b.Fail(testfixtures.OpListEvents, errors.New("offline"))
	if _, err := o.SyncEvents(ctx); !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	snap := o.Snapshot()
	if len(snap.Events) != 2 {
		t.Fatalf("expected previous list kept, got %d events", len(snap.Events))
	}
	if len(snap.Notifications) != 0 {
		t.Fatalf("expected sync failures to stay silent, got %+v", snap.Notifications)
	}

	b.Succeed(testfixtures.OpListEvents)
	b.SetEvents()
	if _, err := o.SyncEvents(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(o.Snapshot().Events) != 0 {
		t.Fatal("expected empty list to replace the previous one")
	}
}

func TestOrchestrator_Lifecycle(t *testing.T) {
	t.Run("follows the auth stream", func(t *testing.T) {
		b := testfixtures.NewBackend()
		b.SetLocations(testfixtures.NewLocationFixture().Record())
		b.SetEvents(testfixtures.NewEventFixture().Record())
		b.SignInAs("u1")
		o, clock := newOrchestrator(t, b, WithSyncInterval(time.Minute))

		if err := o.Start(context.Background()); err != nil {
			t.Fatalf("start: %v", err)
		}
		if err := o.Start(context.Background()); err != nil {
			t.Fatalf("second start: %v", err)
		}
		waitFor(t, "profile load", func() bool { return o.Snapshot().User != nil })
		snap := o.Snapshot()
		if len(snap.Locations) != 1 || len(snap.Events) != 1 {
			t.Fatalf("expected initial load, got %+v", snap)
		}

		clock.Advance(time.Minute)
		if n := b.Count(testfixtures.OpListEvents); n != 2 {
			t.Fatalf("expected a scheduled tick, got %d list calls", n)
		}

		b.SignOut()
		waitFor(t, "sign-out", func() bool { return o.Snapshot().User == nil })
		if len(o.Snapshot().Events) != 1 {
			t.Fatal("expected events kept across sign-out")
		}

		o.Close()
		if err := o.JoinEvent(context.Background(), "e1"); !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
		if err := o.Start(context.Background()); !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed from Start, got %v", err)
		}
		clock.Advance(time.Minute)
		if n := b.Count(testfixtures.OpListEvents); n != 2 {
			t.Fatalf("expected no ticks after Close, got %d list calls", n)
		}
	})

	t.Run("close during start leaves no sync loop", func(t *testing.T) {
		b := testfixtures.NewBackend()
		o, clock := newOrchestrator(t, b, WithSyncInterval(time.Minute))
		b.OnCall(func(op string) {
			if op == testfixtures.OpListLocations {
				o.Close()
			}
		})

		if err := o.Start(context.Background()); !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
		if o.events.Running() {
			t.Fatal("expected sync loop to be stopped")
		}
		clock.Advance(2 * time.Minute)
		if n := b.Count(testfixtures.OpListEvents); n != 0 {
			t.Fatalf("expected no event syncs after Close, got %d", n)
		}
	})

	t.Run("subscribers are signalled and closed", func(t *testing.T) {
		o, _ := newOrchestrator(t, testfixtures.NewBackend())
		ch, cancel := o.Subscribe()
		defer cancel()

		if err := o.SetSurface(model.SurfaceMap); err != nil {
			t.Fatalf("set surface: %v", err)
		}
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("expected a change signal")
		}

		done := make(chan struct{})
		go func() {
			for range ch {
			}
			close(done)
		}()
		o.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("expected subscriber channel to close")
		}
	})
}
