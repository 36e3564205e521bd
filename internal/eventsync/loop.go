// Package eventsync periodically refreshes the shared event list, replacing
// local state wholesale on every successful tick.
package eventsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/campus-presence/internal/clock"
	"github.com/example/campus-presence/internal/model"
)

// DefaultInterval is the time between scheduled ticks.
const DefaultInterval = 30 * time.Second

// ErrNoSource is returned by Tick when the loop was built without a source.
var ErrNoSource = errors.New("eventsync: source not configured")

// Source fetches the current, already normalised, event list.
type Source interface {
	FetchEvents(ctx context.Context) ([]model.Event, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]model.Event, error)

// FetchEvents calls f.
func (f SourceFunc) FetchEvents(ctx context.Context) ([]model.Event, error) {
	return f(ctx)
}

// SnapshotStore persists the last good event list between runs.
type SnapshotStore interface {
	LoadEvents(ctx context.Context) ([]model.Event, bool, error)
	SaveEvents(ctx context.Context, events []model.Event) error
}

// Loop owns the event list and the refresh timer.
type Loop struct {
	source   Source
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
	store    SnapshotStore

	tickMu sync.Mutex

	mu         sync.RWMutex
	events     []model.Event
	lastSynced time.Time
	lastErr    error
	onChange   func([]model.Event)
	running    bool
	gen        uint64
	timer      clock.Timer
	ctx        context.Context
	cancel     context.CancelFunc
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock overrides the scheduling clock.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithInterval overrides the tick interval.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithSnapshotStore enables seeding from and saving to store.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(l *Loop) { l.store = store }
}

// New constructs a stopped loop.
func New(source Source, opts ...Option) *Loop {
	l := &Loop{source: source, interval: DefaultInterval}
	for _, opt := range opts {
		opt(l)
	}
	l.clock = clock.OrSystem(l.clock)
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "eventsync")
	return l
}

// OnChange registers a callback invoked with a copy of the list after every
// replacement.
func (l *Loop) OnChange(fn func([]model.Event)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Start seeds the list from the snapshot store when one is configured, runs
// one tick immediately and schedules the rest. Calling Start on a running
// loop does nothing.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.gen++
	l.ctx, l.cancel = context.WithCancel(ctx)
	runCtx := l.ctx
	l.mu.Unlock()

	l.seed(runCtx)
	_, _ = l.Tick(runCtx)

	l.mu.Lock()
	l.scheduleLocked()
	l.mu.Unlock()
}

// Stop cancels the timer and any tick it started. It is safe to call more
// than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	l.running = false
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.cancel != nil {
		l.cancel()
	}
}

// Running reports whether the timer is armed.
func (l *Loop) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// Tick fetches the list and replaces local state on success. A failed tick
// keeps the previous list. Ticks never overlap: concurrent callers wait.
func (l *Loop) Tick(ctx context.Context) ([]model.Event, error) {
	l.tickMu.Lock()
	defer l.tickMu.Unlock()
	return l.tickLocked(ctx)
}

// Events returns a copy of the current list.
func (l *Loop) Events() []model.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneEvents(l.events)
}

// Find returns the event with id from the current list.
func (l *Loop) Find(id string) (model.Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.events {
		if e.ID == id {
			return cloneEvent(e), true
		}
	}
	return model.Event{}, false
}

// LastSyncedAt is the time of the last successful tick.
func (l *Loop) LastSyncedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastSynced
}

// LastError is the error of the most recent tick, nil after a success.
func (l *Loop) LastError() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastErr
}

func (l *Loop) tickLocked(ctx context.Context) ([]model.Event, error) {
	if l.source == nil {
		return nil, ErrNoSource
	}
	events, err := l.source.FetchEvents(ctx)
	if err != nil {
		l.mu.Lock()
		l.lastErr = err
		l.mu.Unlock()
		l.logger.WarnContext(ctx, "event sync failed", "error", err)
		return nil, err
	}

	l.replace(events)
	l.mu.Lock()
	l.lastErr = nil
	l.lastSynced = l.clock.Now()
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.SaveEvents(ctx, events); err != nil {
			l.logger.WarnContext(ctx, "failed to save event snapshot", "error", err)
		}
	}
	l.logger.DebugContext(ctx, "events synced", "result_count", len(events))
	return cloneEvents(events), nil
}

func (l *Loop) replace(events []model.Event) {
	l.mu.Lock()
	l.events = cloneEvents(events)
	fn := l.onChange
	snapshot := cloneEvents(l.events)
	l.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

func (l *Loop) seed(ctx context.Context) {
	if l.store == nil {
		return
	}
	events, ok, err := l.store.LoadEvents(ctx)
	if err != nil {
		l.logger.WarnContext(ctx, "failed to load event snapshot", "error", err)
		return
	}
	if !ok {
		return
	}
	l.replace(events)
	l.logger.InfoContext(ctx, "seeded events from snapshot", "result_count", len(events))
}

func (l *Loop) scheduleLocked() {
	if !l.running {
		return
	}
	gen := l.gen
	l.timer = l.clock.AfterFunc(l.interval, func() { l.fire(gen) })
}

// fire runs on the timer. The next firing is armed before the tick so the
// cadence stays fixed; a firing that finds a tick still outstanding is
// skipped.
func (l *Loop) fire(gen uint64) {
	l.mu.Lock()
	if !l.running || gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.scheduleLocked()
	ctx := l.ctx
	l.mu.Unlock()

	if !l.tickMu.TryLock() {
		l.logger.DebugContext(ctx, "skipping tick, previous tick outstanding")
		return
	}
	defer l.tickMu.Unlock()
	_, _ = l.tickLocked(ctx)
}

func cloneEvents(events []model.Event) []model.Event {
	if events == nil {
		return []model.Event{}
	}
	out := make([]model.Event, len(events))
	for i, e := range events {
		out[i] = cloneEvent(e)
	}
	return out
}

func cloneEvent(e model.Event) model.Event {
	if e.Attendees != nil {
		e.Attendees = append([]string(nil), e.Attendees...)
	}
	return e
}
