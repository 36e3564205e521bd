// Package notify holds short-lived user-facing notifications that expire on
// their own after a fixed display duration.
package notify

import (
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/example/campus-presence/internal/clock"
	"github.com/example/campus-presence/internal/model"
)

// DefaultTTL is how long a notification stays visible.
const DefaultTTL = 4 * time.Second

// Queue stores notifications in insertion order. Every Push schedules the
// matching Expire on the injected clock.
type Queue struct {
	mu       sync.Mutex
	clock    clock.Clock
	ttl      time.Duration
	entropy  io.Reader
	items    []model.Notification
	timers   map[string]clock.Timer
	onChange func()
	closed   bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the clock used for timestamps and expiry.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithTTL overrides the display duration.
func WithTTL(ttl time.Duration) Option {
	return func(q *Queue) {
		if ttl > 0 {
			q.ttl = ttl
		}
	}
}

// WithEntropy overrides the randomness used for identifiers.
func WithEntropy(r io.Reader) Option {
	return func(q *Queue) { q.entropy = r }
}

// NewQueue constructs an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		ttl:    DefaultTTL,
		timers: make(map[string]clock.Timer),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.clock = clock.OrSystem(q.clock)
	if q.entropy == nil {
		q.entropy = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	q.entropy = ulid.Monotonic(q.entropy, 0)
	return q
}

// OnChange registers a callback invoked after every mutation.
func (q *Queue) OnChange(fn func()) {
	q.mu.Lock()
	q.onChange = fn
	q.mu.Unlock()
}

// Push appends a notification and schedules its expiry.
func (q *Queue) Push(message string, severity model.Severity) string {
	q.mu.Lock()
	now := q.clock.Now()
	id := ulid.MustNew(ulid.Timestamp(now), q.entropy).String()
	q.items = append(q.items, model.Notification{
		ID:        id,
		Message:   message,
		Severity:  severity,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	})
	if !q.closed {
		q.timers[id] = q.clock.AfterFunc(q.ttl, func() { q.Expire(id) })
	}
	notify := q.onChange
	q.mu.Unlock()

	if notify != nil {
		notify()
	}
	return id
}

// Expire removes the notification with the given id. Removing an absent id
// is a no-op and reports false.
func (q *Queue) Expire(id string) bool {
	q.mu.Lock()
	idx := -1
	for i, n := range q.items {
		if n.ID == id {
			idx = i
			break
		}
	}
	if t, ok := q.timers[id]; ok {
		t.Stop()
		delete(q.timers, id)
	}
	if idx < 0 {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	notify := q.onChange
	q.mu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

// List returns a copy of the live notifications, oldest first.
func (q *Queue) List() []model.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Notification, len(q.items))
	copy(out, q.items)
	return out
}

// Len reports the number of live notifications.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close cancels every pending expiry. Notifications pushed afterwards are
// kept until expired explicitly.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
}
