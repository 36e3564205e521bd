package backend

import (
	"context"
	"sync"
)

// SessionHub fans the current session out to watchers. Each watcher sees the
// latest value; intermediate values may be skipped when a watcher is slow.
type SessionHub struct {
	mu      sync.Mutex
	current *Session
	subs    map[chan *Session]struct{}
}

// NewSessionHub returns an empty, signed-out hub.
func NewSessionHub() *SessionHub {
	return &SessionHub{subs: make(map[chan *Session]struct{})}
}

// Current returns the current session or nil.
func (h *SessionHub) Current() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Set replaces the current session and notifies every watcher.
func (h *SessionHub) Set(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = s
	for ch := range h.subs {
		offer(ch, s)
	}
}

// Watch registers a watcher. The current value is delivered first and the
// channel is closed once ctx ends.
func (h *SessionHub) Watch(ctx context.Context) <-chan *Session {
	ch := make(chan *Session, 1)

	h.mu.Lock()
	ch <- h.current
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

func offer(ch chan *Session, s *Session) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
