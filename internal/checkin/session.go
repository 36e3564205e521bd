// Package checkin tracks the user's physical presence as two independent
// pieces of state: the locally joined set, updated optimistically, and the
// backend-confirmed session slot.
//
// The two are allowed to diverge. A toggle flips the joined set immediately,
// while the Machine only moves once the backend answers, and a failed call is
// not rolled back. They converge again on the next successful confirmation.
package checkin

import (
	"sort"
	"sync"

	"github.com/example/campus-presence/internal/model"
)

// State is the session machine state.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Machine is the single-slot confirmed session.
type Machine struct {
	mu      sync.RWMutex
	current *model.CheckIn
}

// NewMachine returns an idle machine.
func NewMachine() *Machine {
	return &Machine{}
}

// State reports Idle or Active.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Idle
	}
	return Active
}

// Active returns the tracked session.
func (m *Machine) Active() (model.CheckIn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return model.CheckIn{}, false
	}
	return *m.current, true
}

// Begin records a confirmed session. When the slot was already occupied the
// previous session is returned with true; the slot still holds at most one.
func (m *Machine) Begin(session model.CheckIn) (model.CheckIn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var prior model.CheckIn
	hadPrior := m.current != nil
	if hadPrior {
		prior = *m.current
	}
	m.current = &session
	return prior, hadPrior
}

// End returns the machine to Idle when the tracked session is at
// locationID. Any other location leaves the machine untouched.
func (m *Machine) End(locationID string) (model.CheckIn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.LocationID != locationID {
		return model.CheckIn{}, false
	}
	ended := *m.current
	m.current = nil
	return ended, true
}

// EndSession is End keyed by backend session id.
func (m *Machine) EndSession(sessionID string) (model.CheckIn, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.SessionID != sessionID {
		return model.CheckIn{}, false
	}
	ended := *m.current
	m.current = nil
	return ended, true
}

// Reset forces the machine to Idle.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
}

// JoinedSet is the set of locations the user believes they are checked into.
type JoinedSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewJoinedSet returns an empty set.
func NewJoinedSet() *JoinedSet {
	return &JoinedSet{ids: make(map[string]struct{})}
}

// Toggle flips membership of locationID and reports whether it is now joined.
func (s *JoinedSet) Toggle(locationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[locationID]; ok {
		delete(s.ids, locationID)
		return false
	}
	s.ids[locationID] = struct{}{}
	return true
}

// Add marks locationID as joined.
func (s *JoinedSet) Add(locationID string) {
	s.mu.Lock()
	s.ids[locationID] = struct{}{}
	s.mu.Unlock()
}

// Remove drops locationID.
func (s *JoinedSet) Remove(locationID string) {
	s.mu.Lock()
	delete(s.ids, locationID)
	s.mu.Unlock()
}

// Has reports membership.
func (s *JoinedSet) Has(locationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[locationID]
	return ok
}

// List returns the joined ids in sorted order.
func (s *JoinedSet) List() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Reset empties the set.
func (s *JoinedSet) Reset() {
	s.mu.Lock()
	s.ids = make(map[string]struct{})
	s.mu.Unlock()
}
