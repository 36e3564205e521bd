package testfixtures

import (
	"context"
	"sync"

	"github.com/example/campus-presence/internal/backend"
)

// Operation names recorded by Backend.
const (
	OpSignIn         = "auth.signin"
	OpLogout         = "auth.logout"
	OpGetProfile     = "users.profile"
	OpGetStats       = "users.stats"
	OpUpdateSettings = "users.update_settings"
	OpCheckIn        = "checkins.checkin"
	OpCheckOut       = "checkins.checkout"
	OpListEvents     = "events.list"
	OpCreateEvent    = "events.create"
	OpJoinEvent      = "events.join"
	OpDeleteEvent    = "events.delete"
	OpListLocations  = "locations.list"
)

// Call is one recorded backend call.
type Call struct {
	Op  string
	Arg string
}

type account struct {
	record   backend.UserRecord
	password string
}

// Backend is an in-memory backend.Client for orchestrator tests. It keeps
// just enough state for the calls to be meaningful, records every call and
// can be told to fail any operation.
type Backend struct {
	hub *backend.SessionHub
	ids *IDGenerator

	mu        sync.Mutex
	calls     []Call
	failures  map[string]error
	hook      func(op string)
	accounts  map[string]account
	stats     backend.StatsRecord
	events    []backend.EventRecord
	locations []backend.LocationRecord
}

var _ backend.Client = (*Backend)(nil)

// NewBackend returns an empty, signed-out backend.
func NewBackend() *Backend {
	return &Backend{
		hub:      backend.NewSessionHub(),
		ids:      NewIDGenerator("session"),
		failures: make(map[string]error),
		accounts: make(map[string]account),
		stats:    StatsRecord(0, 0, 0, 0),
	}
}

func (b *Backend) Auth() backend.AuthService { return stubAuth{b} }
func (b *Backend) Users() backend.UserService { return stubUsers{b} }
func (b *Backend) CheckIns() backend.CheckInService { return stubCheckIns{b} }
func (b *Backend) Events() backend.EventService { return stubEvents{b} }
func (b *Backend) Locations() backend.LocationService { return stubLocations{b} }

// AddAccount registers an account that SignIn accepts.
func (b *Backend) AddAccount(rec backend.UserRecord, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[rec.Email] = account{record: rec, password: password}
}

// SignInAs pushes a session for userID onto the auth stream, as if the user
// had signed in elsewhere.
func (b *Backend) SignInAs(userID string) {
	b.mu.Lock()
	if _, ok := b.findLocked(userID); !ok {
		rec := UserRecord(userID, userID)
		b.accounts[rec.Email] = account{record: rec}
	}
	b.mu.Unlock()
	b.hub.Set(&backend.Session{UserID: userID, AccessToken: "token-" + userID})
}

// SignOut pushes a signed-out state onto the auth stream.
func (b *Backend) SignOut() {
	b.hub.Set(nil)
}

// SetStats replaces the stats returned by GetStats.
func (b *Backend) SetStats(rec backend.StatsRecord) {
	b.mu.Lock()
	b.stats = rec
	b.mu.Unlock()
}

// SetEvents replaces the stored events.
func (b *Backend) SetEvents(records ...backend.EventRecord) {
	b.mu.Lock()
	b.events = append([]backend.EventRecord(nil), records...)
	b.mu.Unlock()
}

// SetLocations replaces the stored locations.
func (b *Backend) SetLocations(records ...backend.LocationRecord) {
	b.mu.Lock()
	b.locations = append([]backend.LocationRecord(nil), records...)
	b.mu.Unlock()
}

// Fail makes op return err until Succeed is called.
func (b *Backend) Fail(op string, err error) {
	b.mu.Lock()
	b.failures[op] = err
	b.mu.Unlock()
}

// Succeed clears a failure set by Fail.
func (b *Backend) Succeed(op string) {
	b.mu.Lock()
	delete(b.failures, op)
	b.mu.Unlock()
}

// OnCall registers a hook run after a call is recorded and before it
// returns. Hooks may change the auth state to simulate responses that
// arrive late.
func (b *Backend) OnCall(hook func(op string)) {
	b.mu.Lock()
	b.hook = hook
	b.mu.Unlock()
}

// Calls returns every recorded call in order.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// Count reports how many times op was called.
func (b *Backend) Count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// LastArg returns the argument of the most recent call to op.
func (b *Backend) LastArg(op string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.calls) - 1; i >= 0; i-- {
		if b.calls[i].Op == op {
			return b.calls[i].Arg
		}
	}
	return ""
}

func (b *Backend) record(op, arg string) error {
	b.mu.Lock()
	b.calls = append(b.calls, Call{Op: op, Arg: arg})
	err := b.failures[op]
	hook := b.hook
	b.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	return err
}

func (b *Backend) currentUser() (string, error) {
	s := b.hub.Current()
	if s == nil {
		return "", backend.ErrUnauthenticated
	}
	return s.UserID, nil
}

func (b *Backend) findLocked(userID string) (backend.UserRecord, bool) {
	for _, acc := range b.accounts {
		if acc.record.ID.String() == userID {
			return acc.record, true
		}
	}
	return backend.UserRecord{}, false
}

type stubAuth struct{ b *Backend }

func (s stubAuth) SignIn(_ context.Context, email, password string) (*backend.Session, error) {
	if err := s.b.record(OpSignIn, email); err != nil {
		return nil, err
	}
	s.b.mu.Lock()
	acc, ok := s.b.accounts[email]
	s.b.mu.Unlock()
	if !ok || acc.password != password {
		return nil, backend.ErrInvalidCredentials
	}
	session := &backend.Session{UserID: acc.record.ID.String(), AccessToken: "token-" + acc.record.ID.String()}
	s.b.hub.Set(session)
	return session, nil
}

func (s stubAuth) Logout(_ context.Context) error {
	if err := s.b.record(OpLogout, ""); err != nil {
		return err
	}
	s.b.hub.Set(nil)
	return nil
}

func (s stubAuth) Watch(ctx context.Context) <-chan *backend.Session {
	return s.b.hub.Watch(ctx)
}

type stubUsers struct{ b *Backend }

func (s stubUsers) GetProfile(_ context.Context) (backend.UserRecord, error) {
	if err := s.b.record(OpGetProfile, ""); err != nil {
		return backend.UserRecord{}, err
	}
	uid, err := s.b.currentUser()
	if err != nil {
		return backend.UserRecord{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	rec, ok := s.b.findLocked(uid)
	if !ok {
		return backend.UserRecord{}, backend.ErrNotFound
	}
	return rec, nil
}

func (s stubUsers) GetStats(_ context.Context) (backend.StatsRecord, error) {
	if err := s.b.record(OpGetStats, ""); err != nil {
		return backend.StatsRecord{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.b.stats, nil
}

func (s stubUsers) UpdateSettings(_ context.Context, payload backend.SettingsPayload) (backend.UserRecord, error) {
	if err := s.b.record(OpUpdateSettings, ""); err != nil {
		return backend.UserRecord{}, err
	}
	uid, err := s.b.currentUser()
	if err != nil {
		return backend.UserRecord{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for email, acc := range s.b.accounts {
		if acc.record.ID.String() != uid {
			continue
		}
		if payload.Username != nil {
			acc.record.Username = *payload.Username
		}
		if payload.FullName != nil {
			acc.record.FullName = *payload.FullName
		}
		if payload.AvatarURL != nil {
			acc.record.AvatarURL = *payload.AvatarURL
		}
		s.b.accounts[email] = acc
		return acc.record, nil
	}
	return backend.UserRecord{}, backend.ErrNotFound
}

type stubCheckIns struct{ b *Backend }

func (s stubCheckIns) CheckIn(_ context.Context, req backend.CheckInRequest) (backend.CheckInReceipt, error) {
	if err := s.b.record(OpCheckIn, req.LocationID); err != nil {
		return backend.CheckInReceipt{}, err
	}
	return backend.CheckInReceipt{ID: backend.FlexString(s.b.ids.Next())}, nil
}

func (s stubCheckIns) CheckOut(_ context.Context, sessionID string) error {
	return s.b.record(OpCheckOut, sessionID)
}

type stubEvents struct{ b *Backend }

func (s stubEvents) GetAll(_ context.Context) ([]backend.EventRecord, error) {
	if err := s.b.record(OpListEvents, ""); err != nil {
		return nil, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return append([]backend.EventRecord(nil), s.b.events...), nil
}

func (s stubEvents) Create(_ context.Context, draft backend.EventDraft) error {
	if err := s.b.record(OpCreateEvent, draft.Title); err != nil {
		return err
	}
	uid, err := s.b.currentUser()
	if err != nil {
		return err
	}
	rec := NewEventFixture(WithEventTitle(draft.Title), WithEventCreator(uid), WithEventStart(draft.StartTime)).Record()
	s.b.mu.Lock()
	s.b.events = append(s.b.events, rec)
	s.b.mu.Unlock()
	return nil
}

func (s stubEvents) Join(_ context.Context, eventID string) error {
	if err := s.b.record(OpJoinEvent, eventID); err != nil {
		return err
	}
	uid, err := s.b.currentUser()
	if err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for i, ev := range s.b.events {
		if ev.ID.String() == eventID {
			s.b.events[i].Attendees = append(ev.Attendees, backend.Attendee{ID: backend.FlexString(uid)})
			return nil
		}
	}
	return backend.ErrNotFound
}

func (s stubEvents) Delete(_ context.Context, eventID string) error {
	if err := s.b.record(OpDeleteEvent, eventID); err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for i, ev := range s.b.events {
		if ev.ID.String() == eventID {
			s.b.events = append(s.b.events[:i:i], s.b.events[i+1:]...)
			return nil
		}
	}
	return backend.ErrNotFound
}

type stubLocations struct{ b *Backend }

func (s stubLocations) GetAll(_ context.Context) ([]backend.LocationRecord, error) {
	if err := s.b.record(OpListLocations, ""); err != nil {
		return nil, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return append([]backend.LocationRecord(nil), s.b.locations...), nil
}
