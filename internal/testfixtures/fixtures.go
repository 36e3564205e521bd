package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/campus-presence/internal/backend"
	"github.com/example/campus-presence/internal/model"
)

var (
	eventCounter    uint64
	locationCounter uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Event fixtures -----------------------------

// EventFixture represents a deterministic event that can be materialised as a
// wire record or as a canonical model value.
type EventFixture struct {
	ID           string
	Title        string
	Description  string
	LocationName string
	CreatorID    string
	Attendees    []string
	StartTime    time.Time
	MapX, MapY   float64
	IsMajor      bool
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a deterministic event fixture with optional overrides.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	fixture := EventFixture{
		ID:           fmt.Sprintf("event-%03d", idx),
		Title:        fmt.Sprintf("Study Group %03d", idx),
		Description:  "Weekly session",
		LocationName: "Main Library",
		CreatorID:    "user-001",
		StartTime:    referenceTime.Add(time.Duration(idx) * time.Hour),
		MapX:         650,
		MapY:         465,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the event identifier.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventTitle overrides the title.
func WithEventTitle(title string) EventOption {
	return func(f *EventFixture) {
		f.Title = title
	}
}

// WithEventCreator overrides the creator.
func WithEventCreator(id string) EventOption {
	return func(f *EventFixture) {
		f.CreatorID = id
	}
}

// WithEventAttendees replaces the attendee list.
func WithEventAttendees(ids ...string) EventOption {
	return func(f *EventFixture) {
		f.Attendees = append([]string(nil), ids...)
	}
}

// WithEventStart overrides the start time.
func WithEventStart(t time.Time) EventOption {
	return func(f *EventFixture) {
		f.StartTime = t
	}
}

// Record converts the fixture into the backend's snake_case wire shape.
func (f EventFixture) Record() backend.EventRecord {
	x, y := f.MapX, f.MapY
	major := f.IsMajor
	attendees := make([]backend.Attendee, 0, len(f.Attendees))
	for _, id := range f.Attendees {
		attendees = append(attendees, backend.Attendee{ID: backend.FlexString(id)})
	}
	return backend.EventRecord{
		ID:           backend.FlexString(f.ID),
		Title:        f.Title,
		Description:  f.Description,
		LocationName: f.LocationName,
		MapX:         &x,
		MapY:         &y,
		IsMajor:      &major,
		StartTime:    f.StartTime.UTC().Format(time.RFC3339),
		Attendees:    attendees,
		CreatorID:    backend.FlexString(f.CreatorID),
		ImageURL:     "https://example.com/" + f.ID + ".jpg",
	}
}

// Model converts the fixture into the canonical event.
func (f EventFixture) Model() model.Event {
	attendees := append([]string{}, f.Attendees...)
	return model.Event{
		ID:           f.ID,
		Title:        f.Title,
		Description:  f.Description,
		LocationName: f.LocationName,
		Coords:       model.Coords{X: f.MapX, Y: f.MapY},
		StartTime:    f.StartTime.UTC(),
		Attendees:    attendees,
		CreatorID:    f.CreatorID,
		IsMajor:      f.IsMajor,
		ImageURL:     "https://example.com/" + f.ID + ".jpg",
	}
}

// ---------------------------- Location fixtures ----------------------------

// LocationFixture represents a deterministic check-in location.
type LocationFixture struct {
	ID        string
	Name      string
	Type      string
	Capacity  int
	Occupancy int
	MapX      float64
	MapY      float64
}

// LocationOption configures the generated location fixture.
type LocationOption func(*LocationFixture)

// NewLocationFixture returns a deterministic location fixture with optional overrides.
func NewLocationFixture(opts ...LocationOption) LocationFixture {
	idx := atomic.AddUint64(&locationCounter, 1)
	fixture := LocationFixture{
		ID:        fmt.Sprintf("loc-%03d", idx),
		Name:      fmt.Sprintf("Study Room %03d", idx),
		Type:      "study",
		Capacity:  40,
		Occupancy: 25,
		MapX:      300,
		MapY:      200,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithLocationID overrides the location identifier.
func WithLocationID(id string) LocationOption {
	return func(f *LocationFixture) {
		f.ID = id
	}
}

// WithLocationName overrides the name.
func WithLocationName(name string) LocationOption {
	return func(f *LocationFixture) {
		f.Name = name
	}
}

// WithLocationOccupancy overrides the occupancy percentage.
func WithLocationOccupancy(percent int) LocationOption {
	return func(f *LocationFixture) {
		f.Occupancy = percent
	}
}

// Record converts the fixture into the backend's camelCase wire shape.
func (f LocationFixture) Record() backend.LocationRecord {
	occupancy := float64(f.Occupancy)
	capacity := f.Capacity
	x, y := f.MapX, f.MapY
	return backend.LocationRecord{
		ID:                    backend.FlexString(f.ID),
		Name:                  f.Name,
		Type:                  f.Type,
		OccupancyPercentCamel: &occupancy,
		Capacity:              &capacity,
		Description:           f.Name + " description",
		MapXCamel:             &x,
		MapYCamel:             &y,
	}
}

// Model converts the fixture into the canonical location.
func (f LocationFixture) Model() model.Location {
	return model.Location{
		ID:          f.ID,
		Name:        f.Name,
		Type:        f.Type,
		Occupancy:   f.Occupancy,
		Capacity:    f.Capacity,
		Description: f.Name + " description",
		Coords:      model.Coords{X: f.MapX, Y: f.MapY},
	}
}

// ------------------------------ User fixtures ------------------------------

// UserRecord returns a profile record for id.
func UserRecord(id, username string) backend.UserRecord {
	return backend.UserRecord{
		ID:       backend.FlexString(id),
		Username: username,
		FullName: username + " Example",
		Email:    username + "@example.com",
	}
}

// StatsRecord returns a stats record with every counter set.
func StatsRecord(checkIns, minutes, streak, joined int) backend.StatsRecord {
	return backend.StatsRecord{
		CheckIns:     &checkIns,
		StudyMinutes: &minutes,
		Streak:       &streak,
		EventsJoined: &joined,
	}
}
