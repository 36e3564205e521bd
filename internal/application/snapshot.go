package application

import (
	"time"

	"github.com/example/campus-presence/internal/model"
)

// Snapshot is a read-only copy of everything the presentation layer shows.
type Snapshot struct {
	Notifications   []model.Notification `json:"notifications"`
	Channels        []model.Channel      `json:"channels"`
	ActiveChannel   string               `json:"active_channel"`
	JoinedLocations []string             `json:"joined_locations"`
	ActiveCheckIn   *model.CheckIn       `json:"active_check_in"`
	Events          []model.Event        `json:"events"`
	Locations       []model.Location     `json:"locations"`
	User            *model.User          `json:"user"`
	Stats           *model.Stats         `json:"stats"`
	Surface         model.Surface        `json:"surface"`
	LastSyncedAt    time.Time            `json:"last_synced_at"`
}

// Snapshot returns the current state. The returned value shares nothing with
// the orchestrator.
func (o *Orchestrator) Snapshot() Snapshot {
	snap := Snapshot{
		Notifications:   o.notes.List(),
		Channels:        o.channels.List(),
		JoinedLocations: o.joined.List(),
		Events:          o.events.Events(),
		LastSyncedAt:    o.events.LastSyncedAt(),
	}
	if active, ok := o.machine.Active(); ok {
		snap.ActiveCheckIn = &active
	}

	o.mu.RLock()
	snap.ActiveChannel = o.activeChannel
	snap.Surface = o.surface
	snap.Locations = append([]model.Location(nil), o.locations...)
	if o.user != nil {
		u := *o.user
		snap.User = &u
	}
	if o.stats != nil {
		s := *o.stats
		snap.Stats = &s
	}
	o.mu.RUnlock()

	if snap.Notifications == nil {
		snap.Notifications = []model.Notification{}
	}
	if snap.JoinedLocations == nil {
		snap.JoinedLocations = []string{}
	}
	if snap.Events == nil {
		snap.Events = []model.Event{}
	}
	if snap.Locations == nil {
		snap.Locations = []model.Location{}
	}
	return snap
}

// UserID returns the signed-in user id, or "" when signed out.
func (o *Orchestrator) UserID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.session == nil {
		return ""
	}
	return o.session.UserID
}
