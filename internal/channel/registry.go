// Package channel keeps the deduplicated, ordered set of chat channels.
package channel

import (
	"errors"
	"strings"
	"sync"

	"github.com/example/campus-presence/internal/model"
)

// ErrInvalidID is returned when a derived channel id would be built from an
// empty identity.
var ErrInvalidID = errors.New("channel: invalid id")

const (
	directPrefix = "dm-"
	eventPrefix  = "event-"
)

// DirectID derives the channel id for a direct conversation with userID.
func DirectID(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrInvalidID
	}
	return directPrefix + userID, nil
}

// EventID derives the channel id for an event's chat.
func EventID(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", ErrInvalidID
	}
	return eventPrefix + eventID, nil
}

// EventLabel is the display label of an event chat.
func EventLabel(title string) string {
	return title + " Chat"
}

// KindOf infers the kind of a derived channel from its id.
func KindOf(id string) model.ChannelKind {
	switch {
	case strings.HasPrefix(id, directPrefix):
		return model.ChannelDirect
	case strings.HasPrefix(id, eventPrefix):
		return model.ChannelEvent
	}
	return model.ChannelStatic
}

// Registry holds static channels, which can never be removed, followed by
// derived channels in creation order. Ids are unique across both.
type Registry struct {
	mu      sync.RWMutex
	static  []model.Channel
	derived []model.Channel
	ids     map[string]bool // id -> static
}

// NewRegistry returns a registry seeded with the static channels in the
// given order. Duplicate or empty static ids are dropped.
func NewRegistry(static []model.Channel) *Registry {
	r := &Registry{ids: make(map[string]bool, len(static))}
	for _, ch := range static {
		if ch.ID == "" {
			continue
		}
		if _, ok := r.ids[ch.ID]; ok {
			continue
		}
		ch.Static = true
		ch.Kind = model.ChannelStatic
		r.static = append(r.static, ch)
		r.ids[ch.ID] = true
	}
	return r
}

// Ensure inserts a derived channel unless the id is already present. An
// existing label is never overwritten. It reports whether a channel was
// created.
func (r *Registry) Ensure(id, label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.derived = append(r.derived, model.Channel{ID: id, Label: label, Kind: KindOf(id)})
	r.ids[id] = false
	return true
}

// Leave removes a derived channel and returns its label. It reports false
// when the id is unknown or names a static channel.
func (r *Registry) Leave(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	static, ok := r.ids[id]
	if !ok || static {
		return "", false
	}
	for i, ch := range r.derived {
		if ch.ID == id {
			r.derived = append(r.derived[:i:i], r.derived[i+1:]...)
			delete(r.ids, id)
			return ch.Label, true
		}
	}
	return "", false
}

// Has reports whether a channel with id exists.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok
}

// IsStatic reports whether id names a static channel.
func (r *Registry) IsStatic(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ids[id]
}

// Label returns the label of a channel.
func (r *Registry) Label(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.static {
		if ch.ID == id {
			return ch.Label, true
		}
	}
	for _, ch := range r.derived {
		if ch.ID == id {
			return ch.Label, true
		}
	}
	return "", false
}

// List returns static channels followed by derived channels.
func (r *Registry) List() []model.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Channel, 0, len(r.static)+len(r.derived))
	out = append(out, r.static...)
	out = append(out, r.derived...)
	return out
}

// Len reports the number of channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.static) + len(r.derived)
}
