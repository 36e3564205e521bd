// Package model defines the canonical entities shared by the client core.
package model

import "time"

// Coords is a position on the campus map.
type Coords struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// OccupancyBand buckets a location's occupancy for display.
type OccupancyBand string

const (
	OccupancyLow    OccupancyBand = "low"
	OccupancyMedium OccupancyBand = "medium"
	OccupancyHigh   OccupancyBand = "high"
)

// Location is a place users can check into.
type Location struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Occupancy   int      `json:"occupancy"`
	Capacity    int      `json:"capacity"`
	Description string   `json:"description"`
	Coords      Coords   `json:"coords"`
	Amenities   []string `json:"amenities,omitempty"`
	AvgNoise    float64  `json:"avg_noise,omitempty"`
	PhotoURL    string   `json:"photo_url,omitempty"`
}

// Band reports the occupancy band of the location.
func (l Location) Band() OccupancyBand {
	switch {
	case l.Occupancy > 70:
		return OccupancyHigh
	case l.Occupancy > 30:
		return OccupancyMedium
	default:
		return OccupancyLow
	}
}

// Event is a shared campus activity.
type Event struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Type         string    `json:"type"`
	LocationName string    `json:"location_name"`
	Coords       Coords    `json:"coords"`
	StartTime    time.Time `json:"start_time"`
	Attendees    []string  `json:"attendees"`
	CreatorID    string    `json:"creator_id"`
	IsMajor      bool      `json:"is_major"`
	ImageURL     string    `json:"image_url,omitempty"`
}

// HasAttendee reports whether userID is in the attendee set.
func (e Event) HasAttendee(userID string) bool {
	for _, a := range e.Attendees {
		if a == userID {
			return true
		}
	}
	return false
}

// CheckIn is a backend-confirmed presence session at a location.
type CheckIn struct {
	SessionID    string    `json:"session_id"`
	LocationID   string    `json:"location_id"`
	LocationName string    `json:"location_name"`
	StartedAt    time.Time `json:"started_at"`
}

// ChannelKind records how a channel came to exist.
type ChannelKind string

const (
	ChannelStatic ChannelKind = "static"
	ChannelDirect ChannelKind = "direct"
	ChannelEvent  ChannelKind = "event"
)

// Channel is a chat channel.
type Channel struct {
	ID     string      `json:"id"`
	Label  string      `json:"label"`
	Kind   ChannelKind `json:"kind"`
	Static bool        `json:"static"`
}

// Severity classifies a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityError   Severity = "error"
)

// Notification is a short-lived user-facing message.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// User is the signed-in account profile.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Stats summarises the signed-in user's activity.
type Stats struct {
	CheckIns     int `json:"check_ins"`
	StudyMinutes int `json:"study_minutes"`
	Streak       int `json:"streak"`
	EventsJoined int `json:"events_joined"`
}

// Member is a person the user can message directly.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Surface identifies the UI surface currently shown.
type Surface string

const (
	SurfaceDashboard Surface = "dashboard"
	SurfaceMap       Surface = "map"
	SurfaceTribe     Surface = "tribe"
	SurfaceSocial    Surface = "social"
	SurfaceChat      Surface = "chat"
	SurfaceSettings  Surface = "settings"
)

// Valid reports whether s names a known surface.
func (s Surface) Valid() bool {
	switch s {
	case SurfaceDashboard, SurfaceMap, SurfaceTribe, SurfaceSocial, SurfaceChat, SurfaceSettings:
		return true
	}
	return false
}
