// Package backend describes the remote collaborator the client core talks
// to, the wire records it returns, and the normalisation of those records
// into canonical model types.
package backend

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnauthenticated is returned when a call needs a signed-in session.
	ErrUnauthenticated = errors.New("backend: unauthenticated")
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("backend: not found")
	// ErrForbidden is returned when the backend refuses the caller.
	ErrForbidden = errors.New("backend: forbidden")
	// ErrInvalidCredentials is returned by SignIn for a bad email/password pair.
	ErrInvalidCredentials = errors.New("backend: invalid credentials")
)

// Session is the signed-in state delivered by the auth stream.
type Session struct {
	UserID      string
	AccessToken string
	ExpiresAt   time.Time
}

// AuthService signs users in and out and reports every change.
type AuthService interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	Logout(ctx context.Context) error
	// Watch delivers the current session first, then every change; nil means
	// signed out. The channel is closed when ctx ends.
	Watch(ctx context.Context) <-chan *Session
}

// UserService exposes the signed-in user's profile.
type UserService interface {
	GetProfile(ctx context.Context) (UserRecord, error)
	GetStats(ctx context.Context) (StatsRecord, error)
	UpdateSettings(ctx context.Context, payload SettingsPayload) (UserRecord, error)
}

// CheckInService opens and closes presence sessions.
type CheckInService interface {
	CheckIn(ctx context.Context, req CheckInRequest) (CheckInReceipt, error)
	CheckOut(ctx context.Context, sessionID string) error
}

// EventService manages shared events.
type EventService interface {
	GetAll(ctx context.Context) ([]EventRecord, error)
	Create(ctx context.Context, draft EventDraft) error
	Join(ctx context.Context, eventID string) error
	Delete(ctx context.Context, eventID string) error
}

// LocationService lists check-in locations.
type LocationService interface {
	GetAll(ctx context.Context) ([]LocationRecord, error)
}

// Client groups every operation the core consumes.
type Client interface {
	Auth() AuthService
	Users() UserService
	CheckIns() CheckInService
	Events() EventService
	Locations() LocationService
}

// CheckInRequest opens a presence session.
type CheckInRequest struct {
	LocationID      string  `json:"location_id"`
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"lng"`
	Subject         string  `json:"subject"`
	Mode            string  `json:"mode"`
	DurationMinutes int     `json:"duration_minutes"`
}

// CheckInReceipt is the backend's confirmation of a check-in.
type CheckInReceipt struct {
	ID FlexString `json:"id"`
}

// EventDraft is the payload for creating an event.
type EventDraft struct {
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Type         string    `json:"type,omitempty"`
	LocationName string    `json:"location_name,omitempty"`
	StartTime    time.Time `json:"start_time"`
	IsMajor      bool      `json:"is_major,omitempty"`
	MapX         float64   `json:"map_x,omitempty"`
	MapY         float64   `json:"map_y,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
}

// SettingsPayload updates profile fields; nil fields are left unchanged.
type SettingsPayload struct {
	Username  *string `json:"username,omitempty"`
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// Empty reports whether the payload changes nothing.
func (p SettingsPayload) Empty() bool {
	return p.Username == nil && p.FullName == nil && p.AvatarURL == nil
}
