package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// The backend has shipped several naming conventions over time. Wire
// records accept all of them; only the normalised model types leave this
// package.

// FlexString decodes a JSON string or number into a string.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("backend: expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// MarshalJSON encodes the value as a JSON string.
func (f FlexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// String returns the raw value.
func (f FlexString) String() string { return string(f) }

// Attendee is an attendee entry, sent either as a bare id or as an object.
type Attendee struct {
	ID FlexString
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Attendee) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj struct {
			ID        FlexString `json:"id"`
			UserID    FlexString `json:"user_id"`
			UserIDAlt FlexString `json:"userId"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		a.ID = firstFlex(obj.UserID, obj.UserIDAlt, obj.ID)
		return nil
	}
	return a.ID.UnmarshalJSON(trimmed)
}

// MarshalJSON encodes the attendee as its id.
func (a Attendee) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a.ID))
}

// Point is a nested coordinate pair.
type Point struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// EventRecord is an event as returned by the backend.
type EventRecord struct {
	ID                FlexString `json:"id"`
	LegacyID          FlexString `json:"_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Type              string     `json:"type"`
	LocationName      string     `json:"location_name"`
	LocationNameCamel string     `json:"locationName"`
	MapX              *float64   `json:"map_x"`
	MapY              *float64   `json:"map_y"`
	Coords            *Point     `json:"coords"`
	IsMajor           *bool      `json:"is_major"`
	IsMajorCamel      *bool      `json:"isMajor"`
	StartTime         string     `json:"start_time"`
	StartTimeCamel    string     `json:"startTime"`
	Attendees         []Attendee `json:"attendees"`
	CreatorID         FlexString `json:"creator_id"`
	CreatorIDCamel    FlexString `json:"creatorId"`
	ImageURL          string     `json:"image_url"`
	PhotoURL          string     `json:"photo_url"`
	Image             string     `json:"image"`
}

// LocationRecord is a location as returned by the backend.
type LocationRecord struct {
	ID                    FlexString `json:"id"`
	Name                  string     `json:"name"`
	Type                  string     `json:"type"`
	OccupancyPercent      *float64   `json:"occupancy_percent"`
	OccupancyPercentCamel *float64   `json:"occupancyPercent"`
	CurrentOccupancy      *float64   `json:"current_occupancy"`
	CurrentOccupancyCamel *float64   `json:"currentOccupancy"`
	Capacity              *int       `json:"capacity"`
	Description           string     `json:"description"`
	ActiveUsers           *int       `json:"active_users"`
	ActiveUsersCamel      *int       `json:"activeUsers"`
	MapX                  *float64   `json:"map_x"`
	MapXCamel             *float64   `json:"mapX"`
	MapY                  *float64   `json:"map_y"`
	MapYCamel             *float64   `json:"mapY"`
	Amenities             []string   `json:"amenities"`
	AvgNoise              *float64   `json:"avg_noise"`
	AvgNoiseCamel         *float64   `json:"avgNoise"`
	PhotoURL              string     `json:"photo_url"`
	PhotoURLCamel         string     `json:"photoUrl"`
}

// UserRecord is a profile as returned by the backend.
type UserRecord struct {
	ID             FlexString `json:"id"`
	Username       string     `json:"username"`
	FullName       string     `json:"full_name"`
	FullNameCamel  string     `json:"fullName"`
	Email          string     `json:"email"`
	AvatarURL      string     `json:"avatar_url"`
	AvatarURLCamel string     `json:"avatarUrl"`
}

// StatsRecord is the activity summary as returned by the backend.
type StatsRecord struct {
	CheckIns          *int `json:"check_ins"`
	CheckInsCamel     *int `json:"checkIns"`
	StudyMinutes      *int `json:"study_minutes"`
	StudyMinutesCamel *int `json:"studyMinutes"`
	Streak            *int `json:"streak"`
	EventsJoined      *int `json:"events_joined"`
	EventsJoinedCamel *int `json:"eventsJoined"`
}

func firstFlex(values ...FlexString) FlexString {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// firstFloat returns the first non-nil, non-zero value. Zero is treated as
// absent, matching how the backend omits unset numeric fields.
func firstFloat(values ...*float64) (float64, bool) {
	for _, v := range values {
		if v != nil && *v != 0 {
			return *v, true
		}
	}
	return 0, false
}

func firstInt(values ...*int) int {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return 0
}

func firstBool(values ...*bool) bool {
	for _, v := range values {
		if v != nil && *v {
			return true
		}
	}
	return false
}

func itoa(n int) string { return strconv.Itoa(n) }
