package backend

import (
	"math"
	"strings"
	"time"

	"github.com/example/campus-presence/internal/model"
)

const (
	defaultEventLocation = "Campus"
	defaultEventImage    = "https://images.unsplash.com/photo-1550745165-9bc0b252726f?auto=format&fit=crop&q=80"
	defaultCapacity      = 100
)

var defaultEventCoords = model.Coords{X: 600, Y: 450}

// Locations without stored coordinates are placed by a keyword in their
// name; the last entry is the fallback.
var locationAnchors = []struct {
	keyword string
	coords  model.Coords
}{
	{"Library", model.Coords{X: 650, Y: 465}},
	{"Lounge", model.Coords{X: 950, Y: 250}},
	{"Tech", model.Coords{X: 250, Y: 670}},
	{"Innovation", model.Coords{X: 940, Y: 530}},
	{"Sports", model.Coords{X: 900, Y: 650}},
	{"", model.Coords{X: 250, Y: 325}},
}

var startTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// NormalizeEvent maps a wire record to the canonical event. Records without
// any identity are rejected.
func NormalizeEvent(r EventRecord, now time.Time) (model.Event, bool) {
	id := firstFlex(r.ID, r.LegacyID).String()
	if strings.TrimSpace(id) == "" {
		return model.Event{}, false
	}

	coords := defaultEventCoords
	var nestedX, nestedY *float64
	if r.Coords != nil {
		nestedX, nestedY = r.Coords.X, r.Coords.Y
	}
	if x, ok := firstFloat(r.MapX, nestedX); ok {
		coords.X = x
	}
	if y, ok := firstFloat(r.MapY, nestedY); ok {
		coords.Y = y
	}

	return model.Event{
		ID:           id,
		Title:        r.Title,
		Description:  r.Description,
		Type:         r.Type,
		LocationName: firstString(r.LocationName, r.LocationNameCamel, defaultEventLocation),
		Coords:       coords,
		StartTime:    parseStartTime(firstString(r.StartTime, r.StartTimeCamel), now),
		Attendees:    attendeeSet(r.Attendees),
		CreatorID:    firstFlex(r.CreatorID, r.CreatorIDCamel).String(),
		IsMajor:      firstBool(r.IsMajor, r.IsMajorCamel),
		ImageURL:     firstString(r.ImageURL, r.PhotoURL, r.Image, defaultEventImage),
	}, true
}

// NormalizeEvents maps every record, dropping records without identity.
func NormalizeEvents(records []EventRecord, now time.Time) []model.Event {
	out := make([]model.Event, 0, len(records))
	for _, r := range records {
		if e, ok := NormalizeEvent(r, now); ok {
			out = append(out, e)
		}
	}
	return out
}

// NormalizeLocation maps a wire record to the canonical location.
func NormalizeLocation(r LocationRecord) (model.Location, bool) {
	id := r.ID.String()
	if strings.TrimSpace(id) == "" {
		return model.Location{}, false
	}

	capacity := firstInt(r.Capacity)
	pct, ok := firstFloat(r.OccupancyPercent, r.OccupancyPercentCamel)
	if !ok {
		current, _ := firstFloat(r.CurrentOccupancy, r.CurrentOccupancyCamel)
		denominator := capacity
		if denominator <= 0 {
			denominator = defaultCapacity
		}
		pct = current / float64(denominator) * 100
	}
	occupancy := percent(pct)

	description := r.Description
	if description == "" {
		description = itoa(firstInt(r.ActiveUsers, r.ActiveUsersCamel)) + " people studying"
	}

	anchor := anchorFor(r.Name)
	coords := anchor
	if x, ok := firstFloat(r.MapX, r.MapXCamel); ok {
		coords.X = x
	}
	if y, ok := firstFloat(r.MapY, r.MapYCamel); ok {
		coords.Y = y
	}

	noise, _ := firstFloat(r.AvgNoise, r.AvgNoiseCamel)

	return model.Location{
		ID:          id,
		Name:        r.Name,
		Type:        r.Type,
		Occupancy:   occupancy,
		Capacity:    capacity,
		Description: description,
		Coords:      coords,
		Amenities:   append([]string(nil), r.Amenities...),
		AvgNoise:    noise,
		PhotoURL:    firstString(r.PhotoURL, r.PhotoURLCamel),
	}, true
}

// NormalizeLocations maps every record, dropping records without identity.
func NormalizeLocations(records []LocationRecord) []model.Location {
	out := make([]model.Location, 0, len(records))
	for _, r := range records {
		if l, ok := NormalizeLocation(r); ok {
			out = append(out, l)
		}
	}
	return out
}

// NormalizeUser maps a wire profile to the canonical user.
func NormalizeUser(r UserRecord) model.User {
	return model.User{
		ID:        r.ID.String(),
		Username:  r.Username,
		FullName:  firstString(r.FullName, r.FullNameCamel),
		Email:     r.Email,
		AvatarURL: firstString(r.AvatarURL, r.AvatarURLCamel),
	}
}

// NormalizeStats maps a wire activity summary to canonical stats.
func NormalizeStats(r StatsRecord) model.Stats {
	return model.Stats{
		CheckIns:     firstInt(r.CheckIns, r.CheckInsCamel),
		StudyMinutes: firstInt(r.StudyMinutes, r.StudyMinutesCamel),
		Streak:       firstInt(r.Streak),
		EventsJoined: firstInt(r.EventsJoined, r.EventsJoinedCamel),
	}
}

func parseStartTime(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}
	for _, layout := range startTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return now
}

func attendeeSet(in []Attendee) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		id := a.ID.String()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func anchorFor(name string) model.Coords {
	for _, a := range locationAnchors {
		if a.keyword == "" || strings.Contains(name, a.keyword) {
			return a.coords
		}
	}
	return model.Coords{}
}

// percent rounds v into [0, 100]. The range check runs on the float so
// out-of-range inputs never reach the int conversion.
func percent(v float64) int {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 100:
		return 100
	}
	return int(math.Round(v))
}
