package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/campus-presence/internal/backend"
)

type authService struct{ b *Backend }

func (s authService) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	var id, hash string
	err := s.b.store.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = ?`, normalizeEmail(email),
	).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("local: lookup user: %w", err)
	}
	if err := CheckPassword(hash, password); err != nil {
		return nil, backend.ErrInvalidCredentials
	}

	token, exp, err := s.b.tokens.issue(id, s.b.now())
	if err != nil {
		return nil, err
	}
	session := &backend.Session{UserID: id, AccessToken: token, ExpiresAt: exp}
	s.b.hub.Set(session)
	s.b.logger.InfoContext(ctx, "signed in", "user_id", id)
	return session, nil
}

func (s authService) Logout(ctx context.Context) error {
	if cur := s.b.hub.Current(); cur != nil {
		s.b.logger.InfoContext(ctx, "signed out", "user_id", cur.UserID)
	}
	s.b.hub.Set(nil)
	return nil
}

func (s authService) Watch(ctx context.Context) <-chan *backend.Session {
	return s.b.hub.Watch(ctx)
}

type userService struct{ b *Backend }

func (s userService) GetProfile(ctx context.Context) (backend.UserRecord, error) {
	uid, err := s.b.currentUser()
	if err != nil {
		return backend.UserRecord{}, err
	}
	return s.load(ctx, uid)
}

func (s userService) load(ctx context.Context, uid string) (backend.UserRecord, error) {
	var rec backend.UserRecord
	var id string
	err := s.b.store.db.QueryRowContext(ctx,
		`SELECT id, username, full_name, email, avatar_url FROM users WHERE id = ?`, uid,
	).Scan(&id, &rec.Username, &rec.FullName, &rec.Email, &rec.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.UserRecord{}, backend.ErrNotFound
	}
	if err != nil {
		return backend.UserRecord{}, fmt.Errorf("local: load user: %w", err)
	}
	rec.ID = backend.FlexString(id)
	return rec, nil
}

func (s userService) GetStats(ctx context.Context) (backend.StatsRecord, error) {
	uid, err := s.b.currentUser()
	if err != nil {
		return backend.StatsRecord{}, err
	}

	rows, err := s.b.store.db.QueryContext(ctx,
		`SELECT started_at, ended_at FROM checkins WHERE user_id = ?`, uid)
	if err != nil {
		return backend.StatsRecord{}, fmt.Errorf("local: query checkins: %w", err)
	}
	defer rows.Close()

	checkIns, minutes := 0, 0
	days := make(map[string]struct{})
	for rows.Next() {
		var started string
		var ended sql.NullString
		if err := rows.Scan(&started, &ended); err != nil {
			return backend.StatsRecord{}, fmt.Errorf("local: scan checkin: %w", err)
		}
		checkIns++
		start := parseTime(started)
		days[start.Format(time.DateOnly)] = struct{}{}
		if ended.Valid {
			minutes += int(parseTime(ended.String).Sub(start).Minutes())
		}
	}
	if err := rows.Err(); err != nil {
		return backend.StatsRecord{}, fmt.Errorf("local: iterate checkins: %w", err)
	}

	var joined int
	if err := s.b.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_attendees WHERE user_id = ?`, uid,
	).Scan(&joined); err != nil {
		return backend.StatsRecord{}, fmt.Errorf("local: count attendance: %w", err)
	}

	streak := streakDays(days, s.b.now())
	return backend.StatsRecord{
		CheckIns:     &checkIns,
		StudyMinutes: &minutes,
		Streak:       &streak,
		EventsJoined: &joined,
	}, nil
}

// streakDays counts consecutive check-in days ending today, or yesterday when
// there is no check-in yet today.
func streakDays(days map[string]struct{}, now time.Time) int {
	day := now
	if _, ok := days[day.Format(time.DateOnly)]; !ok {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for {
		if _, ok := days[day.Format(time.DateOnly)]; !ok {
			return n
		}
		n++
		day = day.AddDate(0, 0, -1)
	}
}

func (s userService) UpdateSettings(ctx context.Context, payload backend.SettingsPayload) (backend.UserRecord, error) {
	uid, err := s.b.currentUser()
	if err != nil {
		return backend.UserRecord{}, err
	}

	var sets []string
	var args []any
	if payload.Username != nil {
		name := strings.TrimSpace(*payload.Username)
		if name == "" {
			return backend.UserRecord{}, fmt.Errorf("%w: username must not be empty", ErrInvalidInput)
		}
		sets, args = append(sets, "username = ?"), append(args, name)
	}
	if payload.FullName != nil {
		sets, args = append(sets, "full_name = ?"), append(args, strings.TrimSpace(*payload.FullName))
	}
	if payload.AvatarURL != nil {
		sets, args = append(sets, "avatar_url = ?"), append(args, strings.TrimSpace(*payload.AvatarURL))
	}
	if len(sets) > 0 {
		sets, args = append(sets, "updated_at = ?"), append(args, s.b.now().Format(timeLayout))
		args = append(args, uid)
		query := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		if _, err := s.b.store.db.ExecContext(ctx, query, args...); err != nil {
			return backend.UserRecord{}, fmt.Errorf("local: update user: %w", err)
		}
	}
	return s.load(ctx, uid)
}

type checkInService struct{ b *Backend }

func (s checkInService) CheckIn(ctx context.Context, req backend.CheckInRequest) (backend.CheckInReceipt, error) {
	uid, err := s.b.currentUser()
	if err != nil {
		return backend.CheckInReceipt{}, err
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = defaultDurationMinutes
	}

	id := s.b.newID()
	err = s.b.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE locations
			SET current_occupancy = CASE
				WHEN capacity > 0 AND current_occupancy >= capacity THEN capacity
				ELSE current_occupancy + 1 END
			WHERE id = ?`, req.LocationID)
		if err != nil {
			return fmt.Errorf("local: bump occupancy: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return backend.ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checkins (id, user_id, location_id, subject, mode, duration_minutes, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, uid, req.LocationID, req.Subject, req.Mode, duration, s.b.now().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("local: insert checkin: %w", err)
		}
		return nil
	})
	if err != nil {
		return backend.CheckInReceipt{}, err
	}
	s.b.logger.InfoContext(ctx, "checked in", "user_id", uid, "location_id", req.LocationID, "checkin_id", id)
	return backend.CheckInReceipt{ID: backend.FlexString(id)}, nil
}

func (s checkInService) CheckOut(ctx context.Context, sessionID string) error {
	uid, err := s.b.currentUser()
	if err != nil {
		return err
	}
	err = s.b.store.WithTransaction(ctx, func(tx *sql.Tx) error {
		var locationID string
		err := tx.QueryRowContext(ctx,
			`SELECT location_id FROM checkins WHERE id = ? AND user_id = ? AND ended_at IS NULL`,
			sessionID, uid,
		).Scan(&locationID)
		if errors.Is(err, sql.ErrNoRows) {
			return backend.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("local: load checkin: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE checkins SET ended_at = ? WHERE id = ?`, s.b.now().Format(timeLayout), sessionID,
		); err != nil {
			return fmt.Errorf("local: close checkin: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE locations SET current_occupancy = MAX(current_occupancy - 1, 0) WHERE id = ?`, locationID,
		); err != nil {
			return fmt.Errorf("local: drop occupancy: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.b.logger.InfoContext(ctx, "checked out", "user_id", uid, "checkin_id", sessionID)
	return nil
}

type eventService struct{ b *Backend }

func (s eventService) GetAll(ctx context.Context) ([]backend.EventRecord, error) {
	rows, err := s.b.store.db.QueryContext(ctx, `
		SELECT id, title, description, type, location_name, map_x, map_y, start_time, is_major, image_url, creator_id
		FROM events ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("local: query events: %w", err)
	}
	defer rows.Close()

	var out []backend.EventRecord
	index := make(map[string]int)
	for rows.Next() {
		var (
			id, creator string
			rec         backend.EventRecord
			mapX, mapY  sql.NullFloat64
			major       bool
		)
		if err := rows.Scan(&id, &rec.Title, &rec.Description, &rec.Type, &rec.LocationName,
			&mapX, &mapY, &rec.StartTime, &major, &rec.ImageURL, &creator); err != nil {
			return nil, fmt.Errorf("local: scan event: %w", err)
		}
		rec.ID = backend.FlexString(id)
		rec.CreatorID = backend.FlexString(creator)
		rec.IsMajor = &major
		rec.MapX = nullableFloat(mapX)
		rec.MapY = nullableFloat(mapY)
		rec.Attendees = []backend.Attendee{}
		index[id] = len(out)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("local: iterate events: %w", err)
	}
	rows.Close()

	attendees, err := s.b.store.db.QueryContext(ctx,
		`SELECT event_id, user_id FROM event_attendees ORDER BY joined_at, user_id`)
	if err != nil {
		return nil, fmt.Errorf("local: query attendees: %w", err)
	}
	defer attendees.Close()
	for attendees.Next() {
		var eventID, userID string
		if err := attendees.Scan(&eventID, &userID); err != nil {
			return nil, fmt.Errorf("local: scan attendee: %w", err)
		}
		if i, ok := index[eventID]; ok {
			out[i].Attendees = append(out[i].Attendees, backend.Attendee{ID: backend.FlexString(userID)})
		}
	}
	if err := attendees.Err(); err != nil {
		return nil, fmt.Errorf("local: iterate attendees: %w", err)
	}
	if out == nil {
		out = []backend.EventRecord{}
	}
	return out, nil
}

func (s eventService) Create(ctx context.Context, draft backend.EventDraft) error {
	uid, err := s.b.currentUser()
	if err != nil {
		return err
	}
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	now := s.b.now()
	start := draft.StartTime
	if start.IsZero() {
		start = now
	}

	id := s.b.newID()
	_, err = s.b.store.db.ExecContext(ctx, `
		INSERT INTO events (id, title, description, type, location_name, map_x, map_y, start_time, is_major, image_url, creator_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, title, draft.Description, draft.Type, draft.LocationName,
		optionalFloat(draft.MapX), optionalFloat(draft.MapY),
		start.UTC().Format(time.RFC3339), draft.IsMajor, draft.ImageURL, uid, now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("local: insert event: %w", err)
	}
	s.b.logger.InfoContext(ctx, "event created", "user_id", uid, "event_id", id)
	return nil
}

func (s eventService) Join(ctx context.Context, eventID string) error {
	uid, err := s.b.currentUser()
	if err != nil {
		return err
	}
	if _, err := s.creator(ctx, eventID); err != nil {
		return err
	}
	_, err = s.b.store.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_attendees (event_id, user_id, joined_at) VALUES (?, ?, ?)`,
		eventID, uid, s.b.now().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("local: join event: %w", err)
	}
	return nil
}

func (s eventService) Delete(ctx context.Context, eventID string) error {
	uid, err := s.b.currentUser()
	if err != nil {
		return err
	}
	creator, err := s.creator(ctx, eventID)
	if err != nil {
		return err
	}
	if creator != uid {
		return backend.ErrForbidden
	}
	if _, err := s.b.store.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, eventID); err != nil {
		return fmt.Errorf("local: delete event: %w", err)
	}
	s.b.logger.InfoContext(ctx, "event deleted", "user_id", uid, "event_id", eventID)
	return nil
}

func (s eventService) creator(ctx context.Context, eventID string) (string, error) {
	var creator string
	err := s.b.store.db.QueryRowContext(ctx, `SELECT creator_id FROM events WHERE id = ?`, eventID).Scan(&creator)
	if errors.Is(err, sql.ErrNoRows) {
		return "", backend.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("local: load event: %w", err)
	}
	return creator, nil
}

type locationService struct{ b *Backend }

func (s locationService) GetAll(ctx context.Context) ([]backend.LocationRecord, error) {
	rows, err := s.b.store.db.QueryContext(ctx, `
		SELECT id, name, type, capacity, current_occupancy, description, map_x, map_y, amenities, avg_noise, photo_url
		FROM locations ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("local: query locations: %w", err)
	}
	defer rows.Close()

	out := []backend.LocationRecord{}
	for rows.Next() {
		var (
			id, amenities     string
			rec               backend.LocationRecord
			capacity, current int
			mapX, mapY        sql.NullFloat64
			noise             float64
		)
		if err := rows.Scan(&id, &rec.Name, &rec.Type, &capacity, &current, &rec.Description,
			&mapX, &mapY, &amenities, &noise, &rec.PhotoURL); err != nil {
			return nil, fmt.Errorf("local: scan location: %w", err)
		}
		currentF := float64(current)
		rec.ID = backend.FlexString(id)
		rec.Capacity = &capacity
		rec.CurrentOccupancy = &currentF
		rec.ActiveUsers = &current
		rec.MapX = nullableFloat(mapX)
		rec.MapY = nullableFloat(mapY)
		rec.AvgNoise = &noise
		if err := json.Unmarshal([]byte(amenities), &rec.Amenities); err != nil {
			s.b.logger.WarnContext(ctx, "invalid amenities", "location_id", id, "error", err)
		}
		sort.Strings(rec.Amenities)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("local: iterate locations: %w", err)
	}
	return out, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func optionalFloat(v float64) any {
	if v == 0 {
		return nil
	}
	return v
}
