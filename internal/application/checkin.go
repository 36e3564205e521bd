package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/campus-presence/internal/activity"
	"github.com/example/campus-presence/internal/backend"
	"github.com/example/campus-presence/internal/model"
)

const (
	checkInSubject = "General"
	checkInMode    = "solo"
)

var errEmptySession = errors.New("backend returned no session id")

// ToggleCheckIn checks into loc, or out of it when loc is already in the
// joined set. The joined set changes before the backend answers and is not
// rolled back on failure; the session machine only follows confirmed calls.
func (o *Orchestrator) ToggleCheckIn(ctx context.Context, loc model.Location) (err error) {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	logger := o.loggerWith(ctx, "ToggleCheckIn", "location_id", loc.ID)
	defer func() { logOutcome(ctx, logger, "check-in toggled", err) }()

	userID, epoch, err := o.requireAuth()
	if err != nil {
		return err
	}
	if loc.ID == "" {
		return ErrInvalidTarget
	}

	joined := o.joined.Toggle(loc.ID)
	o.changed()
	if joined {
		return o.checkIn(ctx, logger, userID, epoch, loc)
	}
	return o.checkOut(ctx, userID, epoch, loc)
}

func (o *Orchestrator) checkIn(ctx context.Context, logger *slog.Logger, userID string, epoch uint64, loc model.Location) error {
	o.notes.Push(fmt.Sprintf("Checked in to %s!", loc.Name), model.SeveritySuccess)

	if active, ok := o.machine.Active(); ok {
		if active.LocationID == loc.ID {
			return nil
		}
		logger.DebugContext(ctx, "switching location", "from", active.LocationID)
		if err := o.client.CheckIns().CheckOut(ctx, active.SessionID); err != nil {
			if !o.current(epoch) {
				return ErrStaleResponse
			}
			o.notes.Push(fmt.Sprintf("Could not check out from %s", active.LocationName), model.SeverityError)
			return backendFailure("checkins.checkout", err)
		}
		if !o.setIfCurrent(epoch, func() {
			o.machine.EndSession(active.SessionID)
			o.joined.Remove(active.LocationID)
		}) {
			return ErrStaleResponse
		}
		o.publish(ctx, activity.KindCheckOut, userID, active.LocationID, active.LocationName)
	}

	receipt, err := o.client.CheckIns().CheckIn(ctx, backend.CheckInRequest{
		LocationID:      loc.ID,
		Lat:             loc.Coords.Y,
		Lng:             loc.Coords.X,
		Subject:         checkInSubject,
		Mode:            checkInMode,
		DurationMinutes: o.checkInMinutes,
	})
	if err == nil && receipt.ID.String() == "" {
		err = errEmptySession
	}
	if err != nil {
		if !o.current(epoch) {
			return ErrStaleResponse
		}
		o.notes.Push(fmt.Sprintf("Failed to check in to %s", loc.Name), model.SeverityError)
		return backendFailure("checkins.checkin", err)
	}

	var (
		prior    model.CheckIn
		hadPrior bool
	)
	if !o.setIfCurrent(epoch, func() {
		prior, hadPrior = o.machine.Begin(model.CheckIn{
			SessionID:    receipt.ID.String(),
			LocationID:   loc.ID,
			LocationName: loc.Name,
			StartedAt:    o.clock.Now().UTC(),
		})
	}) {
		return ErrStaleResponse
	}
	o.publish(ctx, activity.KindCheckIn, userID, loc.ID, loc.Name)

	if hadPrior && prior.SessionID != receipt.ID.String() {
		return o.closeDisplaced(ctx, logger, userID, epoch, prior, loc.ID)
	}
	return nil
}

// closeDisplaced checks out a session that an overlapping check-in replaced
// in the machine while both backend calls were in flight.
func (o *Orchestrator) closeDisplaced(ctx context.Context, logger *slog.Logger, userID string, epoch uint64, prior model.CheckIn, keep string) error {
	logger.WarnContext(ctx, "closing displaced session", "session_id", prior.SessionID, "displaced_location_id", prior.LocationID)
	if err := o.client.CheckIns().CheckOut(ctx, prior.SessionID); err != nil {
		if !o.current(epoch) {
			return ErrStaleResponse
		}
		logger.WarnContext(ctx, "failed to close displaced session", "session_id", prior.SessionID, "error", err)
		o.notes.Push(fmt.Sprintf("Could not check out from %s", prior.LocationName), model.SeverityError)
		return nil
	}
	if prior.LocationID != keep {
		if !o.setIfCurrent(epoch, func() { o.joined.Remove(prior.LocationID) }) {
			return ErrStaleResponse
		}
	}
	o.publish(ctx, activity.KindCheckOut, userID, prior.LocationID, prior.LocationName)
	return nil
}

func (o *Orchestrator) checkOut(ctx context.Context, userID string, epoch uint64, loc model.Location) error {
	o.notes.Push(fmt.Sprintf("Checked out from %s", loc.Name), model.SeverityInfo)

	active, ok := o.machine.Active()
	if !ok || active.LocationID != loc.ID {
		return nil
	}

	if err := o.client.CheckIns().CheckOut(ctx, active.SessionID); err != nil {
		if !o.current(epoch) {
			return ErrStaleResponse
		}
		o.notes.Push(fmt.Sprintf("Failed to check out from %s", loc.Name), model.SeverityError)
		return backendFailure("checkins.checkout", err)
	}
	if !o.setIfCurrent(epoch, func() { o.machine.EndSession(active.SessionID) }) {
		return ErrStaleResponse
	}
	o.publish(ctx, activity.KindCheckOut, userID, loc.ID, loc.Name)
	return nil
}
