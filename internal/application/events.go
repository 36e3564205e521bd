package application

import (
	"context"
	"errors"
	"strings"

	"github.com/example/campus-presence/internal/activity"
	"github.com/example/campus-presence/internal/backend"
	"github.com/example/campus-presence/internal/channel"
	"github.com/example/campus-presence/internal/model"
)

// CreateEvent creates an event and refreshes the event list.
func (o *Orchestrator) CreateEvent(ctx context.Context, draft backend.EventDraft) (err error) {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	logger := o.loggerWith(ctx, "CreateEvent")
	defer func() { logOutcome(ctx, logger, "event created", err) }()

	userID, epoch, err := o.requireAuth()
	if err != nil {
		return err
	}

	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Title == "" {
		vErr := &ValidationError{}
		vErr.add("title", "title is required")
		o.notes.Push("Event title is required", model.SeverityError)
		return vErr
	}
	if draft.StartTime.IsZero() {
		draft.StartTime = o.clock.Now().UTC()
	}

	if err := o.client.Events().Create(ctx, draft); err != nil {
		if !o.current(epoch) {
			return ErrStaleResponse
		}
		o.notes.Push("Failed to create event", model.SeverityError)
		return backendFailure("events.create", err)
	}
	if !o.current(epoch) {
		return ErrStaleResponse
	}

	o.notes.Push("Event created successfully", model.SeveritySuccess)
	o.publish(ctx, activity.KindEventCreated, userID, "", draft.Title)
	o.resync(ctx)
	return nil
}

// JoinEvent joins eventID. When the event is known locally its chat channel
// is created as well.
func (o *Orchestrator) JoinEvent(ctx context.Context, eventID string) (err error) {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	logger := o.loggerWith(ctx, "JoinEvent", "event_id", eventID)
	defer func() { logOutcome(ctx, logger, "event joined", err) }()

	userID, epoch, err := o.requireAuth()
	if err != nil {
		return err
	}
	if strings.TrimSpace(eventID) == "" {
		return ErrInvalidTarget
	}

	if err := o.client.Events().Join(ctx, eventID); err != nil {
		if !o.current(epoch) {
			return ErrStaleResponse
		}
		o.notes.Push("Could not join event", model.SeverityError)
		return backendFailure("events.join", err)
	}
	if !o.current(epoch) {
		return ErrStaleResponse
	}

	o.notes.Push("Joined the event!", model.SeveritySuccess)
	label := eventID
	if ev, ok := o.events.Find(eventID); ok {
		label = ev.Title
		id, _ := channel.EventID(eventID)
		o.channels.Ensure(id, channel.EventLabel(ev.Title))
		o.notes.Push("Event chat created: "+ev.Title, model.SeveritySuccess)
	}
	o.publish(ctx, activity.KindEventJoined, userID, eventID, label)
	o.resync(ctx)
	return nil
}

// DeleteEvent deletes an event the current user created. Ownership is
// checked against the locally synced event list only.
func (o *Orchestrator) DeleteEvent(ctx context.Context, eventID string) (err error) {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	logger := o.loggerWith(ctx, "DeleteEvent", "event_id", eventID)
	defer func() { logOutcome(ctx, logger, "event deleted", err) }()

	userID, epoch, err := o.requireAuth()
	if err != nil {
		return err
	}

	ev, ok := o.events.Find(eventID)
	if !ok {
		o.notes.Push("Could not delete event", model.SeverityError)
		return ErrNotFound
	}
	if ev.CreatorID != userID {
		o.notes.Push("Only event creator can delete", model.SeverityError)
		return ErrAuthorizationDenied
	}

	if err := o.client.Events().Delete(ctx, eventID); err != nil {
		if !o.current(epoch) {
			return ErrStaleResponse
		}
		o.notes.Push("Could not delete event", model.SeverityError)
		return backendFailure("events.delete", err)
	}
	if !o.current(epoch) {
		return ErrStaleResponse
	}

	o.notes.Push("Event deleted successfully", model.SeveritySuccess)
	o.publish(ctx, activity.KindEventDeleted, userID, eventID, ev.Title)
	o.resync(ctx)
	return nil
}

// SyncEvents runs one event sync tick now.
func (o *Orchestrator) SyncEvents(ctx context.Context) ([]model.Event, error) {
	if o == nil {
		return nil, errors.New("Orchestrator is nil")
	}
	if o.isClosed() {
		return nil, ErrClosed
	}
	events, err := o.events.Tick(ctx)
	if err != nil {
		return events, backendFailure("events.list", err)
	}
	return events, nil
}
