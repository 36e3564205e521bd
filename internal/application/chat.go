package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/campus-presence/internal/channel"
	"github.com/example/campus-presence/internal/model"
)

// MessagePerson opens the direct channel with m and switches to chat.
func (o *Orchestrator) MessagePerson(ctx context.Context, m model.Member) (err error) {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	logger := o.loggerWith(ctx, "MessagePerson", "member_id", m.ID)
	defer func() { logOutcome(ctx, logger, "direct channel opened", err) }()

	if o.isClosed() {
		return ErrClosed
	}
	o.mu.RLock()
	self := o.session
	o.mu.RUnlock()
	if self != nil && self.UserID == m.ID {
		return fmt.Errorf("%w: cannot message yourself", ErrInvalidTarget)
	}

	id, err := channel.DirectID(m.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	label := m.Name
	if label == "" {
		label = m.ID
	}
	o.channels.Ensure(id, label)
	o.activate(id)
	return nil
}

// OpenEventChat opens the chat channel of ev and switches to chat.
func (o *Orchestrator) OpenEventChat(ctx context.Context, ev model.Event) (err error) {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	logger := o.loggerWith(ctx, "OpenEventChat", "event_id", ev.ID)
	defer func() { logOutcome(ctx, logger, "event channel opened", err) }()

	if o.isClosed() {
		return ErrClosed
	}
	id, err := channel.EventID(ev.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	o.channels.Ensure(id, channel.EventLabel(ev.Title))
	o.activate(id)
	return nil
}

// LeaveChannel removes a derived channel. Leaving the active channel falls
// back to the default channel.
func (o *Orchestrator) LeaveChannel(ctx context.Context, id string) (err error) {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	logger := o.loggerWith(ctx, "LeaveChannel", "channel_id", id)
	defer func() { logOutcome(ctx, logger, "channel left", err) }()

	if o.isClosed() {
		return ErrClosed
	}
	label, ok := o.channels.Leave(id)
	if !ok {
		o.notes.Push("This channel cannot be left", model.SeverityError)
		return ErrChannelNotLeavable
	}

	o.mu.Lock()
	if o.activeChannel == id {
		o.activeChannel = o.defaultChannel
	}
	o.mu.Unlock()

	o.notes.Push(`Left "`+label+`"`, model.SeverityInfo)
	o.changed()
	return nil
}

// SelectChannel makes an existing channel active.
func (o *Orchestrator) SelectChannel(id string) error {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	if !o.channels.Has(id) {
		return ErrNotFound
	}
	o.mu.Lock()
	o.activeChannel = id
	o.mu.Unlock()
	o.changed()
	return nil
}

// SetSurface switches the active UI surface.
func (o *Orchestrator) SetSurface(s model.Surface) error {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	if !s.Valid() {
		return fmt.Errorf("%w: unknown surface %q", ErrInvalidTarget, s)
	}
	o.mu.Lock()
	o.surface = s
	o.mu.Unlock()
	o.changed()
	return nil
}

func (o *Orchestrator) activate(id string) {
	o.mu.Lock()
	o.activeChannel = id
	o.surface = model.SurfaceChat
	o.mu.Unlock()
	o.changed()
}
