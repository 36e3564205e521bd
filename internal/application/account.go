package application

import (
	"context"
	"errors"
	"strings"

	"github.com/example/campus-presence/internal/backend"
	"github.com/example/campus-presence/internal/model"
)

// SignIn authenticates with email and password and loads the profile.
func (o *Orchestrator) SignIn(ctx context.Context, email, password string) (err error) {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	email = strings.TrimSpace(email)
	logger := o.loggerWith(ctx, "SignIn", "email", email)
	defer func() { logOutcome(ctx, logger, "signed in", err) }()

	if o.isClosed() {
		return ErrClosed
	}

	vErr := &ValidationError{}
	if email == "" {
		vErr.add("email", "email is required")
	}
	if password == "" {
		vErr.add("password", "password is required")
	}
	if vErr.HasErrors() {
		return vErr
	}

	session, err := o.client.Auth().SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, backend.ErrInvalidCredentials) {
			o.notes.Push("Invalid email or password", model.SeverityError)
		} else {
			o.notes.Push("Sign in failed", model.SeverityError)
		}
		return backendFailure("auth.signin", err)
	}
	if session == nil {
		o.notes.Push("Sign in failed", model.SeverityError)
		return backendFailure("auth.signin", errEmptySession)
	}

	epoch, _ := o.applySession(session)
	o.loadUserData(ctx, epoch)

	name := email
	o.mu.RLock()
	if o.user != nil && o.user.Username != "" {
		name = o.user.Username
	}
	o.mu.RUnlock()
	o.notes.Push("Welcome, "+name+"!", model.SeveritySuccess)
	return nil
}

// Logout signs the current user out.
func (o *Orchestrator) Logout(ctx context.Context) (err error) {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	logger := o.loggerWith(ctx, "Logout")
	defer func() { logOutcome(ctx, logger, "signed out", err) }()

	if _, _, err := o.requireAuth(); err != nil {
		return err
	}
	if err := o.client.Auth().Logout(ctx); err != nil {
		o.notes.Push("Failed to sign out", model.SeverityError)
		return backendFailure("auth.logout", err)
	}
	o.applySession(nil)
	o.notes.Push("Signed out safely", model.SeverityInfo)
	return nil
}

// UpdateProfile changes profile fields and reloads the profile.
func (o *Orchestrator) UpdateProfile(ctx context.Context, payload backend.SettingsPayload) (err error) {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	logger := o.loggerWith(ctx, "UpdateProfile")
	defer func() { logOutcome(ctx, logger, "profile updated", err) }()

	_, epoch, err := o.requireAuth()
	if err != nil {
		return err
	}

	vErr := &ValidationError{}
	if payload.Empty() {
		vErr.add("payload", "nothing to update")
	}
	if payload.Username != nil {
		trimmed := strings.TrimSpace(*payload.Username)
		if trimmed == "" {
			vErr.add("username", "username must not be empty")
		}
		payload.Username = &trimmed
	}
	if vErr.HasErrors() {
		return vErr
	}

	rec, err := o.client.Users().UpdateSettings(ctx, payload)
	if err != nil {
		if !o.current(epoch) {
			return ErrStaleResponse
		}
		o.notes.Push("Failed to update profile", model.SeverityError)
		return backendFailure("users.update_settings", err)
	}
	if fresh, ferr := o.client.Users().GetProfile(ctx); ferr == nil {
		rec = fresh
	} else {
		logger.WarnContext(ctx, "profile reload failed", "error", ferr)
	}

	user := backend.NormalizeUser(rec)
	if !o.setIfCurrent(epoch, func() { o.user = &user }) {
		return ErrStaleResponse
	}
	o.notes.Push("Profile updated!", model.SeveritySuccess)
	return nil
}

// RefreshLocations replaces the location list. Failures keep the previous
// list and are not surfaced as notifications.
func (o *Orchestrator) RefreshLocations(ctx context.Context) (err error) {
	if o == nil {
		return errors.New("Orchestrator is nil")
	}
	if o.isClosed() {
		return ErrClosed
	}
	records, err := o.client.Locations().GetAll(ctx)
	if err != nil {
		o.loggerWith(ctx, "RefreshLocations").WarnContext(ctx, "location refresh failed", "error", err)
		return backendFailure("locations.list", err)
	}
	locations := backend.NormalizeLocations(records)
	o.mu.Lock()
	o.locations = locations
	o.mu.Unlock()
	o.changed()
	return nil
}
