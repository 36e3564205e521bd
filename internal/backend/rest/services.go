package rest

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/example/campus-presence/internal/backend"
)

type authService struct{ c *Client }

func (s authService) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	var resp struct {
		AccessToken      string             `json:"access_token"`
		AccessTokenCamel string             `json:"accessToken"`
		User             backend.UserRecord `json:"user"`
	}
	in := map[string]string{"email": email, "password": password}
	if err := s.c.do(ctx, http.MethodPost, "/api/auth/login", in, &resp); err != nil {
		if errors.Is(err, backend.ErrUnauthenticated) {
			return nil, backend.ErrInvalidCredentials
		}
		return nil, err
	}
	token := resp.AccessToken
	if token == "" {
		token = resp.AccessTokenCamel
	}
	session, err := sessionFromToken(token, resp.User.ID.String())
	if err != nil {
		return nil, err
	}
	s.c.hub.Set(session)
	return session, nil
}

func (s authService) Logout(ctx context.Context) error {
	err := s.c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	if err != nil && !errors.Is(err, backend.ErrUnauthenticated) {
		return err
	}
	s.c.hub.Set(nil)
	return nil
}

func (s authService) Watch(ctx context.Context) <-chan *backend.Session {
	return s.c.hub.Watch(ctx)
}

type userService struct{ c *Client }

type userEnvelope struct {
	User backend.UserRecord `json:"user"`
}

func (s userService) GetProfile(ctx context.Context) (backend.UserRecord, error) {
	var resp userEnvelope
	err := s.c.do(ctx, http.MethodGet, "/api/users/me", nil, &resp)
	return resp.User, err
}

func (s userService) GetStats(ctx context.Context) (backend.StatsRecord, error) {
	var resp backend.StatsRecord
	err := s.c.do(ctx, http.MethodGet, "/api/users/me/stats", nil, &resp)
	return resp, err
}

func (s userService) UpdateSettings(ctx context.Context, payload backend.SettingsPayload) (backend.UserRecord, error) {
	var resp userEnvelope
	err := s.c.do(ctx, http.MethodPut, "/api/users/me/settings", payload, &resp)
	return resp.User, err
}

type checkInService struct{ c *Client }

func (s checkInService) CheckIn(ctx context.Context, req backend.CheckInRequest) (backend.CheckInReceipt, error) {
	var resp backend.CheckInReceipt
	err := s.c.do(ctx, http.MethodPost, "/api/checkins", req, &resp)
	return resp, err
}

func (s checkInService) CheckOut(ctx context.Context, sessionID string) error {
	return s.c.do(ctx, http.MethodPost, "/api/checkins/"+url.PathEscape(sessionID)+"/checkout", nil, nil)
}

type eventService struct{ c *Client }

func (s eventService) GetAll(ctx context.Context) ([]backend.EventRecord, error) {
	var resp struct {
		Events []backend.EventRecord `json:"events"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/api/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (s eventService) Create(ctx context.Context, draft backend.EventDraft) error {
	return s.c.do(ctx, http.MethodPost, "/api/events", draft, nil)
}

func (s eventService) Join(ctx context.Context, eventID string) error {
	return s.c.do(ctx, http.MethodPost, "/api/events/"+url.PathEscape(eventID)+"/join", nil, nil)
}

func (s eventService) Delete(ctx context.Context, eventID string) error {
	return s.c.do(ctx, http.MethodDelete, "/api/events/"+url.PathEscape(eventID), nil, nil)
}

type locationService struct{ c *Client }

func (s locationService) GetAll(ctx context.Context) ([]backend.LocationRecord, error) {
	var resp struct {
		Locations []backend.LocationRecord `json:"locations"`
	}
	if err := s.c.do(ctx, http.MethodGet, "/api/locations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Locations, nil
}
