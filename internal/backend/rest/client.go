// Package rest implements backend.Client over the campus JSON HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/campus-presence/internal/backend"
)

const defaultTimeout = 10 * time.Second

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rest: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("rest: unexpected status %d: %s", e.Code, e.Message)
}

// Client talks to the remote backend. The access token is held by the
// client and attached to every request.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
	hub    *backend.SessionHub
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient validates baseURL and returns a signed-out client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("rest: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("rest: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: defaultTimeout},
		logger: slog.Default(),
		hub:    backend.NewSessionHub(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "rest_backend")
	return c, nil
}

// Restore installs a previously issued access token.
func (c *Client) Restore(token string) error {
	s, err := sessionFromToken(token, "")
	if err != nil {
		return err
	}
	c.hub.Set(s)
	return nil
}

func (c *Client) Auth() backend.AuthService { return authService{c} }
func (c *Client) Users() backend.UserService { return userService{c} }
func (c *Client) CheckIns() backend.CheckInService { return checkInService{c} }
func (c *Client) Events() backend.EventService { return eventService{c} }
func (c *Client) Locations() backend.LocationService { return locationService{c} }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rest: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("rest: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s := c.hub.Current(); s != nil && s.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "request completed",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return statusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("rest: decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &payload)
	msg := payload.Error
	if msg == "" {
		msg = payload.Message
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		sentinel = backend.ErrUnauthenticated
	case http.StatusForbidden:
		sentinel = backend.ErrForbidden
	case http.StatusNotFound:
		sentinel = backend.ErrNotFound
	default:
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if msg == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}

// sessionFromToken reads subject and expiry from an access token. The
// signature is not checked here; the backend verifies it on every call.
func sessionFromToken(token, userID string) (*backend.Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("rest: parse access token: %w", err)
	}
	s := &backend.Session{UserID: userID, AccessToken: token}
	if s.UserID == "" {
		sub, err := claims.GetSubject()
		if err != nil {
			return nil, fmt.Errorf("rest: token subject: %w", err)
		}
		s.UserID = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	if s.UserID == "" {
		return nil, errors.New("rest: access token has no subject")
	}
	return s, nil
}
