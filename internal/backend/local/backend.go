// Package local implements backend.Client on an embedded SQLite database so
// the client core can run without a remote service.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/campus-presence/internal/backend"
)

const (
	defaultTokenTTL        = 24 * time.Hour
	defaultDurationMinutes = 60
	timeLayout             = time.RFC3339Nano
)

var (
	// ErrMissingSecret is returned by New when no signing secret is configured.
	ErrMissingSecret = errors.New("local: signing secret is required")
	// ErrInvalidInput is returned for payloads the store cannot accept.
	ErrInvalidInput = errors.New("local: invalid input")
	// ErrDuplicateEmail is returned when registering an address twice.
	ErrDuplicateEmail = errors.New("local: email already registered")
)

// Backend serves a single signed-in client from the store.
type Backend struct {
	store  *Store
	tokens issuer
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
	hub    *backend.SessionHub
}

// Option configures a Backend.
type Option func(*Backend)

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(b *Backend) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(gen func() string) Option {
	return func(b *Backend) {
		if gen != nil {
			b.newID = gen
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTokenTTL overrides the access token lifetime.
func WithTokenTTL(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.tokens.ttl = d
		}
	}
}

// New wraps a migrated store.
func New(store *Store, secret string, opts ...Option) (*Backend, error) {
	if store == nil {
		return nil, errors.New("local: store is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	b := &Backend{
		store:  store,
		tokens: issuer{secret: []byte(secret), ttl: defaultTokenTTL},
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: slog.Default(),
		hub:    backend.NewSessionHub(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "local_backend")
	return b, nil
}

func (b *Backend) Auth() backend.AuthService { return authService{b} }
func (b *Backend) Users() backend.UserService { return userService{b} }
func (b *Backend) CheckIns() backend.CheckInService { return checkInService{b} }
func (b *Backend) Events() backend.EventService { return eventService{b} }
func (b *Backend) Locations() backend.LocationService { return locationService{b} }

// Restore re-establishes a session from a previously issued token.
func (b *Backend) Restore(token string) error {
	sub, err := b.tokens.subject(token, b.now())
	if err != nil {
		return err
	}
	b.hub.Set(&backend.Session{UserID: sub, AccessToken: token})
	return nil
}

// currentUser returns the signed-in user id, verifying the held token.
func (b *Backend) currentUser() (string, error) {
	s := b.hub.Current()
	if s == nil {
		return "", backend.ErrUnauthenticated
	}
	sub, err := b.tokens.subject(s.AccessToken, b.now())
	if err != nil {
		b.logger.Info("session expired", "user_id", s.UserID)
		b.hub.Set(nil)
		return "", backend.ErrUnauthenticated
	}
	return sub, nil
}

// Registration describes a new account.
type Registration struct {
	Username string
	FullName string
	Email    string
	Password string
}

// Register creates an account and returns its id.
func (b *Backend) Register(ctx context.Context, reg Registration) (string, error) {
	email := normalizeEmail(reg.Email)
	if strings.TrimSpace(reg.Username) == "" || email == "" || reg.Password == "" {
		return "", fmt.Errorf("%w: username, email and password are required", ErrInvalidInput)
	}
	hash, err := HashPassword(reg.Password, DefaultHashParams)
	if err != nil {
		return "", fmt.Errorf("local: hash password: %w", err)
	}

	id := b.newID()
	now := b.now().Format(timeLayout)
	_, err = b.store.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, strings.TrimSpace(reg.Username), strings.TrimSpace(reg.FullName), email, hash, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateEmail
		}
		return "", fmt.Errorf("local: insert user: %w", err)
	}
	b.logger.InfoContext(ctx, "user registered", "user_id", id)
	return id, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
