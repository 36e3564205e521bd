package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/campus-presence/internal/backend/local"
)

// LocalHarness provides a migrated, seeded local backend stored in a
// temporary SQLite file for integration-style tests.
type LocalHarness struct {
	Backend *local.Backend
	Store   *local.Store
	Clock   *Clock
	IDs     *IDGenerator

	cleanup func()
}

// DemoPassword is the password of every account created by the harness.
const DemoPassword = "correct-horse-battery"

// Close releases resources associated with the harness.
func (h *LocalHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewLocalHarness constructs a LocalHarness seeded with the demo locations.
// Callers may optionally invoke Close, but the helper will also register a
// cleanup callback with the provided testing.TB.
func NewLocalHarness(tb testing.TB) *LocalHarness {
	tb.Helper()

	dir := tb.TempDir()
	path := filepath.Join(dir, "campus.db")

	store, err := local.OpenStore(path)
	if err != nil {
		tb.Fatalf("failed to open store: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate store: %v", err)
	}

	clock := NewClock(ReferenceTime())
	ids := NewIDGenerator("rec")
	b, err := local.New(store, "harness-secret",
		local.WithNow(clock.NowFunc()),
		local.WithIDGenerator(ids.NextFunc()),
	)
	if err != nil {
		_ = store.Close()
		tb.Fatalf("failed to build backend: %v", err)
	}

	if _, err := b.Seed(context.Background(), local.DemoLocations, local.Registration{}); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to seed store: %v", err)
	}

	harness := &LocalHarness{
		Backend: b,
		Store:   store,
		Clock:   clock,
		IDs:     ids,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// Register creates an account named username with DemoPassword and returns
// its id and email.
func (h *LocalHarness) Register(tb testing.TB, username string) (string, string) {
	tb.Helper()
	email := username + "@campus.test"
	id, err := h.Backend.Register(context.Background(), local.Registration{
		Username: username,
		FullName: username,
		Email:    email,
		Password: DemoPassword,
	})
	if err != nil {
		tb.Fatalf("failed to register %s: %v", username, err)
	}
	return id, email
}
