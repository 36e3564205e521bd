// Package cache keeps the last good event list in Redis so a restarted
// client can show events before its first successful sync.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/campus-presence/internal/model"
)

const (
	DefaultKey = "campus:events:snapshot"
	DefaultTTL = 10 * time.Minute
	pingWait   = 2 * time.Second
)

// Options configure the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects and pings the server. It returns nil when Redis is
// unreachable; callers run without a snapshot cache in that case.
func NewRedisClient(ctx context.Context, opts Options, logger *slog.Logger) *redis.Client {
	if opts.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, pingWait)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "redis unavailable, snapshot cache disabled", "addr", opts.Addr, "error", err)
		}
		_ = client.Close()
		return nil
	}
	return client
}

// SnapshotStore implements eventsync.SnapshotStore on a Redis string key.
type SnapshotStore struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewSnapshotStore wraps client. Empty key and non-positive ttl fall back to
// the defaults.
func NewSnapshotStore(client redis.Cmdable, key string, ttl time.Duration) *SnapshotStore {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SnapshotStore{client: client, key: key, ttl: ttl}
}

type snapshot struct {
	SavedAt time.Time     `json:"saved_at"`
	Events  []model.Event `json:"events"`
}

// LoadEvents returns the cached list; ok is false on a cache miss.
func (s *SnapshotStore) LoadEvents(ctx context.Context) ([]model.Event, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", s.key, err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", s.key, err)
	}
	if snap.Events == nil {
		snap.Events = []model.Event{}
	}
	return snap.Events, true, nil
}

// SaveEvents overwrites the cached list.
func (s *SnapshotStore) SaveEvents(ctx context.Context, events []model.Event) error {
	raw, err := json.Marshal(snapshot{SavedAt: time.Now().UTC(), Events: events})
	if err != nil {
		return fmt.Errorf("cache: encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", s.key, err)
	}
	return nil
}
