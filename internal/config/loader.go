package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/campus-presence/internal/model"
)

// Backend kinds accepted by CAMPUS_BACKEND.
const (
	BackendLocal = "local"
	BackendREST  = "rest"
)

// Config captures environment driven configuration for the campus client.
type Config struct {
	HTTPPort        int
	Backend         string
	BackendURL      string
	SQLitePath      string
	JWTSecret       string
	SyncInterval    time.Duration
	NotificationTTL time.Duration
	CheckInMinutes  int
	Channels        []model.Channel
	DefaultChannel  string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	SnapshotTTL     time.Duration
	AMQPURL         string
	ActivityQueue   string
	AllowedOrigins  []string
	LogLevel        slog.Level
}

// Load reads an optional .env file from the working directory and then
// parses the process environment.
func Load() (Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv files. Missing files are ignored and
// variables already present in the environment win.
func LoadFiles(files ...string) (Config, error) {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf(".env ファイルを読み込めません (%s): %w", file, err)
		}
	}
	return parse()
}

func parse() (Config, error) {
	cfg := Config{
		HTTPPort:        8080,
		Backend:         BackendLocal,
		SQLitePath:      "campus.db",
		SyncInterval:    30 * time.Second,
		NotificationTTL: 4 * time.Second,
		CheckInMinutes:  60,
		SnapshotTTL:     10 * time.Minute,
		ActivityQueue:   "campus.activity",
		LogLevel:        slog.LevelInfo,
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if v := env("CAMPUS_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "CAMPUS_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if v := strings.ToLower(env("CAMPUS_BACKEND")); v != "" {
		switch v {
		case BackendLocal, BackendREST:
			cfg.Backend = v
		default:
			invalid = append(invalid, "CAMPUS_BACKEND")
		}
	}

	cfg.BackendURL = env("CAMPUS_BACKEND_URL")
	if v := env("CAMPUS_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	cfg.JWTSecret = env("CAMPUS_JWT_SECRET")

	switch cfg.Backend {
	case BackendLocal:
		if cfg.JWTSecret == "" {
			missing = append(missing, "CAMPUS_JWT_SECRET")
		}
	case BackendREST:
		if cfg.BackendURL == "" {
			missing = append(missing, "CAMPUS_BACKEND_URL")
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CAMPUS_SYNC_INTERVAL", &cfg.SyncInterval},
		{"CAMPUS_NOTIFICATION_TTL", &cfg.NotificationTTL},
		{"CAMPUS_SNAPSHOT_TTL", &cfg.SnapshotTTL},
	}
	for _, d := range durations {
		v := env(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			invalid = append(invalid, d.key)
			continue
		}
		*d.dst = parsed
	}

	if v := env("CAMPUS_CHECKIN_DURATION"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			invalid = append(invalid, "CAMPUS_CHECKIN_DURATION")
		} else {
			cfg.CheckInMinutes = minutes
		}
	}

	if v := env("CAMPUS_DEFAULT_CHANNELS"); v != "" {
		channels, err := parseChannels(v)
		if err != nil {
			invalid = append(invalid, "CAMPUS_DEFAULT_CHANNELS")
		} else {
			cfg.Channels = channels
		}
	}
	cfg.DefaultChannel = env("CAMPUS_DEFAULT_CHANNEL")
	if cfg.DefaultChannel != "" && len(cfg.Channels) > 0 && !hasChannel(cfg.Channels, cfg.DefaultChannel) {
		invalid = append(invalid, "CAMPUS_DEFAULT_CHANNEL")
	}

	cfg.RedisAddr = env("CAMPUS_REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("CAMPUS_REDIS_PASSWORD")
	if v := env("CAMPUS_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil || db < 0 {
			invalid = append(invalid, "CAMPUS_REDIS_DB")
		} else {
			cfg.RedisDB = db
		}
	}

	cfg.AMQPURL = env("CAMPUS_AMQP_URL")
	if v := env("CAMPUS_ACTIVITY_QUEUE"); v != "" {
		cfg.ActivityQueue = v
	}

	if v := env("CAMPUS_ALLOWED_ORIGINS"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if v := env("CAMPUS_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			invalid = append(invalid, "CAMPUS_LOG_LEVEL")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// parseChannels reads "id=Label,id=Label".
func parseChannels(raw string) ([]model.Channel, error) {
	var out []model.Channel
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, label, ok := strings.Cut(part, "=")
		id, label = strings.TrimSpace(id), strings.TrimSpace(label)
		if !ok || id == "" || label == "" {
			return nil, fmt.Errorf("malformed channel %q", part)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate channel %q", id)
		}
		seen[id] = struct{}{}
		out = append(out, model.Channel{ID: id, Label: label})
	}
	if len(out) == 0 {
		return nil, errors.New("no channels")
	}
	return out, nil
}

func hasChannel(channels []model.Channel, id string) bool {
	for _, ch := range channels {
		if ch.ID == id {
			return true
		}
	}
	return false
}
