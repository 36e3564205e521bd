package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/example/campus-presence/internal/activity"
	"github.com/example/campus-presence/internal/application"
	"github.com/example/campus-presence/internal/backend"
	"github.com/example/campus-presence/internal/backend/local"
	"github.com/example/campus-presence/internal/backend/rest"
	"github.com/example/campus-presence/internal/cache"
	"github.com/example/campus-presence/internal/config"
)

// app owns every long-lived dependency of a command.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	client backend.Client
	local  *local.Backend
	store  *local.Store
	redis  *redis.Client
	amqp   *activity.AMQPPublisher
	core   *application.Orchestrator
}

type restorer interface {
	Restore(token string) error
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	switch cfg.Backend {
	case config.BackendREST:
		client, err := rest.NewClient(cfg.BackendURL, rest.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("build rest backend: %w", err)
		}
		a.client = client
	default:
		store, err := local.OpenStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = store
		if err := store.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		b, err := local.New(store, cfg.JWTSecret, local.WithLogger(logger))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("build local backend: %w", err)
		}
		a.local = b
		a.client = b
	}

	if tokenFlag != "" {
		if r, ok := a.client.(restorer); ok {
			if err := r.Restore(tokenFlag); err != nil {
				a.Close()
				return nil, fmt.Errorf("restore session: %w", err)
			}
		}
	}

	opts := []application.Option{
		application.WithLogger(logger),
		application.WithSyncInterval(cfg.SyncInterval),
		application.WithNotificationTTL(cfg.NotificationTTL),
		application.WithCheckInMinutes(cfg.CheckInMinutes),
	}
	if len(cfg.Channels) > 0 {
		opts = append(opts, application.WithStaticChannels(cfg.Channels))
	}
	if cfg.DefaultChannel != "" {
		opts = append(opts, application.WithDefaultChannel(cfg.DefaultChannel))
	}

	a.redis = cache.NewRedisClient(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if a.redis != nil {
		opts = append(opts, application.WithSnapshotStore(cache.NewSnapshotStore(a.redis, cache.DefaultKey, cfg.SnapshotTTL)))
	}

	if cfg.AMQPURL != "" {
		pub, err := activity.DialAMQP(cfg.AMQPURL, cfg.ActivityQueue, logger)
		if err != nil {
			logger.WarnContext(ctx, "activity publisher unavailable", "error", err)
		} else {
			a.amqp = pub
			opts = append(opts, application.WithPublisher(pub))
		}
	}

	core, err := application.New(a.client, opts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	a.core = core
	return a, nil
}

// Close releases resources in reverse construction order.
func (a *app) Close() {
	if a.core != nil {
		a.core.Close()
	}
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Error("failed to close activity publisher", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("failed to close redis", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close storage", "error", err)
		}
	}
}

func openApp(ctx context.Context) *app {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load configuration", err)
	}
	a, err := buildApp(ctx, cfg, newLogger(cfg, os.Stderr))
	if err != nil {
		exitErr("start", err)
	}
	return a
}
