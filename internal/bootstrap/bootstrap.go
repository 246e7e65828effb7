// Package bootstrap assembles the client core from configuration: cache
// backend, remote client, poller, orchestrator and the optional NATS feed.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docsync/internal/config"
	"github.com/kirillkom/docsync/internal/core/cache"
	"github.com/kirillkom/docsync/internal/core/domain"
	"github.com/kirillkom/docsync/internal/core/poller"
	"github.com/kirillkom/docsync/internal/core/ports"
	"github.com/kirillkom/docsync/internal/core/usecase"
	"github.com/kirillkom/docsync/internal/infrastructure/identity"
	"github.com/kirillkom/docsync/internal/infrastructure/kv/localfs"
	"github.com/kirillkom/docsync/internal/infrastructure/kv/postgres"
	"github.com/kirillkom/docsync/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docsync/internal/infrastructure/remote"
)

type App struct {
	Config config.Config

	Artifacts ports.ArtifactService
	Watcher   ports.StatusWatcher
	Cache     ports.ArtifactCache
	Feed      *nats.Feed

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	var (
		kv ports.PersistentKV
		db *sql.DB
	)
	switch cfg.CacheBackend {
	case "postgres":
		var err error
		db, err = postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		store := postgres.NewBlobStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure cache schema: %w", err)
		}
		kv = store
	case "memory":
		kv = nil
	default:
		store, err := localfs.New(cfg.CacheBlobPath)
		if err != nil {
			return nil, fmt.Errorf("init cache file: %w", err)
		}
		kv = store
	}

	artifactCache := cache.New(kv)

	token := func() string { return cfg.RemoteAPIToken }
	client := remote.New(cfg.RemoteAPIURL, remote.Options{Token: token})
	resolver := identity.NewResolver(token)

	var feed *nats.Feed
	if cfg.NATSEnabled {
		var err error
		feed, err = nats.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, fmt.Errorf("init invalidation feed: %w", err)
		}
	}

	var feedPort ports.InvalidationFeed
	if feed != nil {
		feedPort = feed
	}

	syncUC := usecase.NewSyncArtifactUseCase(client, artifactCache, client, resolver, feedPort, cfg.CacheTTL)
	watcher := poller.New(client)

	return &App{
		Config:    cfg,
		Artifacts: syncUC,
		Watcher:   watcher,
		Cache:     artifactCache,
		Feed:      feed,

		closeFn: func() {
			if feed != nil {
				feed.Close()
			}
			if db != nil {
				_ = db.Close()
			}
		},
	}, nil
}

// RunFeed consumes subject events until ctx ends. Deleted and updated
// subjects both drop their cached artifacts; the next request regenerates
// against the new generation. The purge is local only, never republished,
// so instances cannot feed each other's events back into the subject.
func (a *App) RunFeed(ctx context.Context) error {
	if a.Feed == nil {
		return nil
	}
	return a.Feed.Subscribe(ctx, func(_ context.Context, event domain.SubjectEvent) error {
		slog.Info("subject_event", "event", string(event.Kind), "subject_id", event.SubjectID)
		a.Cache.PurgeSubject(event.SubjectID)
		return nil
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
