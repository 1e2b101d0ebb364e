// Package app wires the configured pieces into a runnable server: store
// backend, vector index, embedder, repository, search service, ingest
// source and both protocol transports.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"laptopmcp/internal/config"
	"laptopmcp/internal/embed"
	"laptopmcp/internal/index"
	"laptopmcp/internal/ingest"
	"laptopmcp/internal/mcp"
	"laptopmcp/internal/model"
	"laptopmcp/internal/repository"
	"laptopmcp/internal/search"
	"laptopmcp/internal/store"
)

type App struct {
	cfg *config.Config

	Repo    *repository.SearchRepository
	Service *search.Service
}

// New builds the full stack from config. The metadata store is opened and
// the persisted vector index is loaded before New returns.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	metaStore, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	vecIndex := index.NewCosineIndex(cfg.Index.Path)
	embedder := embed.NewClient(cfg.Embed.BaseURL, cfg.Embed.APIKey, cfg.Embed.Model, cfg.Embed.Dimension)
	repo := repository.New(metaStore, vecIndex, embedder, cfg.Index.Path)
	if err := repo.LoadIndex(); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("load vector index: %w", err)
	}

	var source ingest.Source
	if cfg.Ingest.FeedURL != "" {
		source = ingest.NewFeedSource(cfg.Ingest.FeedURL, cfg.Ingest.Timeout.Duration)
	} else {
		// no feed configured; refresh_laptop_data becomes a no-op
		source = &ingest.StaticSource{}
	}

	return &App{
		cfg:     cfg,
		Repo:    repo,
		Service: search.NewService(repo, embedder, source),
	}, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (model.MetadataStore, error) {
	var metaStore model.MetadataStore
	switch cfg.Store.Backend {
	case "redis":
		metaStore = store.NewRedisStore(cfg.Store.RedisAddr, cfg.Store.RedisDB)
	case "sqlite":
		metaStore = store.NewSQLiteStore(cfg.Store.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
	if err := metaStore.Init(ctx); err != nil {
		return nil, fmt.Errorf("init %s store: %w", cfg.Store.Backend, err)
	}
	return metaStore, nil
}

// Run serves both transports (and the refresh scheduler when configured)
// until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	dispatcher := mcp.NewDispatcher(a.Service)

	httpServer, err := mcp.NewServer(mcp.ServerOptions{
		ListenAddr: a.cfg.Server.Listen,
		MCPPath:    a.cfg.Server.MCPPath,
		KeepAlive:  a.cfg.Server.KeepAlive.Duration,
		Dispatcher: dispatcher,
		Health:     a.Repo.IsConnected,
	})
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return httpServer.Serve(groupCtx) })

	if a.cfg.Server.TCPListen != "" {
		tcpServer := mcp.NewTCPServer(a.cfg.Server.TCPListen, dispatcher)
		group.Go(func() error { return tcpServer.Serve(groupCtx) })
	}

	if a.cfg.Ingest.Interval.Duration > 0 {
		scheduler := ingest.NewScheduler(a.Service, a.cfg.Ingest.Interval.Duration)
		group.Go(func() error { return scheduler.Run(groupCtx) })
	}

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		slog.Info("server stopped")
		return nil
	}
	return err
}

// Close persists the index and releases the store.
func (a *App) Close() error {
	return a.Repo.Close()
}
