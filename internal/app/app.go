// Package app wires the watchlist store and its collaborators from
// configuration. Every binary opens the same App.
package app

import (
	"fmt"
	"log/slog"

	"tickerdesk/internal/config"
	"tickerdesk/internal/mirror"
	"tickerdesk/internal/placeholder"
	"tickerdesk/internal/remote"
	"tickerdesk/internal/snapshot"
	"tickerdesk/internal/store"
	"tickerdesk/internal/watchlist"
)

// App holds the opened components.
type App struct {
	Config   *config.Config
	Store    *watchlist.Store
	KV       *store.SQLiteKV
	Snapshot *snapshot.Loader
	Remote   *remote.Client
	Archive  *store.ParquetArchive // nil unless watchlist.archive is set
	Mirror   *mirror.Alpaca        // nil unless Alpaca credentials are set
}

// Open opens local storage and builds the store. The caller must Close the
// returned App.
func Open(cfg *config.Config, logger *slog.Logger) (*App, error) {
	kv, err := store.NewSQLiteKV(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening local storage: %w", err)
	}

	a := &App{
		Config:   cfg,
		KV:       kv,
		Snapshot: snapshot.NewLoader(cfg.Snapshot.Source, cfg.Snapshot.Timeout),
		Remote: remote.NewClient(remote.Options{
			APIURL:          cfg.GitHub.APIURL,
			ListPath:        cfg.GitHub.ListPath,
			Workflow:        cfg.GitHub.Workflow,
			Branch:          cfg.GitHub.Branch,
			RateLimitPerMin: cfg.GitHub.RateLimitPerMin,
			Timeout:         cfg.GitHub.Timeout,
		}),
	}

	opts := watchlist.Options{
		Snapshot:        a.Snapshot,
		KV:              kv,
		Remote:          a.Remote,
		RefreshInterval: cfg.Watchlist.RefreshInterval,
		TriggerWatch:    cfg.Watchlist.TriggerWatch,
		Logger:          logger.With("component", "watchlist"),
	}
	if cfg.Watchlist.Placeholders {
		opts.Placeholders = placeholder.NewRandomWalk()
	} else {
		opts.Placeholders = placeholder.Disabled{}
	}
	if cfg.Watchlist.Archive {
		a.Archive = store.NewParquetArchive(cfg.Storage.DataDir)
		opts.Archive = a.Archive
	}
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		a.Mirror = mirror.NewAlpaca(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Alpaca.Watchlist)
		opts.Mirror = a.Mirror
		logger.Info("alpaca client initialized for watchlist", "watchlist", cfg.Alpaca.Watchlist)
	}

	a.Store = watchlist.New(opts)
	return a, nil
}

// Close stops background work and closes local storage.
func (a *App) Close() error {
	a.Store.Close()
	return a.KV.Close()
}
