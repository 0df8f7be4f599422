// Package app opens the stores and wires the repositories described by a
// config.Config. Both the server and the CLI commands build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wolfeidau/gnome-cache/backend"
	"github.com/wolfeidau/gnome-cache/config"
	"github.com/wolfeidau/gnome-cache/events"
	"github.com/wolfeidau/gnome-cache/expiry"
	"github.com/wolfeidau/gnome-cache/repository"
	"github.com/wolfeidau/gnome-cache/store"
	"github.com/wolfeidau/gnome-cache/upstream"
)

// App holds the open stores and the repositories built on them.
type App struct {
	Config   config.Config
	DB       *store.DB
	Stamps   *expiry.Store
	Files    backend.Backend
	Upstream *upstream.Client
	Gnomes   *repository.Gnomes
	Photos   *repository.Photos
	Errors   *events.Bus

	logger *slog.Logger
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	upstreamOpts []upstream.Option
	now          func() time.Time
}

// WithUpstreamOptions adds options to the upstream client, after those
// derived from the config.
func WithUpstreamOptions(opts ...upstream.Option) Option {
	return func(o *openOptions) {
		o.upstreamOpts = append(o.upstreamOpts, opts...)
	}
}

// WithNow sets the clock used for cache expiry.
func WithNow(now func() time.Time) Option {
	return func(o *openOptions) {
		o.now = now
	}
}

// Open creates the data directories and opens every store in cfg.
func Open(cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := openOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	cfg.ApplyDefaults()

	fs, err := backend.NewFilesystem(cfg.PhotoDir)
	if err != nil {
		return nil, fmt.Errorf("creating photo backend: %w", err)
	}
	files := backend.NewInstrumentedBackend(fs, "filesystem")

	stamps := expiry.New(expiry.WithLogger(logger), expiry.WithNow(o.now))
	if err := stamps.Open(cfg.TimestampsPath); err != nil {
		return nil, fmt.Errorf("opening timestamps: %w", err)
	}

	dbCfg := store.DefaultConfig(cfg.DatabasePath)
	dbCfg.Logger = logger
	dbCfg.Debug = cfg.LogLevel == "debug"
	db, err := store.Open(dbCfg)
	if err != nil {
		_ = stamps.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	client := upstream.NewClient(append([]upstream.Option{
		upstream.WithSourceURL(cfg.SourceURL),
		upstream.WithTimeout(cfg.HTTPTimeout),
		upstream.WithUpgradeInsecure(cfg.UpgradeInsecure),
		upstream.WithUserAgent(cfg.UserAgent),
		upstream.WithLogger(logger),
	}, o.upstreamOpts...)...)

	bus := events.NewBus(events.DefaultBuffer)

	a := &App{
		Config:   cfg,
		DB:       db,
		Stamps:   stamps,
		Files:    files,
		Upstream: client,
		Errors:   bus,
		logger:   logger.With("component", "app"),
	}
	a.Gnomes = repository.NewGnomes(client, db, stamps,
		repository.WithTTL(cfg.PopulationTTL),
		repository.WithLogger(logger),
		repository.WithErrorReporter(bus),
	)
	a.Photos = repository.NewPhotos(client, db, stamps, files,
		repository.WithTTL(cfg.PhotoTTL),
		repository.WithLogger(logger),
		repository.WithErrorReporter(bus),
	)

	a.logger.Debug("opened",
		"database", cfg.DatabasePath,
		"timestamps", cfg.TimestampsPath,
		"photos", cfg.PhotoDir,
	)
	return a, nil
}

// Stats summarises what the cache currently holds.
type Stats struct {
	Gnomes            int64      `json:"gnomes"`
	Photos            int64      `json:"photos"`
	PhotoFiles        int        `json:"photo_files"`
	PopulationExpires *time.Time `json:"population_expires,omitempty"`
	PopulationValid   bool       `json:"population_valid"`
	TimestampEntries  int        `json:"timestamp_entries"`
	DroppedErrors     int64      `json:"dropped_errors"`
	SourceURL         string     `json:"source_url"`
}

// Stats collects counts from the stores.
func (a *App) Stats(ctx context.Context) (Stats, error) {
	gnomes, err := a.DB.GnomeCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	photos, err := a.DB.PhotoCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	files, err := a.Files.List(ctx, "photos/")
	if err != nil {
		return Stats{}, fmt.Errorf("listing photo files: %w", err)
	}
	entries, err := a.Stamps.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	valid, err := a.Stamps.Valid(ctx, expiry.PopulationKey)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		Gnomes:           gnomes,
		Photos:           photos,
		PhotoFiles:       len(files),
		PopulationValid:  valid,
		TimestampEntries: len(entries),
		DroppedErrors:    a.Errors.Dropped(),
		SourceURL:        a.Upstream.SourceURL(),
	}
	expires, ok, err := a.Stamps.Expiry(ctx, expiry.PopulationKey)
	if err != nil {
		return Stats{}, err
	}
	if ok {
		st.PopulationExpires = &expires
	}
	return st, nil
}

// Close closes every store.
func (a *App) Close() error {
	return errors.Join(a.DB.Close(), a.Stamps.Close())
}
