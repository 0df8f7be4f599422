// Package repository decides between the local cache and the remote source
// for the gnome population and for each gnome's photo.
package repository

import (
	"context"
	"image"
	"log/slog"
	"time"

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/events"
)

// PopulationSource fetches the full population from the source of truth.
type PopulationSource interface {
	FetchPopulation(ctx context.Context) ([]gnomecache.Gnome, error)
}

// ImageSource fetches a photo, already scaled for display.
type ImageSource interface {
	FetchImage(ctx context.Context, url string) (image.Image, error)
}

// GnomeStore holds the cached population.
type GnomeStore interface {
	ReplaceAll(ctx context.Context, gnomes []gnomecache.Gnome) error
	All(ctx context.Context) ([]gnomecache.Gnome, error)
	ByName(ctx context.Context, name string) (gnomecache.Gnome, bool, error)
}

// PhotoPathStore maps a photo source URL to the file holding it.
type PhotoPathStore interface {
	PutPhotoPath(ctx context.Context, src, path string) error
	PhotoPath(ctx context.Context, src string) (string, bool, error)
}

// TimestampStore tracks when each cache key expires.
type TimestampStore interface {
	Valid(ctx context.Context, key string) (bool, error)
	Refresh(ctx context.Context, key string, ttl time.Duration) (time.Time, error)
	Invalidate(ctx context.Context, key string) error
}

// DefaultTTL applies to both the population and photos.
const DefaultTTL = 15 * time.Minute

type options struct {
	ttl      time.Duration
	logger   *slog.Logger
	reporter events.Reporter
}

// Option configures a repository.
type Option func(*options)

// WithTTL sets how long a fetched result stays valid.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithErrorReporter sets where errors that do not fail a call are sent.
func WithErrorReporter(r events.Reporter) Option {
	return func(o *options) {
		if r != nil {
			o.reporter = r
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		ttl:      DefaultTTL,
		logger:   slog.Default(),
		reporter: events.Discard,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", component)
	return o
}
