package repository

import (
	"context"
	"fmt"
	"time"

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/expiry"
	"github.com/wolfeidau/gnome-cache/task"
	"github.com/wolfeidau/gnome-cache/telemetry"
)

// Lookup is the outcome of a lookup by name. Gnome is the Absent sentinel
// when Found is false.
type Lookup struct {
	Gnome gnomecache.Gnome
	Found bool
}

// Gnomes serves the population from the store while its timestamp is valid
// and refetches it otherwise. A failed fetch is returned to the caller;
// stale rows are never served in its place.
type Gnomes struct {
	source PopulationSource
	store  GnomeStore
	stamps TimestampStore
	options
}

// NewGnomes creates a population repository.
func NewGnomes(source PopulationSource, store GnomeStore, stamps TimestampStore, opts ...Option) *Gnomes {
	return &Gnomes{
		source:  source,
		store:   store,
		stamps:  stamps,
		options: buildOptions("gnomes", opts),
	}
}

// GetPopulation returns the cached population while it is valid, otherwise
// the freshly fetched one in source order.
func (r *Gnomes) GetPopulation(ctx context.Context) ([]gnomecache.Gnome, error) {
	valid, err := r.stamps.Valid(ctx, expiry.PopulationKey)
	if err != nil {
		r.logger.Warn("reading population timestamp", "error", err)
		r.reporter.Report(err)
		valid = false
	}

	if valid {
		gnomes, err := r.store.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading cached population: %w", err)
		}
		telemetry.RecordCacheLookup(ctx, telemetry.ResourcePopulation, telemetry.CacheHit)
		r.logger.Debug("population cache hit", "count", len(gnomes))
		return gnomes, nil
	}

	telemetry.RecordCacheLookup(ctx, telemetry.ResourcePopulation, telemetry.CacheMiss)
	return r.fetch(ctx)
}

func (r *Gnomes) fetch(ctx context.Context) ([]gnomecache.Gnome, error) {
	start := time.Now()
	gnomes, err := r.source.FetchPopulation(ctx)
	if err != nil {
		r.logger.Warn("fetching population", "error", err, "kind", gnomecache.Kind(err))
		return nil, err
	}

	gnomes = r.uniqueByID(gnomes)

	if err := r.store.ReplaceAll(ctx, gnomes); err != nil {
		// the timestamp stays expired so the next call refetches
		r.logger.Error("storing population", "error", err)
		r.reporter.Report(err)
		return gnomes, nil
	}

	expires, err := r.stamps.Refresh(ctx, expiry.PopulationKey, r.ttl)
	if err != nil {
		r.logger.Error("refreshing population timestamp", "error", err)
		r.reporter.Report(err)
		return gnomes, nil
	}

	telemetry.RecordPopulationSize(ctx, len(gnomes))
	r.logger.Info("population refreshed",
		"count", len(gnomes),
		"expires_at", expires,
		"duration", time.Since(start),
	)
	return gnomes, nil
}

// uniqueByID drops records whose id was already seen. The first record
// with an id wins.
func (r *Gnomes) uniqueByID(gnomes []gnomecache.Gnome) []gnomecache.Gnome {
	seen := make(map[int]struct{}, len(gnomes))
	out := make([]gnomecache.Gnome, 0, len(gnomes))
	for _, g := range gnomes {
		if _, dup := seen[g.ID]; dup {
			r.logger.Warn("dropping gnome with duplicate id", "id", g.ID, "name", g.Name)
			continue
		}
		seen[g.ID] = struct{}{}
		out = append(out, g)
	}
	return out
}

// GetByName looks a gnome up in the store. It never triggers a fetch, so
// it only sees what the last successful GetPopulation stored.
func (r *Gnomes) GetByName(ctx context.Context, name string) (gnomecache.Gnome, bool, error) {
	g, ok, err := r.store.ByName(ctx, name)
	if err != nil {
		return gnomecache.Absent(), false, fmt.Errorf("looking up %q: %w", name, err)
	}
	if !ok {
		return gnomecache.Absent(), false, nil
	}
	return g, true, nil
}

// Refresh discards the population timestamp and fetches again.
func (r *Gnomes) Refresh(ctx context.Context) ([]gnomecache.Gnome, error) {
	if err := r.stamps.Invalidate(ctx, expiry.PopulationKey); err != nil {
		return nil, fmt.Errorf("invalidating population: %w", err)
	}
	return r.GetPopulation(ctx)
}

// GetPopulationAsync runs GetPopulation in the background.
func (r *Gnomes) GetPopulationAsync(ctx context.Context) <-chan task.Result[[]gnomecache.Gnome] {
	return task.Go(ctx, r.GetPopulation)
}

// GetByNameAsync runs GetByName in the background.
func (r *Gnomes) GetByNameAsync(ctx context.Context, name string) <-chan task.Result[Lookup] {
	return task.Go(ctx, func(ctx context.Context) (Lookup, error) {
		g, ok, err := r.GetByName(ctx, name)
		return Lookup{Gnome: g, Found: ok}, err
	})
}
