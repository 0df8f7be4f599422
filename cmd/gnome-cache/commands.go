package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/filter"
	"github.com/wolfeidau/gnome-cache/placeholder"
)

// OutputFlags is embedded by commands that print gnomes.
type OutputFlags struct {
	JSON bool `help:"Print JSON instead of a table."`
}

func (o OutputFlags) printGnomes(w io.Writer, gs []gnomecache.Gnome) error {
	if o.JSON {
		return printJSON(w, gs)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tAGE\tHEIGHT\tWEIGHT\tHAIR\tGENDER\tFRIENDS\tPROFESSIONS")
	for _, g := range gs {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\t%d\t%s\n",
			g.Name, g.Age, g.Height, g.Weight, g.HairColor, g.Gender(), g.FriendCount(),
			strings.Join(g.Professions, ", "))
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ListCmd lists the population.
type ListCmd struct {
	OutputFlags
	Query string `short:"q" help:"Only gnomes whose name contains this text, ignoring case."`
}

func (c *ListCmd) Run(g *Globals) error {
	a, _, err := g.open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	pop, err := a.Gnomes.GetPopulation(ctx)
	if err != nil {
		return err
	}
	return c.printGnomes(os.Stdout, filter.Search(filter.SortByName(pop), c.Query))
}

// ShowCmd prints one gnome.
type ShowCmd struct {
	Name string `arg:"" help:"Gnome name."`
}

func (c *ShowCmd) Run(g *Globals) error {
	a, _, err := g.open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	gn, ok, err := a.Gnomes.GetByName(ctx, c.Name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no gnome named %q (run list to load the population)", c.Name)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Name\t%s\n", gn.Name)
	_, _ = fmt.Fprintf(tw, "ID\t%d\n", gn.ID)
	_, _ = fmt.Fprintf(tw, "Age\t%d\n", gn.Age)
	_, _ = fmt.Fprintf(tw, "Height\t%d\n", gn.Height)
	_, _ = fmt.Fprintf(tw, "Weight\t%d\n", gn.Weight)
	_, _ = fmt.Fprintf(tw, "Hair\t%s\n", gn.HairColor)
	_, _ = fmt.Fprintf(tw, "Gender\t%s\n", gn.Gender())
	_, _ = fmt.Fprintf(tw, "Professions\t%s\n", strings.Join(gn.Professions, ", "))
	_, _ = fmt.Fprintf(tw, "Friends\t%s\n", strings.Join(gn.Friends, ", "))
	_, _ = fmt.Fprintf(tw, "Thumbnail\t%s\n", gn.ThumbnailURL)
	return tw.Flush()
}

// FilterCmd narrows the population by criteria.
type FilterCmd struct {
	OutputFlags
	Age        string   `help:"Age range, lo-hi."`
	Height     string   `help:"Height range, lo-hi."`
	Weight     string   `help:"Weight range, lo-hi."`
	Friends    string   `help:"Friend count range, lo-hi."`
	Hair       []string `help:"Accepted hair colours." sep:","`
	Profession []string `help:"Professions a gnome must all have." sep:","`
}

func (c *FilterCmd) criteria(base filter.Criteria) (filter.Criteria, error) {
	for _, rg := range []struct {
		value string
		dst   *filter.Range
	}{
		{c.Age, &base.Age},
		{c.Height, &base.Height},
		{c.Weight, &base.Weight},
		{c.Friends, &base.Friends},
	} {
		if rg.value == "" {
			continue
		}
		r, err := filter.ParseRange(rg.value)
		if err != nil {
			return base, err
		}
		*rg.dst = r
	}
	base.HairColors = c.Hair
	base.Professions = c.Profession
	return base, nil
}

func (c *FilterCmd) Run(g *Globals) error {
	a, _, err := g.open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	pop, err := a.Gnomes.GetPopulation(ctx)
	if err != nil {
		return err
	}
	facets, err := filter.Derive(pop)
	if errors.Is(err, filter.ErrEmpty) {
		return c.printGnomes(os.Stdout, nil)
	}
	criteria, err := c.criteria(filter.DefaultCriteria(facets))
	if err != nil {
		return err
	}
	return c.printGnomes(os.Stdout, filter.Filter(pop, criteria))
}

// FacetsCmd prints the population's ranges and categories.
type FacetsCmd struct {
	OutputFlags
}

func (c *FacetsCmd) Run(g *Globals) error {
	a, _, err := g.open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	pop, err := a.Gnomes.GetPopulation(ctx)
	if err != nil {
		return err
	}
	f, err := filter.Derive(pop)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(os.Stdout, f)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Gnomes\t%d\n", f.Count)
	_, _ = fmt.Fprintf(tw, "Age\t%s\n", f.Age)
	_, _ = fmt.Fprintf(tw, "Height\t%s\n", f.Height)
	_, _ = fmt.Fprintf(tw, "Weight\t%s\n", f.Weight)
	_, _ = fmt.Fprintf(tw, "Friends\t%s\n", f.Friends)
	_, _ = fmt.Fprintf(tw, "Hair\t%s\n", strings.Join(f.HairColors, ", "))
	_, _ = fmt.Fprintf(tw, "Professions\t%s\n", strings.Join(f.Professions, ", "))
	return tw.Flush()
}

// PhotoCmd writes a gnome's photo to a file.
type PhotoCmd struct {
	Name string `arg:"" help:"Gnome name."`
	Out  string `short:"o" required:"" type:"path" help:"Output file; .png writes PNG, anything else JPEG."`
}

func (c *PhotoCmd) Run(g *Globals) error {
	a, logger, err := g.open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	if _, err := a.Gnomes.GetPopulation(ctx); err != nil {
		logger.Warn("loading population", "error", err)
	}
	gn, ok, err := a.Gnomes.GetByName(ctx, c.Name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no gnome named %q", c.Name)
	}

	img, err := a.Photos.GetPhoto(ctx, gn.ThumbnailURL)
	if err != nil {
		logger.Warn("using placeholder", "name", gn.Name, "error", err)
	}
	return writeImageFile(c.Out, placeholder.Or(img, err, gn.Name))
}

func writeImageFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".png") {
		err = png.Encode(f, img)
	} else {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 85})
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// PrefetchCmd loads every gnome's photo into the cache.
type PrefetchCmd struct {
	Concurrency int `default:"8" help:"Photos fetched at once."`
}

func (c *PrefetchCmd) Run(g *Globals) error {
	a, logger, err := g.open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	pop, err := a.Gnomes.GetPopulation(ctx)
	if err != nil {
		return err
	}

	var failed atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(c.Concurrency, 1))
	for _, gn := range pop {
		eg.Go(func() error {
			if _, err := a.Photos.GetPhoto(egCtx, gn.ThumbnailURL); err != nil {
				failed.Add(1)
				logger.Warn("prefetching photo", "name", gn.Name, "error", err, "kind", gnomecache.Kind(err))
			}
			return egCtx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	logger.Info("prefetch complete", "gnomes", len(pop), "failed", failed.Load())
	return nil
}

// RefreshCmd forces a population refetch.
type RefreshCmd struct{}

func (c *RefreshCmd) Run(g *Globals) error {
	a, logger, err := g.open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	pop, err := a.Gnomes.Refresh(ctx)
	if err != nil {
		return err
	}
	logger.Info("population refreshed", "gnomes", len(pop))
	return nil
}

// StatsCmd prints cache statistics as JSON.
type StatsCmd struct{}

func (c *StatsCmd) Run(g *Globals) error {
	a, _, err := g.open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	st, err := a.Stats(context.Background())
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, st)
}
