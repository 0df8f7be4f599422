package repository

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/backend"
	"github.com/wolfeidau/gnome-cache/expiry"
	"github.com/wolfeidau/gnome-cache/task"
	"github.com/wolfeidau/gnome-cache/telemetry"
)

// JPEGQuality is the quality cached photos are encoded with.
const JPEGQuality = 85

// Photos caches gnome photos as JPEG files. Each photo has its own
// timestamp; while it is valid the stored file is decoded and any failure
// to do so is returned rather than refetched.
type Photos struct {
	source ImageSource
	paths  PhotoPathStore
	stamps TimestampStore
	files  backend.Backend
	options
}

// NewPhotos creates a photo repository writing files to files.
func NewPhotos(source ImageSource, paths PhotoPathStore, stamps TimestampStore, files backend.Backend, opts ...Option) *Photos {
	return &Photos{
		source:  source,
		paths:   paths,
		stamps:  stamps,
		files:   files,
		options: buildOptions("photos", opts),
	}
}

// GetPhoto returns the photo for src.
func (p *Photos) GetPhoto(ctx context.Context, src string) (image.Image, error) {
	name := gnomecache.PhotoName(src)
	key := expiry.PhotoKey(name)

	valid, err := p.stamps.Valid(ctx, key)
	if err != nil {
		p.logger.Warn("reading photo timestamp", "src", src, "error", err)
		p.reporter.Report(err)
		valid = false
	}

	if valid {
		telemetry.RecordCacheLookup(ctx, telemetry.ResourcePhoto, telemetry.CacheHit)
		return p.load(ctx, src)
	}

	telemetry.RecordCacheLookup(ctx, telemetry.ResourcePhoto, telemetry.CacheMiss)
	img, err := p.source.FetchImage(ctx, src)
	if err != nil {
		p.logger.Warn("fetching photo", "src", src, "error", err, "kind", gnomecache.Kind(err))
		return nil, err
	}

	if err := p.save(ctx, src, name, key, img); err != nil {
		p.logger.Error("caching photo", "src", src, "error", err)
		p.reporter.Report(err)
	}
	return img, nil
}

func (p *Photos) load(ctx context.Context, src string) (image.Image, error) {
	path, ok, err := p.paths.PhotoPath(ctx, src)
	if err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrDecode, "looking up photo path for %s: %w", src, err)
	}
	if !ok {
		return nil, gnomecache.Errorf(gnomecache.ErrDecode, "no cached photo for %s", src)
	}

	fileKey := gnomecache.PhotoFileKey(src)
	if want := p.files.Location(fileKey); path != want {
		return nil, gnomecache.Errorf(gnomecache.ErrDecode, "cached photo for %s recorded at %s, expected %s", src, path, want)
	}

	rc, err := p.files.Read(ctx, fileKey)
	if err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrDecode, "opening cached photo: %w", err)
	}
	defer func() { _ = rc.Close() }()

	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrDecode, "decoding cached photo %s: %w", path, err)
	}
	p.logger.Debug("photo cache hit", "src", src, "path", path)
	return img, nil
}

// save writes img and records where it went. The timestamp is refreshed
// only once both the file and its path are stored.
func (p *Photos) save(ctx context.Context, src, name, key string, img image.Image) error {
	fileKey := gnomecache.PhotoFileKey(src)
	w, err := p.files.Writer(ctx, fileKey)
	if err != nil {
		return gnomecache.Errorf(gnomecache.ErrStorage, "opening photo file: %w", err)
	}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		backend.Abort(w)
		return gnomecache.Errorf(gnomecache.ErrStorage, "encoding photo: %w", err)
	}
	if err := w.Close(); err != nil {
		return gnomecache.Errorf(gnomecache.ErrStorage, "committing photo file: %w", err)
	}

	path := p.files.Location(fileKey)
	if err := p.paths.PutPhotoPath(ctx, src, path); err != nil {
		return fmt.Errorf("recording photo path: %w", err)
	}
	if _, err := p.stamps.Refresh(ctx, key, p.ttl); err != nil {
		return fmt.Errorf("refreshing photo timestamp: %w", err)
	}

	p.logger.Debug("photo cached", "src", src, "name", name, "path", path)
	return nil
}

// GetPhotoAsync runs GetPhoto in the background.
func (p *Photos) GetPhotoAsync(ctx context.Context, src string) <-chan task.Result[image.Image] {
	return task.Go(ctx, func(ctx context.Context) (image.Image, error) {
		return p.GetPhoto(ctx, src)
	})
}
