package repository

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/expiry"
	"github.com/wolfeidau/gnome-cache/placeholder"
	"github.com/wolfeidau/gnome-cache/task"
)

const photoSrc = "http://example.com/photos/tobus.jpg"

func solid(c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := range 100 {
		for x := range 100 {
			img.Set(x, y, c)
		}
	}
	return img
}

func newTestPhotos(t *testing.T, source ImageSource) (*Photos, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	repo := NewPhotos(source, env.db, env.stamps, env.files, WithErrorReporter(env.reporter))
	return repo, env
}

func TestGetPhoto_MissFetchesAndCaches(t *testing.T) {
	source := &fakeImageSource{img: solid(color.RGBA{G: 200, A: 255})}
	repo, env := newTestPhotos(t, source)
	ctx := context.Background()

	img, err := repo.GetPhoto(ctx, photoSrc)
	require.NoError(t, err)
	assert.Same(t, source.img, img)

	path, ok, err := env.db.PhotoPath(ctx, photoSrc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, env.files.Location(gnomecache.PhotoFileKey(photoSrc)), path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	valid, err := env.stamps.Valid(ctx, expiry.PhotoKey(gnomecache.PhotoName(photoSrc)))
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestGetPhoto_HitDecodesCachedFile(t *testing.T) {
	source := &fakeImageSource{img: solid(color.RGBA{G: 200, A: 255})}
	repo, env := newTestPhotos(t, source)
	ctx := context.Background()

	_, err := repo.GetPhoto(ctx, photoSrc)
	require.NoError(t, err)
	env.clock.Advance(DefaultTTL - time.Second)

	img, err := repo.GetPhoto(ctx, photoSrc)
	require.NoError(t, err)
	assert.Equal(t, 1, source.Calls())
	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())

	// JPEG is lossy; the colour should survive approximately
	_, g, _, _ := img.At(50, 50).RGBA()
	assert.InDelta(t, 200, g>>8, 8)
}

func TestGetPhoto_ExpiredRefetches(t *testing.T) {
	source := &fakeImageSource{img: solid(color.White)}
	repo, env := newTestPhotos(t, source)
	ctx := context.Background()

	_, err := repo.GetPhoto(ctx, photoSrc)
	require.NoError(t, err)
	env.clock.Advance(DefaultTTL)

	_, err = repo.GetPhoto(ctx, photoSrc)
	require.NoError(t, err)
	assert.Equal(t, 2, source.Calls())
}

func TestGetPhoto_TransportErrorFallsBackToPlaceholder(t *testing.T) {
	source := &fakeImageSource{err: errUpstream}
	repo, env := newTestPhotos(t, source)
	ctx := context.Background()

	img, err := repo.GetPhoto(ctx, photoSrc)
	require.ErrorIs(t, err, gnomecache.ErrTransport)
	assert.Nil(t, img)

	shown := placeholder.Or(img, err, "Tobus Quickwhistle")
	assert.Equal(t, image.Rect(0, 0, placeholder.Size, placeholder.Size), shown.Bounds())
	assert.Equal(t, "TQ", placeholder.Initials("Tobus Quickwhistle"))

	_, ok, err := env.db.PhotoPath(ctx, photoSrc)
	require.NoError(t, err)
	assert.False(t, ok, "nothing cached on failure")
}

func TestGetPhoto_CorruptCachedFileIsDecodeError(t *testing.T) {
	source := &fakeImageSource{img: solid(color.White)}
	repo, env := newTestPhotos(t, source)
	ctx := context.Background()

	_, err := repo.GetPhoto(ctx, photoSrc)
	require.NoError(t, err)

	path, _, err := env.db.PhotoPath(ctx, photoSrc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err = repo.GetPhoto(ctx, photoSrc)
	require.ErrorIs(t, err, gnomecache.ErrDecode)
	assert.Equal(t, 1, source.Calls(), "no silent refetch")
}

func TestGetPhoto_MissingCachedFileIsDecodeError(t *testing.T) {
	source := &fakeImageSource{img: solid(color.White)}
	repo, env := newTestPhotos(t, source)
	ctx := context.Background()

	_, err := repo.GetPhoto(ctx, photoSrc)
	require.NoError(t, err)

	path, _, err := env.db.PhotoPath(ctx, photoSrc)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	_, err = repo.GetPhoto(ctx, photoSrc)
	require.ErrorIs(t, err, gnomecache.ErrDecode)
}

func TestGetPhoto_MovedPathIsDecodeError(t *testing.T) {
	source := &fakeImageSource{img: solid(color.White)}
	repo, env := newTestPhotos(t, source)
	ctx := context.Background()

	_, err := repo.GetPhoto(ctx, photoSrc)
	require.NoError(t, err)
	require.NoError(t, env.db.PutPhotoPath(ctx, photoSrc, filepath.Join(t.TempDir(), "elsewhere.jpg")))

	_, err = repo.GetPhoto(ctx, photoSrc)
	require.ErrorIs(t, err, gnomecache.ErrDecode)
	assert.Equal(t, 1, source.Calls())
}

func TestGetPhoto_MissingPathRowIsDecodeError(t *testing.T) {
	env := newTestEnv(t)
	source := &fakeImageSource{img: solid(color.White)}
	repo := NewPhotos(source, env.db, env.stamps, env.files)
	ctx := context.Background()

	_, err := env.stamps.Refresh(ctx, expiry.PhotoKey(gnomecache.PhotoName(photoSrc)), time.Hour)
	require.NoError(t, err)

	_, err = repo.GetPhoto(ctx, photoSrc)
	require.ErrorIs(t, err, gnomecache.ErrDecode)
	assert.Zero(t, source.Calls())
}

func TestGetPhoto_StorageFailureStillReturnsImage(t *testing.T) {
	env := newTestEnv(t)
	source := &fakeImageSource{img: solid(color.White)}
	repo := NewPhotos(source, failingPathStore{PhotoPathStore: env.db}, env.stamps, env.files,
		WithErrorReporter(env.reporter))
	ctx := context.Background()

	img, err := repo.GetPhoto(ctx, photoSrc)
	require.NoError(t, err)
	assert.NotNil(t, img)
	assert.True(t, isKind(env.reporter.Errors(), gnomecache.ErrStorage))

	valid, err := env.stamps.Valid(ctx, expiry.PhotoKey(gnomecache.PhotoName(photoSrc)))
	require.NoError(t, err)
	assert.False(t, valid, "timestamp only refreshed after both writes")
}

func TestGetPhoto_SeparateTTLPerPhoto(t *testing.T) {
	source := &fakeImageSource{img: solid(color.White)}
	repo, env := newTestPhotos(t, source)
	ctx := context.Background()

	_, err := repo.GetPhoto(ctx, photoSrc)
	require.NoError(t, err)
	env.clock.Advance(10 * time.Minute)
	_, err = repo.GetPhoto(ctx, "http://example.com/photos/fizkin.jpg")
	require.NoError(t, err)
	env.clock.Advance(6 * time.Minute)

	_, err = repo.GetPhoto(ctx, photoSrc)
	require.NoError(t, err)
	_, err = repo.GetPhoto(ctx, "http://example.com/photos/fizkin.jpg")
	require.NoError(t, err)
	assert.Equal(t, 3, source.Calls())
}

func TestGetPhotoAsync(t *testing.T) {
	source := &fakeImageSource{err: errUpstream}
	repo, _ := newTestPhotos(t, source)
	ctx := context.Background()

	_, err := task.Wait(ctx, repo.GetPhotoAsync(ctx, photoSrc))
	require.ErrorIs(t, err, gnomecache.ErrTransport)
}
