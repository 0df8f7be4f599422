package repository

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/backend"
	"github.com/wolfeidau/gnome-cache/expiry"
	"github.com/wolfeidau/gnome-cache/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakePopulationSource struct {
	mu     sync.Mutex
	gnomes []gnomecache.Gnome
	err    error
	calls  int
}

func (s *fakePopulationSource) FetchPopulation(context.Context) ([]gnomecache.Gnome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.gnomes, nil
}

func (s *fakePopulationSource) set(gnomes []gnomecache.Gnome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gnomes, s.err = gnomes, err
}

func (s *fakePopulationSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeImageSource struct {
	mu    sync.Mutex
	img   image.Image
	err   error
	calls int
}

func (s *fakeImageSource) FetchImage(context.Context, string) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.img, s.err
}

func (s *fakeImageSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// failingGnomeStore wraps a real store and fails ReplaceAll on demand.
type failingGnomeStore struct {
	GnomeStore
	replaceErr error
}

func (s *failingGnomeStore) ReplaceAll(ctx context.Context, gnomes []gnomecache.Gnome) error {
	if s.replaceErr != nil {
		return s.replaceErr
	}
	return s.GnomeStore.ReplaceAll(ctx, gnomes)
}

type failingPathStore struct {
	PhotoPathStore
}

func (failingPathStore) PutPhotoPath(context.Context, string, string) error {
	return gnomecache.Errorf(gnomecache.ErrStorage, "disk full")
}

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingReporter) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

var errUpstream = gnomecache.Errorf(gnomecache.ErrTransport, "upstream returned 503")

type testEnv struct {
	clock    *fakeClock
	stamps   *expiry.Store
	db       *store.DB
	files    *backend.Filesystem
	reporter *recordingReporter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	stamps := expiry.New(expiry.WithNow(clock.Now), expiry.WithNoSync(true))
	require.NoError(t, stamps.Open(filepath.Join(dir, "timestamps.db")))
	t.Cleanup(func() { _ = stamps.Close() })

	db, err := store.Open(store.DefaultConfig(filepath.Join(dir, "gnomes.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	files, err := backend.NewFilesystem(filepath.Join(dir, "files"))
	require.NoError(t, err)

	return &testEnv{
		clock:    clock,
		stamps:   stamps,
		db:       db,
		files:    files,
		reporter: &recordingReporter{},
	}
}

func isKind(errs []error, kind error) bool {
	for _, err := range errs {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
