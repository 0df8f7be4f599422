package app

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/config"
)

type upstreamFake struct {
	srv        *httptest.Server
	censusHits atomic.Int32
	photoHits  atomic.Int32
	failCensus atomic.Bool
}

func newUpstreamFake(t *testing.T) *upstreamFake {
	t.Helper()
	f := &upstreamFake{}

	var photo bytes.Buffer
	require.NoError(t, png.Encode(&photo, image.NewRGBA(image.Rect(0, 0, 30, 60))))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /data.json", func(w http.ResponseWriter, _ *http.Request) {
		f.censusHits.Add(1)
		if f.failCensus.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"Brastlewark":[
			{"id":0,"name":"Tobus Quickwhistle","thumbnail":"http://example.com/tobus.jpg","age":306,"weight":39.06,"height":107.75,"hair_color":"Pink","professions":["Metalworker"],"friends":[]},
			{"id":1,"name":"Fizkin Voidbuster","thumbnail":"http://example.com/fizkin.jpg","age":288,"weight":35.27,"height":110.43,"hair_color":"Green","professions":[],"friends":["Tobus Quickwhistle"]}
		]}`)
	})
	mux.HandleFunc("GET /photo.png", func(w http.ResponseWriter, _ *http.Request) {
		f.photoHits.Add(1)
		_, _ = w.Write(photo.Bytes())
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

type clock struct {
	t atomic.Int64
}

func (c *clock) Now() time.Time          { return time.UnixMilli(c.t.Load()) }
func (c *clock) Advance(d time.Duration) { c.t.Add(d.Milliseconds()) }

func newTestApp(t *testing.T) (*App, *upstreamFake, *clock) {
	t.Helper()
	f := newUpstreamFake(t)
	c := &clock{}
	c.t.Store(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli())

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.SourceURL = f.srv.URL + "/data.json"
	cfg.UpgradeInsecure = false

	a, err := Open(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), WithNow(c.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, f, c
}

func TestOpen_PopulationLifecycle(t *testing.T) {
	a, f, c := newTestApp(t)
	ctx := context.Background()

	pop, err := a.Gnomes.GetPopulation(ctx)
	require.NoError(t, err)
	require.Len(t, pop, 2)
	assert.Equal(t, 39, pop[0].Weight)

	_, err = a.Gnomes.GetPopulation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.censusHits.Load())

	f.failCensus.Store(true)
	c.Advance(a.Config.PopulationTTL)
	_, err = a.Gnomes.GetPopulation(ctx)
	require.ErrorIs(t, err, gnomecache.ErrTransport)
	assert.Equal(t, int32(2), f.censusHits.Load())
}

func TestOpen_PhotoCached(t *testing.T) {
	a, f, _ := newTestApp(t)
	ctx := context.Background()
	src := f.srv.URL + "/photo.png"

	img, err := a.Photos.GetPhoto(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())

	img, err = a.Photos.GetPhoto(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())
	assert.Equal(t, int32(1), f.photoHits.Load())
}

func TestStats(t *testing.T) {
	a, f, _ := newTestApp(t)
	ctx := context.Background()

	st, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Gnomes)
	assert.Zero(t, st.PhotoFiles)
	assert.False(t, st.PopulationValid)
	assert.Nil(t, st.PopulationExpires)

	_, err = a.Gnomes.GetPopulation(ctx)
	require.NoError(t, err)
	_, err = a.Photos.GetPhoto(ctx, f.srv.URL+"/photo.png")
	require.NoError(t, err)

	st, err = a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Gnomes)
	assert.Equal(t, int64(1), st.Photos)
	assert.Equal(t, 1, st.PhotoFiles)
	assert.True(t, st.PopulationValid)
	require.NotNil(t, st.PopulationExpires)
	assert.Equal(t, 2, st.TimestampEntries)
	assert.Equal(t, f.srv.URL+"/data.json", st.SourceURL)
}
