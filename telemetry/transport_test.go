package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fetch performs a GET through an instrumented transport and drains the body.
func fetch(t *testing.T, ctx context.Context, defaultResource, url string) (*http.Response, error) {
	t.Helper()
	client := &http.Client{Transport: NewInstrumentedTransport(nil, defaultResource)}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	_, _ = io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	return resp, nil
}

func TestInstrumentedTransport_Outcomes(t *testing.T) {
	census := `{"Brastlewark":[{"id":0,"name":"Tobus Quickwhistle"}]}`

	tests := []struct {
		name     string
		resource string
		handler  http.HandlerFunc
		outcome  string
		bytes    int64
	}{
		{
			name:     "population fetched",
			resource: ResourcePopulation,
			handler:  func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(census)) },
			outcome:  "success",
			bytes:    int64(len(census)),
		},
		{
			name:     "photo missing upstream",
			resource: ResourcePhoto,
			handler:  func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
			outcome:  "4xx",
			bytes:    int64(len("404 page not found\n")),
		},
		{
			name:     "population source down",
			resource: ResourcePopulation,
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			outcome: "5xx",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := setupTestMetrics(t)
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := fetch(t, context.Background(), tt.resource, srv.URL)
			require.NoError(t, err)

			rm := collectMetrics(t, reader)
			dps := findCounter(rm, "gnome_cache_upstream_fetch_total")
			require.Len(t, dps, 1)
			require.EqualValues(t, 1, dps[0].Value)
			require.True(t, hasAttr(dps[0].Attributes, "resource", tt.resource))
			require.True(t, hasAttr(dps[0].Attributes, "outcome", tt.outcome))

			bytesDps := findCounter(rm, "gnome_cache_upstream_fetch_bytes_total")
			if tt.bytes == 0 {
				require.Empty(t, bytesDps)
			} else {
				require.Len(t, bytesDps, 1)
				require.Equal(t, tt.bytes, bytesDps[0].Value)
			}

			hist := findHistogram(rm, "gnome_cache_upstream_fetch_duration_seconds")
			require.Len(t, hist, 1)
			require.Equal(t, uint64(1), hist[0].Count)
		})
	}
}

func TestInstrumentedTransport_ConnectionError(t *testing.T) {
	reader := setupTestMetrics(t)

	_, err := fetch(t, context.Background(), ResourcePopulation, "http://127.0.0.1:1")
	require.Error(t, err)

	dps := findCounter(collectMetrics(t, reader), "gnome_cache_upstream_fetch_total")
	require.Len(t, dps, 1)
	require.True(t, hasAttr(dps[0].Attributes, "resource", ResourcePopulation))
	require.True(t, hasAttr(dps[0].Attributes, "outcome", "error"))
}

func TestInstrumentedTransport_CanceledPhoto(t *testing.T) {
	reader := setupTestMetrics(t)

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := fetch(t, ctx, ResourcePhoto, srv.URL)
	require.Error(t, err)

	dps := findCounter(collectMetrics(t, reader), "gnome_cache_upstream_fetch_total")
	require.Len(t, dps, 1)
	require.True(t, hasAttr(dps[0].Attributes, "resource", ResourcePhoto))
	require.True(t, hasAttr(dps[0].Attributes, "outcome", "canceled"))
}

func TestInstrumentedTransport_ResourceFromContext(t *testing.T) {
	reader := setupTestMetrics(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("img"))
	}))
	defer srv.Close()

	// the upstream client shares one transport labelled population and
	// tags photo requests through the context
	ctx := WithResourceContext(context.Background(), ResourcePhoto)
	_, err := fetch(t, ctx, ResourcePopulation, srv.URL)
	require.NoError(t, err)

	dps := findCounter(collectMetrics(t, reader), "gnome_cache_upstream_fetch_total")
	require.Len(t, dps, 1)
	require.True(t, hasAttr(dps[0].Attributes, "resource", ResourcePhoto))
}

func TestInstrumentedTransport_WithoutMetrics(t *testing.T) {
	globalMetrics = nil

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := fetch(t, context.Background(), ResourcePhoto, srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
