// Package server exposes the gnome population and photos over HTTP.
package server

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/events"
	"github.com/wolfeidau/gnome-cache/telemetry"
)

// GnomeService provides the population.
type GnomeService interface {
	GetPopulation(ctx context.Context) ([]gnomecache.Gnome, error)
	GetByName(ctx context.Context, name string) (gnomecache.Gnome, bool, error)
}

// PhotoService provides gnome photos.
type PhotoService interface {
	GetPhoto(ctx context.Context, src string) (image.Image, error)
}

// StatsFunc reports cache statistics for the /stats endpoint.
type StatsFunc func(ctx context.Context) (any, error)

// Config holds server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// AuthToken, when set, is required as a Bearer token on every route
	// except /health and /metrics.
	AuthToken string

	Gnomes GnomeService
	Photos PhotoService

	// Stats is optional; /stats reports an error without it.
	Stats StatsFunc

	// Errors is drained into the log while the server runs. Optional.
	Errors *events.Bus

	// Logger for the server
	Logger *slog.Logger
}

// Server is the HTTP server for the gnome cache.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger

	gnomes GnomeService
	photos PhotoService

	stopDrain context.CancelFunc
	drainDone sync.WaitGroup
}

// New creates a new server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Gnomes == nil || cfg.Photos == nil {
		return nil, fmt.Errorf("server requires gnome and photo services")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}

	s := &Server{
		config: cfg,
		logger: cfg.Logger.With("component", "server"),
		gnomes: cfg.Gnomes,
		photos: cfg.Photos,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // a cold population fetch may take a while
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return s.loggingMiddleware(s.authMiddleware(mux))
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)

	// Prometheus metrics endpoint (returns 404 if not enabled)
	mux.Handle("GET /metrics", telemetry.PrometheusHandler())

	// filter and facets live outside /gnomes/ so every name stays reachable
	mux.HandleFunc("GET /filter", s.handleFilter)
	mux.HandleFunc("GET /facets", s.handleFacets)
	mux.HandleFunc("GET /gnomes", s.handleList)
	mux.HandleFunc("GET /gnomes/{name}", s.handleGnome)
	mux.HandleFunc("GET /gnomes/{name}/photo", s.handlePhoto)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleStats handles cache statistics requests.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.config.Stats == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "stats not enabled"})
		return
	}

	stats, err := s.config.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// loggingMiddleware logs HTTP requests with structured fields for analysis.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		// Inject request tags so handlers can set cache_result, endpoint, etc.
		r = telemetry.InjectTags(r)
		tags := telemetry.GetTags(r)
		telemetry.SetResource(r, deriveResource(r.URL.Path))

		// Wrap response writer to capture status and bytes
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"resource", tags.Resource,

			"status", wrapped.status,
			"status_class", telemetry.StatusClass(wrapped.status),
			"bytes_sent", wrapped.bytesWritten,

			"duration_ms", duration.Milliseconds(),
			"duration", duration.String(),

			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
			"http_version", fmt.Sprintf("%d.%d", r.ProtoMajor, r.ProtoMinor),
		}

		// Add handler-set tags
		if tags.Endpoint != "" {
			attrs = append(attrs, "endpoint", tags.Endpoint)
		}
		if tags.CacheResult != "" {
			attrs = append(attrs, "cache_result", string(tags.CacheResult))
		}
		if ct := wrapped.Header().Get("Content-Type"); ct != "" {
			attrs = append(attrs, "content_type", ct)
		}

		s.logger.Info("http request", attrs...)

		telemetry.RecordHTTP(r.Context(), r, wrapped.status, wrapped.bytesWritten, duration)
	})
}

// Start drains the error bus and serves until Shutdown.
func (s *Server) Start() error {
	s.startDrain()
	s.logger.Info("starting server", "address", s.config.Address)
	return s.httpServer.ListenAndServe()
}

// Serve is like Start but accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	s.startDrain()
	s.logger.Info("starting server", "address", l.Addr().String())
	return s.httpServer.Serve(l)
}

func (s *Server) startDrain() {
	if s.config.Errors == nil || s.stopDrain != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopDrain = cancel
	s.drainDone.Add(1)
	go func() {
		defer s.drainDone.Done()
		s.config.Errors.Drain(ctx, func(err error) {
			s.logger.Warn("background error", "error", err, "kind", gnomecache.Kind(err))
		})
	}()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	err := s.httpServer.Shutdown(ctx)
	if s.stopDrain != nil {
		s.stopDrain()
		s.drainDone.Wait()
	}
	return err
}

// Address returns the server's listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// responseWriter wraps http.ResponseWriter to capture the status code and bytes written.
// It preserves http.Flusher and http.Hijacker interfaces for streaming support.
type responseWriter struct {
	http.ResponseWriter
	status       int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher for streaming responses.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker for connection upgrades.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("hijacking not supported")
}

// Unwrap returns the underlying ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// deriveResource classifies the request path for metrics.
func deriveResource(path string) string {
	switch {
	case path == "/health" || path == "/stats" || path == "/metrics":
		return telemetry.ResourceInternal
	case strings.HasPrefix(path, "/gnomes/") && strings.HasSuffix(path, "/photo"):
		return telemetry.ResourcePhoto
	case path == "/gnomes" || strings.HasPrefix(path, "/gnomes/") || path == "/filter" || path == "/facets":
		return telemetry.ResourcePopulation
	default:
		return "unknown"
	}
}
