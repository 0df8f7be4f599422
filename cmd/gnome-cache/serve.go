package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wolfeidau/gnome-cache/server"
	"github.com/wolfeidau/gnome-cache/telemetry"
)

// ServeCmd runs the HTTP server.
type ServeCmd struct {
	Listen   string `help:"Address to listen on (overrides config)."`
	Prefetch bool   `help:"Load the population before accepting requests."`
}

func (c *ServeCmd) Run(g *Globals) error {
	a, logger, err := g.open()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricsConfig{
		ServiceName:      "gnome-cache",
		ServiceVersion:   version,
		OTLPEndpoint:     a.Config.Metrics.OTLPEndpoint,
		EnablePrometheus: a.Config.Metrics.Prometheus,
		FlushInterval:    a.Config.Metrics.ExportInterval,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = shutdownMetrics(flushCtx)
	}()

	listen := a.Config.Listen
	if c.Listen != "" {
		listen = c.Listen
	}

	srv, err := server.New(server.Config{
		Address:   listen,
		AuthToken: a.Config.AuthToken,
		Gnomes:    a.Gnomes,
		Photos:    a.Photos,
		Stats: func(ctx context.Context) (any, error) {
			return a.Stats(ctx)
		},
		Errors: a.Errors,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	if c.Prefetch {
		if _, err := a.Gnomes.GetPopulation(ctx); err != nil {
			logger.Warn("prefetching population", "error", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("server started",
		"address", srv.Address(),
		"source", a.Upstream.SourceURL(),
		"population_ttl", a.Config.PopulationTTL,
		"photo_ttl", a.Config.PhotoTTL,
	)

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
