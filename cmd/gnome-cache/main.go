// Command gnome-cache serves and inspects a cached copy of the Brastlewark
// gnome population.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lmittmann/tint"

	"github.com/wolfeidau/gnome-cache/app"
	"github.com/wolfeidau/gnome-cache/config"
)

var version = "dev"

// Globals are flags shared by every command. Set flags override the config
// file and environment.
type Globals struct {
	Config    string `help:"YAML config file." type:"path" env:"GNOME_CACHE_CONFIG"`
	DataDir   string `help:"Directory for the database, timestamps and photos."`
	SourceURL string `help:"Population document URL."`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFormat string `help:"Log format (text, json)."`

	Version kong.VersionFlag `help:"Print version and exit."`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" help:"Run the HTTP server."`
	List     ListCmd     `cmd:"" help:"List gnomes sorted by name."`
	Show     ShowCmd     `cmd:"" help:"Show a single gnome."`
	Filter   FilterCmd   `cmd:"" help:"Filter gnomes by ranges, hair colour and professions."`
	Facets   FacetsCmd   `cmd:"" help:"Show the ranges and categories of the population."`
	Photo    PhotoCmd    `cmd:"" help:"Write a gnome's photo, or its placeholder, to a file."`
	Prefetch PrefetchCmd `cmd:"" help:"Warm the photo cache for the whole population."`
	Refresh  RefreshCmd  `cmd:"" help:"Discard the cached population and fetch it again."`
	Stats    StatsCmd    `cmd:"" help:"Show cache statistics."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("gnome-cache"),
		kong.Description("A caching front for the Brastlewark gnome population."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	if err := kctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// load resolves the configuration and logger for a command.
func (g *Globals) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return config.Config{}, nil, err
	}
	if g.DataDir != "" {
		cfg.DataDir = g.DataDir
		cfg.DatabasePath, cfg.TimestampsPath, cfg.PhotoDir = "", "", ""
		cfg.ApplyDefaults()
	}
	if g.SourceURL != "" {
		cfg.SourceURL = g.SourceURL
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.LogFormat = g.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// open loads the configuration and opens the stores.
func (g *Globals) open() (*app.App, *slog.Logger, error) {
	cfg, logger, err := g.load()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func newLogger(levelName, format string) (*slog.Logger, error) {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s", levelName)
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	return slog.New(handler), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
