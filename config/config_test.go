package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 15*time.Minute, cfg.PopulationTTL)
	assert.Equal(t, 15*time.Minute, cfg.PhotoTTL)
	assert.Equal(t, filepath.Join(cfg.DataDir, "gnomes.db"), cfg.DatabasePath)
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := load("", environ())
	require.NoError(t, err)

	want := DefaultConfig()
	want.ApplyDefaults()
	assert.Equal(t, want, cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gnome-cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source_url: https://example.com/data.json
data_dir: /var/lib/gnomes
population_ttl: 5m
log_level: debug
metrics:
  prometheus: false
  otlp_endpoint: collector:4317
`), 0o644))

	cfg, err := load(path, environ(
		"GNOME_CACHE_POPULATION_TTL=90s",
		"GNOME_CACHE_METRICS_EXPORT_INTERVAL=10s",
		"GNOME_CACHE_UPGRADE_INSECURE=false",
		"GNOME_CACHE_UNKNOWN_SETTING=ignored",
		"HOME=/root",
	))
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/data.json", cfg.SourceURL)
	assert.Equal(t, "/var/lib/gnomes", cfg.DataDir)
	assert.Equal(t, filepath.Join("/var/lib/gnomes", "timestamps.db"), cfg.TimestampsPath)
	assert.Equal(t, filepath.Join("/var/lib/gnomes", "files"), cfg.PhotoDir)
	assert.Equal(t, 90*time.Second, cfg.PopulationTTL, "env overrides file")
	assert.Equal(t, 15*time.Minute, cfg.PhotoTTL, "default kept")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.UpgradeInsecure)
	assert.False(t, cfg.Metrics.Prometheus)
	assert.Equal(t, "collector:4317", cfg.Metrics.OTLPEndpoint)
	assert.Equal(t, 10*time.Second, cfg.Metrics.ExportInterval)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "nope.yaml"), environ())
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  string
	}{
		{name: "bad url", env: "GNOME_CACHE_SOURCE_URL=not a url"},
		{name: "ttl too small", env: "GNOME_CACHE_PHOTO_TTL=10ms"},
		{name: "bad level", env: "GNOME_CACHE_LOG_LEVEL=loud"},
		{name: "bad format", env: "GNOME_CACHE_LOG_FORMAT=xml"},
		{name: "bad duration", env: "GNOME_CACHE_HTTP_TIMEOUT=soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load("", environ(tt.env))
			require.Error(t, err)
		})
	}
}

func TestCanonicalizeEnvKey(t *testing.T) {
	keys := knownKeys(reflectConfigType(), "")

	tests := []struct {
		envKey string
		want   string
	}{
		{envKey: "GNOME_CACHE_SOURCE_URL", want: "source_url"},
		{envKey: "GNOME_CACHE_METRICS_OTLP_ENDPOINT", want: "metrics.otlp_endpoint"},
		{envKey: "GNOME_CACHE_METRICS_PROMETHEUS", want: "metrics.prometheus"},
		{envKey: "GNOME_CACHE_NEW_FEATURE", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.envKey, func(t *testing.T) {
			assert.Equal(t, tt.want, canonicalizeEnvKey(tt.envKey, keys))
		})
	}
}

func reflectConfigType() reflect.Type {
	return reflect.TypeOf(Config{})
}
