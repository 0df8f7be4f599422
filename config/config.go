// Package config loads service settings from defaults, an optional YAML
// file and GNOME_CACHE_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/wolfeidau/gnome-cache/upstream"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "GNOME_CACHE_"

// Config holds all service settings.
type Config struct {
	SourceURL       string        `koanf:"source_url" validate:"required,url"`
	DataDir         string        `koanf:"data_dir" validate:"required"`
	DatabasePath    string        `koanf:"database_path"`
	TimestampsPath  string        `koanf:"timestamps_path"`
	PhotoDir        string        `koanf:"photo_dir"`
	PopulationTTL   time.Duration `koanf:"population_ttl" validate:"min=1s"`
	PhotoTTL        time.Duration `koanf:"photo_ttl" validate:"min=1s"`
	HTTPTimeout     time.Duration `koanf:"http_timeout" validate:"min=1s"`
	UpgradeInsecure bool          `koanf:"upgrade_insecure"`
	UserAgent       string        `koanf:"user_agent"`
	Listen          string        `koanf:"listen" validate:"required"`
	AuthToken       string        `koanf:"auth_token"`
	LogLevel        string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat       string        `koanf:"log_format" validate:"oneof=text json"`
	Metrics         Metrics       `koanf:"metrics"`
}

// Metrics configures metric export.
type Metrics struct {
	Prometheus     bool          `koanf:"prometheus"`
	OTLPEndpoint   string        `koanf:"otlp_endpoint"`
	ExportInterval time.Duration `koanf:"export_interval" validate:"min=1s"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		SourceURL:       upstream.DefaultSourceURL,
		DataDir:         defaultDataDir(),
		PopulationTTL:   15 * time.Minute,
		PhotoTTL:        15 * time.Minute,
		HTTPTimeout:     upstream.DefaultTimeout,
		UpgradeInsecure: true,
		UserAgent:       "gnome-cache",
		Listen:          ":8080",
		LogLevel:        "info",
		LogFormat:       "text",
		Metrics: Metrics{
			Prometheus:     true,
			ExportInterval: 60 * time.Second,
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "gnome-cache")
	}
	return filepath.Join(os.TempDir(), "gnome-cache")
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	return load(path, os.Environ)
}

func load(path string, environ func() []string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	keys := knownKeys(reflect.TypeOf(Config{}), "")
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:      EnvPrefix,
		EnvironFunc: environ,
		TransformFunc: func(name, value string) (string, any) {
			return canonicalizeEnvKey(name, keys), value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills the storage paths left empty from DataDir.
func (c *Config) ApplyDefaults() {
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "gnomes.db")
	}
	if c.TimestampsPath == "" {
		c.TimestampsPath = filepath.Join(c.DataDir, "timestamps.db")
	}
	if c.PhotoDir == "" {
		c.PhotoDir = filepath.Join(c.DataDir, "files")
	}
}

// Validate checks c against its field constraints.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// canonicalizeEnvKey maps GNOME_CACHE_METRICS_OTLP_ENDPOINT to
// metrics.otlp_endpoint. Variables that match no setting are dropped.
func canonicalizeEnvKey(name string, keys map[string]string) string {
	flat := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return keys[flat]
}

// knownKeys returns every leaf setting of t, indexed by its name with dots
// replaced by underscores.
func knownKeys(t reflect.Type, prefix string) map[string]string {
	keys := map[string]string{}
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)) {
			for flat, p := range knownKeys(f.Type, path) {
				keys[flat] = p
			}
			continue
		}
		keys[strings.ReplaceAll(path, ".", "_")] = path
	}
	return keys
}
