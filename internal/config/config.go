// Package config loads dictload CLI configuration.
//
// Values are layered with the following precedence (highest wins):
//  1. Defaults
//  2. JSONC config file (comments and trailing commas allowed)
//  3. DICTLOAD_* environment variables
//  4. Command-line flags, applied by the caller
package config

import (
	"bytes"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	platformerrors "github.com/jmgilman/go/errors"
	"github.com/tailscale/hujson"

	"github.com/jmgilman/go/dictload/internal/telemetry"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DICTLOAD_"

// Store kinds accepted in configuration.
const (
	StoreSQLite = "sqlite"
	StoreFS     = "fs"
	StoreMemory = "memory"
	StoreNone   = "none"
)

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config holds all CLI options.
type Config struct {
	BaseURL      string   `json:"base_url,omitempty" env:"BASE_URL"`
	Store        string   `json:"store,omitempty" env:"STORE"`
	StoreDir     string   `json:"store_dir,omitempty" env:"STORE_DIR"`
	StoreName    string   `json:"store_name,omitempty" env:"STORE_NAME"`
	OutputDir    string   `json:"output_dir,omitempty" env:"OUTPUT_DIR"`
	LogLevel     string   `json:"log_level,omitempty" env:"LOG_LEVEL"`
	LogJSON      bool     `json:"log_json,omitempty" env:"LOG_JSON"`
	SingleFlight bool     `json:"single_flight,omitempty" env:"SINGLE_FLIGHT"`
	Timeout      Duration `json:"timeout,omitempty" env:"TIMEOUT"`
	OTelEndpoint string   `json:"otel_endpoint,omitempty" env:"OTEL_ENDPOINT"`
}

// Default returns the default configuration.
func Default() Config {
	cfg := Config{
		Store:     StoreNone,
		StoreName: "dictload",
		LogLevel:  "warn",
		Timeout:   Duration(time.Minute),
	}
	if dir, err := os.UserCacheDir(); err == nil {
		cfg.Store = StoreSQLite
		cfg.StoreDir = filepath.Join(dir, "dictload")
	}
	return cfg
}

// Load builds a Config from defaults, the file at path (if non-empty) and environ.
// An empty path falls back to DICTLOAD_CONFIG. The result is not validated;
// call Validate after applying flag overrides.
func Load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = environ[EnvPrefix+"CONFIG"]
	}
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
		if err != nil {
			return Config{}, platformerrors.WithContext(
				platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "failed to read config file"),
				"path", path,
			)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, platformerrors.WithContext(err, "path", path)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}); err != nil {
		return Config{}, platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "parse env")
	}

	return cfg, nil
}

// Parse decodes JSONC data onto cfg. Fields absent from data keep their values.
func Parse(data []byte, cfg *Config) error {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "invalid JSONC")
	}

	dec := json.NewDecoder(bytes.NewReader(standardized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "invalid config")
	}
	return nil
}

// Validate checks the configuration for invalid values and missing requirements.
func (c Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return platformerrors.WithContext(
			platformerrors.Newf(platformerrors.CodeInvalidConfig, format, args...),
			"field", field,
		)
	}

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || !u.IsAbs() {
			return invalid("base_url", "base_url must be an absolute URL, got %q", c.BaseURL)
		}
	}

	switch c.Store {
	case StoreSQLite, StoreFS:
		if c.StoreDir == "" {
			return invalid("store_dir", "store %q requires store_dir", c.Store)
		}
	case StoreMemory, StoreNone:
	default:
		return invalid("store", "unknown store %q (want sqlite, fs, memory or none)", c.Store)
	}

	if _, err := telemetry.ParseLogLevel(c.LogLevel); err != nil {
		return invalid("log_level", "%v", err)
	}
	if c.Timeout < 0 {
		return invalid("timeout", "timeout cannot be negative")
	}
	return nil
}

// String renders the configuration as indented JSON.
func (c Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
