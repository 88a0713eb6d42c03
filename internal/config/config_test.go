package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	platformerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dictload.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `{
		// where the dictionary lives
		"base_url": "https://file.example.com/dict/",
		"store": "memory",
		"log_level": "info",
		"timeout": "10s",
	}`)

	cfg, err := Load(path, map[string]string{
		"DICTLOAD_LOG_LEVEL":     "debug",
		"DICTLOAD_SINGLE_FLIGHT": "true",
	})
	require.NoError(t, err)

	want := Default()
	want.BaseURL = "https://file.example.com/dict/"
	want.Store = StoreMemory
	want.LogLevel = "debug"
	want.SingleFlight = true
	want.Timeout = Duration(10 * time.Second)

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"base_url": "https://file.example.com/"}`)

	cfg, err := Load(path, map[string]string{"DICTLOAD_BASE_URL": "https://env.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com/", cfg.BaseURL)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, `{"store": "none"}`)

	cfg, err := Load("", map[string]string{"DICTLOAD_CONFIG": path})
	require.NoError(t, err)
	assert.Equal(t, StoreNone, cfg.Store)
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "invalid JSONC", content: `{"store": `},
		{name: "unknown field", content: `{"stroe": "memory"}`},
		{name: "bad duration", content: `{"timeout": "soon"}`},
		{name: "bad env bool", content: `{}`, env: map[string]string{"DICTLOAD_LOG_JSON": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), tt.env)
			require.Error(t, err)
			assert.Equal(t, platformerrors.CodeInvalidConfig, platformerrors.GetCode(err))
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"), map[string]string{})
		require.Error(t, err)
		assert.Equal(t, platformerrors.CodeInvalidConfig, platformerrors.GetCode(err))
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Store: StoreMemory, LogLevel: "info"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "relative base url", mutate: func(c *Config) { c.BaseURL = "dict/" }, field: "base_url"},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "tape" }, field: "store"},
		{name: "sqlite without dir", mutate: func(c *Config) { c.Store = StoreSQLite }, field: "store_dir"},
		{name: "fs without dir", mutate: func(c *Config) { c.Store = StoreFS }, field: "store_dir"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, field: "log_level"},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeout = Duration(-time.Second) }, field: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var perr platformerrors.PlatformError
			require.True(t, platformerrors.As(err, &perr))
			assert.Equal(t, platformerrors.CodeInvalidConfig, perr.Code())
			assert.Equal(t, tt.field, perr.Context()["field"])
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := Config{Store: StoreMemory, Timeout: Duration(90 * time.Second)}
	assert.Contains(t, cfg.String(), `"timeout": "1m30s"`)
	assert.Contains(t, cfg.String(), `"store": "memory"`)
}
