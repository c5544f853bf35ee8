package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// UNIFIED CONFIG TESTS
// =============================================================================

func clearEnv(t *testing.T) {
	for _, k := range []string{"LESSONRUN_TIMEOUT", "LESSONRUN_PARALLEL", "LESSONRUN_STRICT", "LESSONRUN_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "5s", cfg.Harness.UnitTimeout)
	assert.Equal(t, 5*time.Second, cfg.GetUnitTimeout())
	assert.Equal(t, "text", cfg.Report.Format)
	assert.Contains(t, cfg.Engines.Go.Allowed, "fmt")
	assert.NotContains(t, cfg.Engines.Go.Allowed, "os/exec")
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "lessonrun.yaml")

	cfg := DefaultConfig()
	cfg.Harness.UnitTimeout = "250ms"
	cfg.Harness.Parallel = 3
	cfg.Report.Format = "json"
	cfg.Logging.Categories = map[string]bool{"engine": false}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, 250*time.Millisecond, loaded.GetUnitTimeout())
	assert.False(t, loaded.Logging.IsCategoryEnabled("engine"))
	assert.True(t, loaded.Logging.IsCategoryEnabled("loader"))
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "lessonrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte("harness:\n  parallel: 2\nloader:\n  strict: true\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Harness.Parallel)
	assert.True(t, cfg.Loader.Strict)
	assert.Equal(t, "5s", cfg.Harness.UnitTimeout)
	assert.Equal(t, DefaultConfig().Loader.HeaderPattern, cfg.Loader.HeaderPattern)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lessonrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte("harness: [unclosed\n"), 0644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad format", func(c *Config) { c.Report.Format = "html" }, "Config.Report.Format"},
		{"bad color", func(c *Config) { c.Report.Color = "sometimes" }, "Config.Report.Color"},
		{"negative parallel", func(c *Config) { c.Harness.Parallel = -1 }, "Config.Harness.Parallel"},
		{"extension without dot", func(c *Config) { c.Loader.Extensions = []string{"js"} }, "Config.Loader.Extensions[0]"},
		{"empty header", func(c *Config) { c.Loader.HeaderPattern = "" }, "Config.Loader.HeaderPattern"},
		{"header does not compile", func(c *Config) { c.Loader.HeaderPattern = "(" }, "loader.header_pattern"},
		{"timeout not a duration", func(c *Config) { c.Harness.UnitTimeout = "soon" }, "harness.unit_timeout"},
		{"zero timeout", func(c *Config) { c.Harness.UnitTimeout = "0s" }, "harness.unit_timeout"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "Config.Logging.Format"},
		{"blank allowed package", func(c *Config) { c.Engines.Go.Allowed = []string{""} }, "Config.Engines.Go.Allowed[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoggingOptions(t *testing.T) {
	lc := LoggingConfig{Level: "warn", Format: "json", Categories: map[string]bool{"oracle": false}}
	opts := lc.Options(false)
	assert.Equal(t, "warn", opts.Level)
	assert.True(t, opts.JSON)
	assert.False(t, opts.Categories["oracle"])

	assert.Equal(t, "debug", lc.Options(true).Level)
}
