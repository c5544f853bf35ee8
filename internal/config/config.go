package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"lessonrun/internal/logging"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "lessonrun.yaml"

// Config holds all lessonrun configuration.
type Config struct {
	Loader  LoaderConfig  `yaml:"loader" json:"loader"`
	Harness HarnessConfig `yaml:"harness" json:"harness"`
	Report  ReportConfig  `yaml:"report" json:"report"`
	Engines EnginesConfig `yaml:"engines" json:"engines"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// LoaderConfig configures lesson discovery and parsing.
type LoaderConfig struct {
	HeaderPattern string   `yaml:"header_pattern" json:"header_pattern" validate:"required"`
	Extensions    []string `yaml:"extensions" json:"extensions,omitempty" validate:"dive,startswith=."`
	Strict        bool     `yaml:"strict" json:"strict"`
}

// HarnessConfig configures unit scheduling.
type HarnessConfig struct {
	UnitTimeout string `yaml:"unit_timeout" json:"unit_timeout" validate:"required"`
	Parallel    int    `yaml:"parallel" json:"parallel" validate:"gte=0,lte=256"` // 0 = NumCPU
	VirtualTime bool   `yaml:"virtual_time" json:"virtual_time"`
}

// ReportConfig configures the run report.
type ReportConfig struct {
	Format string `yaml:"format" json:"format" validate:"oneof=text json yaml markdown"`
	Output string `yaml:"output" json:"output,omitempty"` // empty = stdout
	Render bool   `yaml:"render" json:"render"`
	Color  string `yaml:"color" json:"color" validate:"oneof=auto always never"`
}

// EnginesConfig configures the evaluators.
type EnginesConfig struct {
	Go GoEngineConfig `yaml:"go" json:"go"`
}

// GoEngineConfig lists the standard library packages Go lessons may
// import.
type GoEngineConfig struct {
	Allowed []string `yaml:"allowed" json:"allowed" validate:"dive,required"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Loader: LoaderConfig{
			HeaderPattern: `^\s*///--\s*(.*?)[\s*]*$`,
			Extensions:    []string{".js", ".mjs", ".cjs", ".ts", ".mts", ".go"},
		},
		Harness: HarnessConfig{
			UnitTimeout: "5s",
		},
		Report: ReportConfig{
			Format: "text",
			Color:  "auto",
		},
		Engines: EnginesConfig{
			Go: GoEngineConfig{Allowed: []string{
				"bytes", "container/heap", "container/list", "encoding/json", "errors",
				"fmt", "math", "math/rand", "regexp", "sort", "strconv", "strings",
				"sync", "time", "unicode", "unicode/utf8",
			}},
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file over the defaults. A missing
// file yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.ConfigDebug("no config at %s, using defaults", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies LESSONRUN_* environment variables. Values that
// do not parse are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LESSONRUN_TIMEOUT"); v != "" {
		if _, err := time.ParseDuration(v); err != nil {
			logging.ConfigWarn("ignoring LESSONRUN_TIMEOUT=%q: %v", v, err)
		} else {
			c.Harness.UnitTimeout = v
		}
	}
	if v := os.Getenv("LESSONRUN_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err != nil || n < 0 {
			logging.ConfigWarn("ignoring LESSONRUN_PARALLEL=%q", v)
		} else {
			c.Harness.Parallel = n
		}
	}
	if v := os.Getenv("LESSONRUN_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err != nil {
			logging.ConfigWarn("ignoring LESSONRUN_STRICT=%q", v)
		} else {
			c.Loader.Strict = b
		}
	}
	if v := os.Getenv("LESSONRUN_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// GetUnitTimeout returns the per-unit timeout as a duration.
func (c *Config) GetUnitTimeout() time.Duration {
	d, err := time.ParseDuration(c.Harness.UnitTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), tagWithParam(fe), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := regexp.Compile(c.Loader.HeaderPattern); err != nil {
		return fmt.Errorf("invalid config: loader.header_pattern: %w", err)
	}
	if d, err := time.ParseDuration(c.Harness.UnitTimeout); err != nil || d <= 0 {
		return fmt.Errorf("invalid config: harness.unit_timeout %q is not a positive duration", c.Harness.UnitTimeout)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid config: logging.level: %w", err)
	}
	return nil
}

func tagWithParam(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}
