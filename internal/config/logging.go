package config

import "lessonrun/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`                                        // debug, info, warn, error
	Format     string          `yaml:"format" json:"format,omitempty" validate:"omitempty,oneof=text json"` // json, text
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"`                              // Per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Categories not listed are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// Options converts the section for logging.Configure. verbose forces the
// debug level.
func (c *LoggingConfig) Options(verbose bool) logging.Options {
	level := c.Level
	if verbose {
		level = "debug"
	}
	return logging.Options{
		Level:      level,
		JSON:       c.Format == "json",
		Categories: c.Categories,
	}
}
