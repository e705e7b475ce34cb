// Package config loads report settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jupierce/coverage-annotator/pkg/coverage"
	"github.com/jupierce/coverage-annotator/pkg/log"
)

// Config holds report settings. Command-line flags override file values.
type Config struct {
	// Title is shown at the top of the report.
	Title string `yaml:"title"`
	// Output is the HTML file written by render.
	Output string `yaml:"output"`
	// SourceDirs are searched, in order, for module source files.
	SourceDirs []string `yaml:"source_dirs"`
	// Strict aborts the whole report when one module's regions do not nest.
	Strict bool `yaml:"strict"`
	// Concurrency bounds the number of modules rendered at once.
	Concurrency int    `yaml:"concurrency"`
	Verbosity   string `yaml:"verbosity"`
	LogDir      string `yaml:"log_dir"`
	// Labels overrides the display name of coverage kinds.
	Labels map[string]string `yaml:"labels"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Title:       "Coverage report",
		Output:      "coverage.html",
		SourceDirs:  []string{"."},
		Concurrency: 8,
		Verbosity:   "info",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings for values the renderer cannot use.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Output == "" {
		return errors.New("output must not be empty")
	}
	if _, err := log.ParseLevel(c.Verbosity); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the parsed verbosity.
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Verbosity)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// Label returns the display name of kind, honouring overrides.
func (c *Config) Label(kind coverage.Kind) string {
	if l, ok := c.Labels[string(kind)]; ok && l != "" {
		return l
	}
	return kind.Label()
}
