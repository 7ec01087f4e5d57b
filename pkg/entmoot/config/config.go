// Package config reads entmoot.yaml.
package config

import (
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/entmoot/pkg/entmoot/internalerr"
	"github.com/cognicore/entmoot/pkg/entmoot/interpreter"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds the session settings. Zero fields in a file fall back to
// Default.
type Config struct {
	Seed        string `yaml:"seed"`
	Strict      bool   `yaml:"strict"`
	Store       string `yaml:"store"`
	Propagation string `yaml:"propagation"`
	MaxPasses   int    `yaml:"max_passes"`
	LogLevel    string `yaml:"log_level"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Strict:      true,
		Store:       StoreMemory,
		Propagation: string(interpreter.Cascade),
		MaxPasses:   interpreter.DefaultMaxPasses,
		LogLevel:    "info",
	}
}

// Load reads a YAML config on top of Default and validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated fields and ranges.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("%w: store must be %q or %q, got %q", internalerr.ErrInvalidConfig, StoreMemory, StoreSQLite, c.Store)
	}
	if _, err := interpreter.ParsePropagation(c.Propagation); err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrInvalidConfig, err)
	}
	if c.MaxPasses <= 0 {
		return fmt.Errorf("%w: max_passes must be positive, got %d", internalerr.ErrInvalidConfig, c.MaxPasses)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("%w: log_level: %v", internalerr.ErrInvalidConfig, err)
	}
	return lvl, nil
}
