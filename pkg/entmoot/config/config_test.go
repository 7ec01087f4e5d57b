package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/cognicore/entmoot/pkg/entmoot/internalerr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entmoot.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default should validate: %v", err)
	}
	if !cfg.Strict || cfg.Store != StoreMemory || cfg.Propagation != "cascade" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `seed: "1234"
strict: false
store: sqlite
propagation: saturate
max_passes: 50
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Seed != "1234" || cfg.Strict || cfg.Store != StoreSQLite || cfg.Propagation != "saturate" || cfg.MaxPasses != 50 {
		t.Errorf("unexpected config %+v", cfg)
	}
	lvl, err := cfg.Level()
	if err != nil || lvl != zapcore.DebugLevel {
		t.Errorf("Level() = %v, %v", lvl, err)
	}
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, "seed: abc\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxPasses != Default().MaxPasses || !cfg.Strict || cfg.Store != StoreMemory {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"store":       "store: postgres\n",
		"propagation": "propagation: eventually\n",
		"max_passes":  "max_passes: 0\n",
		"log_level":   "log_level: loud\n",
		"yaml":        "seed: [unterminated\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			if !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}
