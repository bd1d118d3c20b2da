package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Load reads a TOML config file and merges it over the preset it names.
// A missing file is not an error: the standard defaults apply.
//
// Resolution order (later wins): built-in defaults, preset adjustments,
// values from the file itself.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	// First pass: only the preset name, so we know which base to decode over.
	var head struct {
		Preset string `toml:"preset"`
	}
	if err := toml.Unmarshal(raw, &head); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg, err := Preset(head.Preset)
	if err != nil {
		return Config{}, err
	}

	// Second pass: decode the full file over the preset base. TOML leaves
	// absent keys untouched, so the preset values survive.
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Preset returns the named preset configuration. Empty name means "standard".
//
//	minimal  -- keyword-only indexing, no embedding provider, sync-only pipeline
//	standard -- keyword indexing plus embeddings when a provider is reachable
//	full     -- embeddings on, full pipeline including the evolution check
func Preset(name string) (Config, error) {
	cfg := Default()
	switch name {
	case "", "standard":
		return cfg, nil
	case "minimal":
		cfg.Preset = "minimal"
		cfg.Embedding.Enabled = false
		cfg.Pipeline.Steps = []string{"sync"}
		return cfg, nil
	case "full":
		cfg.Preset = "full"
		cfg.Embedding.Enabled = true
		cfg.Pipeline.Steps = []string{"sync", "index-regeneration", "evolution-check"}
		return cfg, nil
	default:
		return Config{}, fmt.Errorf("unknown preset: %q", name)
	}
}
