package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "evlog.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Preset != "standard" || cfg.Server.Port != 37791 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFileOverridesPreset(t *testing.T) {
	path := writeConfig(t, `
preset = "full"

[search]
max_results = 10

[memory]
dir = "/tmp/evlog-test"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Embedding.Enabled {
		t.Error("full preset should enable embedding")
	}
	if got := cfg.Pipeline.Steps; len(got) != 3 || got[1] != "index-regeneration" {
		t.Errorf("pipeline steps = %v", got)
	}
	if cfg.Search.MaxResults != 10 {
		t.Errorf("max_results = %d, want file value 10", cfg.Search.MaxResults)
	}
	if cfg.Search.BM25Weight != 0.4 {
		t.Errorf("bm25_weight = %v, want preset default", cfg.Search.BM25Weight)
	}
	if cfg.Memory.Dir != "/tmp/evlog-test" {
		t.Errorf("memory dir = %q", cfg.Memory.Dir)
	}
}

func TestLoadUnknownPreset(t *testing.T) {
	path := writeConfig(t, `preset = "turbo"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown preset")
	}
}

func TestPresets(t *testing.T) {
	minimal, err := Preset("minimal")
	if err != nil {
		t.Fatalf("Preset: %v", err)
	}
	if minimal.Embedding.Enabled {
		t.Error("minimal preset should disable embedding")
	}
	if len(minimal.Pipeline.Steps) != 1 || minimal.Pipeline.Steps[0] != "sync" {
		t.Errorf("minimal pipeline = %v", minimal.Pipeline.Steps)
	}

	std, err := Preset("")
	if err != nil {
		t.Fatalf("Preset: %v", err)
	}
	if std.Preset != "standard" {
		t.Errorf("empty preset name = %q, want standard", std.Preset)
	}
}

func TestMemoryPaths(t *testing.T) {
	m := MemoryConfig{Dir: "/srv/proj/.evlog"}
	if got := m.EventsPath(); got != "/srv/proj/.evlog/events.jsonl" {
		t.Errorf("EventsPath = %q", got)
	}
	if got := m.ArchiveDir(); got != "/srv/proj/.evlog/archive" {
		t.Errorf("ArchiveDir = %q", got)
	}
	if got := m.ProjectRoot(); got != "/srv/proj" {
		t.Errorf("ProjectRoot = %q", got)
	}
}
