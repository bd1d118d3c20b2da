package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all evlog configuration. It is built once at startup and
// passed by value into component constructors; nothing mutates it afterwards.
type Config struct {
	Preset     string           `toml:"preset"` // "minimal", "standard", "full"
	Memory     MemoryConfig     `toml:"memory"`
	Server     ServerConfig     `toml:"server"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Search     SearchConfig     `toml:"search"`
	Evolution  EvolutionConfig  `toml:"evolution"`
	Compaction CompactionConfig `toml:"compaction"`
	Verify     VerifyConfig     `toml:"verify"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Log        LogConfig        `toml:"log"`
}

// MemoryConfig locates the on-disk store.
type MemoryConfig struct {
	Dir string `toml:"dir"` // root directory holding events.jsonl, index.db, archive/
}

func (m MemoryConfig) EventsPath() string  { return filepath.Join(m.Dir, "events.jsonl") }
func (m MemoryConfig) IndexPath() string   { return filepath.Join(m.Dir, "index.db") }
func (m MemoryConfig) ArchiveDir() string  { return filepath.Join(m.Dir, "archive") }
func (m MemoryConfig) ProjectRoot() string { return filepath.Dir(m.Dir) }

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

// ListenAddr returns the bind:port address string.
func (c ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// EmbeddingConfig selects and tunes the embedding provider chain.
type EmbeddingConfig struct {
	Enabled        bool     `toml:"enabled"`
	Provider       string   `toml:"provider"` // "ollama", "openai", "gemini", "none"
	Fallback       []string `toml:"fallback"`
	TimeoutSeconds int      `toml:"timeout_seconds"` // per embedding call
	BatchSize      int      `toml:"batch_size"`
	OllamaURL      string   `toml:"ollama_url"`
	OllamaModel    string   `toml:"ollama_model"`
	OpenAIModel    string   `toml:"openai_model"`
	OpenAIKeyEnv   string   `toml:"openai_key_env"`
	GeminiModel    string   `toml:"gemini_model"`
	GeminiKeyEnv   string   `toml:"gemini_key_env"`
	Dimensions     int      `toml:"dimensions"` // requested output dims where supported
}

// SearchConfig holds ranking weights and caps. Every constant the ranker
// uses lives here; the ranker itself has no hardcoded thresholds.
type SearchConfig struct {
	MaxResults       int     `toml:"max_results"`
	BM25Weight       float64 `toml:"bm25_weight"`
	VectorWeight     float64 `toml:"vector_weight"`
	HardS1Boost      float64 `toml:"hard_s1_boost"`
	HardS2Boost      float64 `toml:"hard_s2_boost"`
	HardS3Boost      float64 `toml:"hard_s3_boost"`
	ConfidenceWeight float64 `toml:"confidence_weight"`
	MinScore         float64 `toml:"min_score"`
}

type EvolutionConfig struct {
	HalfLifeDays           float64 `toml:"half_life_days"`
	DeprecationFloor       float64 `toml:"deprecation_floor"`
	TextDedupThreshold     float64 `toml:"text_dedup_threshold"`
	VectorDedupThreshold   float64 `toml:"vector_dedup_threshold"`
	VerifyFullBoostDays    int     `toml:"verify_full_boost_days"`
	VerifyPartialBoostDays int     `toml:"verify_partial_boost_days"`
}

type CompactionConfig struct {
	WasteThreshold float64 `toml:"waste_threshold"`
	SortOutput     bool    `toml:"sort_output"`
}

type VerifyConfig struct {
	StalenessDays   int      `toml:"staleness_days"`
	AllowedCommands []string `toml:"allowed_commands"`
}

type PipelineConfig struct {
	Steps       []string `toml:"steps"`
	MaxAttempts int      `toml:"max_attempts"` // per transient step
}

type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// DefaultDir returns the default memory directory: ./.evlog under the
// current working directory, or $EVLOG_DIR when set.
func DefaultDir() string {
	if dir := os.Getenv("EVLOG_DIR"); dir != "" {
		return dir
	}
	return ".evlog"
}

// Default returns a Config with the "standard" preset applied.
func Default() Config {
	return Config{
		Preset: "standard",
		Memory: MemoryConfig{Dir: DefaultDir()},
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37791,
		},
		Embedding: EmbeddingConfig{
			Enabled:        false,
			Provider:       "ollama",
			Fallback:       []string{"openai", "gemini"},
			TimeoutSeconds: 30,
			BatchSize:      20,
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "nomic-embed-text",
			OpenAIModel:    "text-embedding-3-small",
			OpenAIKeyEnv:   "OPENAI_API_KEY",
			GeminiModel:    "gemini-embedding-001",
			GeminiKeyEnv:   "GEMINI_API_KEY",
			Dimensions:     768,
		},
		Search: SearchConfig{
			MaxResults:       5,
			BM25Weight:       0.4,
			VectorWeight:     0.6,
			HardS1Boost:      0.15,
			HardS2Boost:      0.10,
			HardS3Boost:      0.05,
			ConfidenceWeight: 0.1,
			MinScore:         0.1,
		},
		Evolution: EvolutionConfig{
			HalfLifeDays:           120,
			DeprecationFloor:       0.3,
			TextDedupThreshold:     0.85,
			VectorDedupThreshold:   0.92,
			VerifyFullBoostDays:    30,
			VerifyPartialBoostDays: 90,
		},
		Compaction: CompactionConfig{
			WasteThreshold: 2.0,
			SortOutput:     true,
		},
		Verify: VerifyConfig{
			StalenessDays:   90,
			AllowedCommands: []string{"grep", "rg", "find", "wc", "head", "tail", "echo"},
		},
		Pipeline: PipelineConfig{
			Steps:       []string{"sync", "evolution-check"},
			MaxAttempts: 3,
		},
		Log: LogConfig{Level: "info", Pretty: false},
	}
}
