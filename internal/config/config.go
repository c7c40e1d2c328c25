// Package config provides configuration loading and structs for the Kikoe pipeline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug         bool                `yaml:"debug"`
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Diarization   DiarizationConfig   `yaml:"diarization"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Search        SearchConfig        `yaml:"search"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Watch         WatchConfig         `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds index store settings.
type StorageConfig struct {
	// Driver selects the index store backend: "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`
	// DatabasePath is the SQLite database file (sqlite driver).
	DatabasePath string `yaml:"database_path"`
	// PostgresDSN is the connection string for the postgres driver. May also be
	// supplied via the DATABASE_URL environment variable.
	PostgresDSN string `yaml:"postgres_dsn"`
	// LexicalIndexPath is the Bleve index used for lexical re-ranking.
	LexicalIndexPath string `yaml:"lexical_index_path"`
	// ArchiveDir receives source files after successful ingestion; empty disables archiving.
	ArchiveDir string `yaml:"archive_dir"`
	// TempDir holds extracted audio during ingestion; defaults to the OS temp dir.
	TempDir string `yaml:"temp_dir"`
}

// TranscriptionConfig holds transcription backend settings.
type TranscriptionConfig struct {
	// Backend selects the transcription engine: "whisper" (local helper,
	// default), "openai" (hosted HTTP API), or "mock" (tests).
	Backend string `yaml:"backend"`
	// Model is the engine-specific model identifier.
	Model string `yaml:"model"`
	// Language is an optional ISO language hint; backends may ignore it.
	Language string `yaml:"language"`
	// HelperPath is the whisper helper executable (whisper backend).
	HelperPath string `yaml:"helper_path"`
	// BaseURL overrides the API endpoint (openai backend).
	BaseURL string `yaml:"base_url"`
	// TimeoutSeconds bounds a single transcription call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DiarizationConfig holds speaker diarization settings.
type DiarizationConfig struct {
	// Enabled toggles diarization; ingestion succeeds without it.
	Enabled *bool `yaml:"enabled"`
	// Backend selects the engine: "pyannote" (local helper, default),
	// "gap" (silence-gap heuristic), or "mock" (tests).
	Backend string `yaml:"backend"`
	// HelperPath is the diarization helper executable (pyannote backend).
	HelperPath string `yaml:"helper_path"`
	// TimeoutSeconds bounds a single diarization call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// EnabledOrDefault returns whether diarization is on; defaults to true when unset.
func (d *DiarizationConfig) EnabledOrDefault() bool {
	if d.Enabled != nil {
		return *d.Enabled
	}
	return true
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	// Provider selects the embedder: "ollama" (default), "onnx" (requires CGO),
	// or "mock" (tests).
	Provider string `yaml:"provider"`
	// Model is the embedding model name, recorded in the index metadata and
	// checked against it on every query.
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// BaseURL is the Ollama endpoint (ollama provider).
	BaseURL string `yaml:"base_url"`
	// ModelPath is the ONNX model file (onnx provider).
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
	CacheSize int    `yaml:"cache_size"`
}

// SearchConfig holds query engine and chunking settings.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	// MaxChunkChars is the chunk text budget in characters.
	MaxChunkChars int `yaml:"max_chunk_chars"`
	// OverlapChars re-seeds each new chunk with this much trailing text from
	// the previous chunk; 0 disables overlap.
	OverlapChars int `yaml:"overlap_chars"`
	// TopKCandidates is how many nearest neighbors are fetched before
	// re-ranking and truncation.
	TopKCandidates int `yaml:"top_k_candidates"`
	// SimilarityFloor drops results whose similarity is below it.
	SimilarityFloor float64 `yaml:"similarity_floor"`
	// RerankEnabled turns on lexical re-ranking of top candidates.
	RerankEnabled *bool `yaml:"rerank_enabled"`
	// RerankWeight blends the lexical score into the final ordering:
	// score = (1-w)*similarity + w*lexical.
	RerankWeight float64 `yaml:"rerank_weight"`
}

// RerankEnabledOrDefault returns whether re-ranking is on; defaults to true.
func (s *SearchConfig) RerankEnabledOrDefault() bool {
	if s.RerankEnabled != nil {
		return *s.RerankEnabled
	}
	return true
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	// Workers bounds how many media items ingest concurrently.
	Workers int `yaml:"workers"`
	// MaxAttempts limits retries of transient backend failures per stage.
	MaxAttempts int `yaml:"max_attempts"`
	// RetryBackoffSeconds is the base backoff between attempts (doubled each retry).
	RetryBackoffSeconds int `yaml:"retry_backoff_seconds"`
	// MinFileBytes skips files smaller than this during discovery.
	MinFileBytes int64 `yaml:"min_file_bytes"`
}

// WatchConfig holds directory watch settings for auto-ingestion.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	// Project is the project name assigned to watched files.
	Project string `yaml:"project"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.LexicalIndexPath = expandPath(cfg.Storage.LexicalIndexPath, configDir)
	if cfg.Storage.ArchiveDir != "" {
		cfg.Storage.ArchiveDir = expandPath(cfg.Storage.ArchiveDir, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if cfg.Storage.PostgresDSN == "" {
		cfg.Storage.PostgresDSN = os.Getenv("DATABASE_URL")
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
