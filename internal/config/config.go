package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vkk1710/RAG-With-Citations/internal/citation"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// HugotEmbedderConfig configures the local ONNX sentence-transformer.
type HugotEmbedderConfig struct {
	Model    string `yaml:"model"`
	ModelDir string `yaml:"model_dir"`
	OnnxFile string `yaml:"onnx_file"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type          string                `yaml:"type"`
	QueryPrefix   string                `yaml:"query_prefix"`
	PassagePrefix string                `yaml:"passage_prefix"`
	OpenAI        *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Hugot         *HugotEmbedderConfig  `yaml:"hugot,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type             string `yaml:"type"`
	MaxWords         int    `yaml:"max_words"`
	OverlapSentences int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	PGVector *PGVectorConfig `yaml:"pgvector,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PGVectorConfig points at a PostgreSQL database with the vector extension.
type PGVectorConfig struct {
	DSNEnv string `yaml:"dsn_env"`
	Table  string `yaml:"table"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// LoaderConfig controls which files and fields become passages.
type LoaderConfig struct {
	TSBOnly   bool   `yaml:"tsb_only"`
	CSVColumn string `yaml:"csv_column"`
}

// RetrievalConfig controls candidate retrieval and reranking.
type RetrievalConfig struct {
	TopK     int    `yaml:"top_k"`
	Reranker string `yaml:"reranker"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type           string  `yaml:"type"`
	BaseURL        string  `yaml:"base_url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Model          string  `yaml:"model"`
	TimeoutSecs    int     `yaml:"timeout_secs"`
	MaxRetries     int     `yaml:"max_retries"`
	MaxPromptChars int     `yaml:"max_prompt_chars"`
	Temperature    float64 `yaml:"temperature"`
	TopP           float64 `yaml:"top_p"`
	MaxNewTokens   int     `yaml:"max_new_tokens"`
}

// RenderConfig controls highlight output files.
type RenderConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
}

// CacheConfig selects the query embedding cache.
type CacheConfig struct {
	Type      string `yaml:"type"`
	Capacity  int    `yaml:"capacity"`
	TTLSecs   int    `yaml:"ttl_secs"`
	RedisAddr string `yaml:"redis_addr"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rate_limit"` // chat requests per second, 0 disables
	Burst     int     `yaml:"burst"`
	// DocumentsDir bounds the paths POST /ingest may read. Empty disables it.
	DocumentsDir string `yaml:"documents_dir"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Loader      LoaderConfig      `yaml:"loader"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Citation    citation.Config   `yaml:"citation"`
	Render      RenderConfig      `yaml:"render"`
	Cache       CacheConfig       `yaml:"cache"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

// Default returns the offline configuration: TF-IDF, in-memory store and
// the mock generator.
func Default() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{Type: "sentence", MaxWords: 64},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Loader:      LoaderConfig{CSVColumn: "CDESCR"},
		Retrieval:   RetrievalConfig{TopK: 10, Reranker: "none"},
		Generator:   GeneratorConfig{Type: "mock"},
		Citation:    citation.DefaultConfig(),
		Render:      RenderConfig{Enabled: true, OutputDir: "highlighted"},
		Cache:       CacheConfig{Type: "none"},
		Server:      ServerConfig{Addr: ":8080"},
		Log:         LogConfig{Level: "info", Format: "console"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.MaxWords <= 0 {
		cfg.Chunker.MaxWords = 64
	}
	if cfg.Loader.CSVColumn == "" {
		cfg.Loader.CSVColumn = "CDESCR"
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Embedder.Type == "hugot" {
		if cfg.Embedder.Hugot == nil {
			cfg.Embedder.Hugot = &HugotEmbedderConfig{}
		}
		if cfg.Embedder.Hugot.Model == "" {
			cfg.Embedder.Hugot.Model = "intfloat/multilingual-e5-small"
		}
		if cfg.Embedder.Hugot.ModelDir == "" {
			cfg.Embedder.Hugot.ModelDir = "models"
		}
		if cfg.Embedder.Hugot.OnnxFile == "" {
			cfg.Embedder.Hugot.OnnxFile = "onnx/model.onnx"
		}
		if cfg.Embedder.QueryPrefix == "" && cfg.Embedder.PassagePrefix == "" {
			cfg.Embedder.QueryPrefix = "query: "
			cfg.Embedder.PassagePrefix = "passage: "
		}
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.BaseURL == "" {
			cfg.Generator.BaseURL = "http://localhost:8000/v1"
		}
		if cfg.Generator.APIKeyEnv == "" {
			cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.TimeoutSecs == 0 {
			cfg.Generator.TimeoutSecs = 120
		}
		if cfg.Generator.MaxRetries == 0 {
			cfg.Generator.MaxRetries = 3
		}
	}
	if cfg.Generator.MaxPromptChars <= 0 {
		cfg.Generator.MaxPromptChars = 8192
	}
	if cfg.Generator.MaxNewTokens <= 0 {
		cfg.Generator.MaxNewTokens = 512
	}
	if cfg.Generator.TopP <= 0 {
		cfg.Generator.TopP = 1
	}
	if cfg.Cache.Capacity <= 0 {
		cfg.Cache.Capacity = 1024
	}
	if cfg.Cache.TTLSecs <= 0 {
		cfg.Cache.TTLSecs = 3600
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
