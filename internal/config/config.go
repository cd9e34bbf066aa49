package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dshills/codecontext/pkg/types"
)

// Environment variables read by ApplyEnv
const (
	EnvEmbeddingProvider = "CODECONTEXT_EMBEDDING_PROVIDER"
	EnvLLMProvider       = "CODECONTEXT_LLM_PROVIDER"
	EnvDBPath            = "CODECONTEXT_DB_PATH"
	EnvLogLevel          = "CODECONTEXT_LOG_LEVEL"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvJinaAPIKey        = "JINA_API_KEY"
	EnvGeminiAPIKey      = "GEMINI_API_KEY"
	EnvOllamaHost        = "OLLAMA_HOST"
	EnvQdrantURL         = "QDRANT_URL"
	EnvQdrantAPIKey      = "QDRANT_API_KEY"
)

// Provider names shared by the embedding and LLM sections
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderJina   = "jina"
	ProviderLocal  = "local"
	ProviderNone   = "none"

	StoreSQLite = "sqlite"
	StoreQdrant = "qdrant"
)

type Config struct {
	WorkspaceRoot string            `json:"workspace_root"`
	Index         IndexConfig       `json:"index"`
	Embedding     EmbeddingConfig   `json:"embedding"`
	LLM           LLMConfig         `json:"llm"`
	VectorStore   VectorStoreConfig `json:"vector_store"`
	Search        SearchConfig      `json:"search"`
	Log           LogConfig         `json:"log"`
	Server        ServerConfig      `json:"server"`
	Schedule      ScheduleConfig    `json:"schedule"`
}

type IndexConfig struct {
	Extensions     []string `json:"extensions"`
	Exclude        []string `json:"exclude"`
	MaxFileSize    int64    `json:"max_file_size"`
	ChunkSize      int      `json:"chunk_size"`    // lines per window
	ChunkOverlap   int      `json:"chunk_overlap"` // lines shared by adjacent windows
	MaxChunkLines  int      `json:"max_chunk_lines"`
	MaxConcurrency int      `json:"max_concurrency"`
	DebounceMs     int      `json:"debounce_ms"`
}

type EmbeddingConfig struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	APIKey           string  `json:"api_key"`
	BaseURL          string  `json:"base_url"`
	Dimension        int     `json:"dimension"`
	BatchSize        int     `json:"batch_size"`
	MaxRetries       int     `json:"max_retries"`
	InitialBackoffMs int     `json:"initial_backoff_ms"`
	MaxBackoffMs     int     `json:"max_backoff_ms"`
	BackoffFactor    float64 `json:"backoff_factor"`
	TimeoutSeconds   int     `json:"timeout_seconds"`
	CacheSize        int     `json:"cache_size"`
}

type LLMConfig struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type VectorStoreConfig struct {
	Provider       string `json:"provider"`
	Path           string `json:"path"` // sqlite database file
	URL            string `json:"url"`  // qdrant base url
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type SearchConfig struct {
	EnableExpansion     bool    `json:"enable_expansion"`
	EnableReRanking     bool    `json:"enable_reranking"`
	MaxResults          int     `json:"max_results"`
	MinSimilarity       float64 `json:"min_similarity"`
	CandidateMultiplier int     `json:"candidate_multiplier"`
	RerankTopK          int     `json:"rerank_top_k"`
	RerankWeight        float64 `json:"rerank_weight"`
	ExpansionTimeoutMs  int     `json:"expansion_timeout_ms"`
	RerankTimeoutMs     int     `json:"rerank_timeout_ms"`
	CacheSize           int     `json:"cache_size"`
	CacheTTLSeconds     int     `json:"cache_ttl_seconds"`
	HistorySize         int     `json:"history_size"`
}

type LogConfig struct {
	Level      string `json:"level"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Console    bool   `json:"console"`
}

type ServerConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	PortStart int    `json:"port_start"`
	PortEnd   int    `json:"port_end"`
	PortFile  string `json:"port_file"`
}

type ScheduleConfig struct {
	ReconcileSpec string `json:"reconcile_spec"`
	HealthSpec    string `json:"health_spec"`
}

// Default returns a configuration usable without a config file
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Extensions: []string{
				"go", "py", "pyi", "js", "jsx", "mjs", "cjs", "ts", "tsx",
				"java", "rs", "rb", "c", "h", "cpp", "hpp", "cs", "php",
				"kt", "swift", "scala", "sh", "sql", "md",
			},
			MaxFileSize:    1 << 20,
			ChunkSize:      50,
			ChunkOverlap:   10,
			MaxChunkLines:  150,
			MaxConcurrency: 4,
			DebounceMs:     1000,
		},
		Embedding: EmbeddingConfig{
			Provider:         ProviderLocal,
			BatchSize:        50,
			MaxRetries:       3,
			InitialBackoffMs: 100,
			MaxBackoffMs:     5000,
			BackoffFactor:    2.0,
			TimeoutSeconds:   30,
			CacheSize:        10000,
		},
		LLM: LLMConfig{
			Provider:       ProviderNone,
			TimeoutSeconds: 10,
		},
		VectorStore: VectorStoreConfig{
			Provider:       StoreSQLite,
			TimeoutSeconds: 30,
		},
		Search: SearchConfig{
			EnableExpansion:     true,
			EnableReRanking:     true,
			MaxResults:          10,
			MinSimilarity:       0,
			CandidateMultiplier: 3,
			RerankTopK:          20,
			RerankWeight:        0.5,
			ExpansionTimeoutMs:  3000,
			RerankTimeoutMs:     8000,
			CacheSize:           1000,
			CacheTTLSeconds:     300,
			HistorySize:         50,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 7,
			Console:    true,
		},
		Server: ServerConfig{
			Host:      "127.0.0.1",
			PortStart: 8000,
			PortEnd:   9000,
		},
		Schedule: ScheduleConfig{
			HealthSpec: "*/5 * * * *",
		},
	}
}

// Override adjusts a loaded configuration before it is normalized, for
// command line flags.
type Override func(*Config)

// Load reads a JSON config file over the defaults, applies environment
// overrides, then the given overrides, and validates the result.
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.ApplyEnv()
	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv fills provider selection and credentials from the environment.
// Explicit config values win over the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		c.Embedding.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(EnvLLMProvider); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv(EnvDBPath); v != "" && c.VectorStore.Path == "" {
		c.VectorStore.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvQdrantURL); v != "" && c.VectorStore.URL == "" {
		c.VectorStore.URL = v
	}
	if v := os.Getenv(EnvQdrantAPIKey); v != "" && c.VectorStore.APIKey == "" {
		c.VectorStore.APIKey = v
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = apiKeyFromEnv(c.Embedding.Provider)
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = apiKeyFromEnv(c.LLM.Provider)
	}
	if host := os.Getenv(EnvOllamaHost); host != "" {
		if c.Embedding.Provider == ProviderOllama && c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = host
		}
		if c.LLM.Provider == ProviderOllama && c.LLM.BaseURL == "" {
			c.LLM.BaseURL = host
		}
	}
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return os.Getenv(EnvOpenAIAPIKey)
	case ProviderJina:
		return os.Getenv(EnvJinaAPIKey)
	case ProviderGemini:
		return os.Getenv(EnvGeminiAPIKey)
	}
	return ""
}

// Normalize resolves the workspace root and the default database path
func (c *Config) Normalize() error {
	if c.WorkspaceRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve workspace root: %w", err)
		}
		c.WorkspaceRoot = wd
	}
	abs, err := filepath.Abs(c.WorkspaceRoot)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}
	c.WorkspaceRoot = filepath.Clean(abs)

	if c.VectorStore.Provider == StoreSQLite && c.VectorStore.Path == "" {
		c.VectorStore.Path = filepath.Join(c.WorkspaceRoot, ".codecontext", "index.db")
	}
	for i, ext := range c.Index.Extensions {
		c.Index.Extensions[i] = strings.TrimPrefix(strings.ToLower(ext), ".")
	}
	return nil
}

// Validate rejects configurations that cannot run. Nothing is clamped.
func (c *Config) Validate() error {
	if c.Index.ChunkSize <= 0 {
		return &types.ConfigurationError{Field: "index.chunk_size", Reason: "must be positive"}
	}
	if c.Index.ChunkOverlap < 0 {
		return &types.ConfigurationError{Field: "index.chunk_overlap", Reason: "must not be negative"}
	}
	if c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return &types.ConfigurationError{
			Field:  "index.chunk_overlap",
			Reason: fmt.Sprintf("overlap %d must be smaller than chunk size %d", c.Index.ChunkOverlap, c.Index.ChunkSize),
		}
	}
	if c.Index.MaxChunkLines > 0 && c.Index.MaxChunkLines < c.Index.ChunkSize {
		return &types.ConfigurationError{Field: "index.max_chunk_lines", Reason: "must be at least chunk_size"}
	}
	if c.Index.MaxConcurrency <= 0 {
		return &types.ConfigurationError{Field: "index.max_concurrency", Reason: "must be positive"}
	}
	if c.Index.DebounceMs < 0 {
		return &types.ConfigurationError{Field: "index.debounce_ms", Reason: "must not be negative"}
	}
	if c.Index.MaxFileSize <= 0 {
		return &types.ConfigurationError{Field: "index.max_file_size", Reason: "must be positive"}
	}
	if c.Embedding.BatchSize <= 0 {
		return &types.ConfigurationError{Field: "embedding.batch_size", Reason: "must be positive"}
	}
	if c.Embedding.MaxRetries < 1 {
		return &types.ConfigurationError{Field: "embedding.max_retries", Reason: "must be at least 1"}
	}
	if c.Embedding.BackoffFactor < 1 {
		return &types.ConfigurationError{Field: "embedding.backoff_factor", Reason: "must be at least 1"}
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderJina, ProviderGemini:
		if c.Embedding.APIKey == "" {
			return &types.ConfigurationError{Field: "embedding.api_key", Reason: "required for provider " + c.Embedding.Provider}
		}
	case ProviderOllama, ProviderLocal:
	default:
		return &types.ConfigurationError{Field: "embedding.provider", Reason: "unknown provider " + strconv.Quote(c.Embedding.Provider)}
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
		if c.LLM.APIKey == "" {
			return &types.ConfigurationError{Field: "llm.api_key", Reason: "required for provider " + c.LLM.Provider}
		}
	case ProviderOllama, ProviderNone, "":
	default:
		return &types.ConfigurationError{Field: "llm.provider", Reason: "unknown provider " + strconv.Quote(c.LLM.Provider)}
	}

	switch c.VectorStore.Provider {
	case StoreSQLite:
	case StoreQdrant:
		if c.VectorStore.URL == "" {
			return &types.ConfigurationError{Field: "vector_store.url", Reason: "required for qdrant"}
		}
	default:
		return &types.ConfigurationError{Field: "vector_store.provider", Reason: "unknown provider " + strconv.Quote(c.VectorStore.Provider)}
	}

	if c.Search.RerankWeight < 0 || c.Search.RerankWeight > 1 {
		return &types.ConfigurationError{Field: "search.rerank_weight", Reason: "must be within [0, 1]"}
	}
	if c.Search.MinSimilarity < 0 || c.Search.MinSimilarity > 1 {
		return &types.ConfigurationError{Field: "search.min_similarity", Reason: "must be within [0, 1]"}
	}
	if c.Search.MaxResults <= 0 || c.Search.MaxResults > 100 {
		return &types.ConfigurationError{Field: "search.max_results", Reason: "must be within [1, 100]"}
	}
	if c.Search.HistorySize <= 0 {
		return &types.ConfigurationError{Field: "search.history_size", Reason: "must be positive"}
	}
	if c.Server.PortStart > c.Server.PortEnd {
		return &types.ConfigurationError{Field: "server.port_start", Reason: "must not exceed port_end"}
	}
	return nil
}

// Debounce returns the per-path debounce delay
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Index.DebounceMs) * time.Millisecond
}

// CacheTTL returns the search cache entry lifetime
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Search.CacheTTLSeconds) * time.Second
}

// LLMEnabled reports whether an LLM backend is configured
func (c *Config) LLMEnabled() bool {
	return c.LLM.Provider != "" && c.LLM.Provider != ProviderNone
}
