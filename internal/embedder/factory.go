package embedder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/config"
	"github.com/dshills/codecontext/pkg/types"
)

// NewProvider builds the backend selected by cfg.Provider
func NewProvider(ctx context.Context, cfg config.EmbeddingConfig) (Provider, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch strings.ToLower(cfg.Provider) {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension)
	case config.ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimension, timeout), nil
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension)
	case config.ProviderJina:
		return NewJinaProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimension, timeout)
	case config.ProviderLocal, "":
		return NewLocalProvider(cfg.Dimension), nil
	default:
		return nil, &types.ConfigurationError{Field: "embedding.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
}

// New builds a Generator from configuration
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger) (*Generator, error) {
	p, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewGenerator(p, Options{
		BatchSize: cfg.BatchSize,
		CacheSize: cfg.CacheSize,
		Retry:     RetryConfigFrom(cfg),
		Logger:    logger,
	}), nil
}

// RetryConfigFrom converts the embedding section into a RetryConfig
func RetryConfigFrom(cfg config.EmbeddingConfig) RetryConfig {
	rc := DefaultRetryConfig()
	if cfg.MaxRetries >= 0 {
		rc.MaxRetries = cfg.MaxRetries
	}
	if cfg.InitialBackoffMs > 0 {
		rc.BaseDelay = time.Duration(cfg.InitialBackoffMs) * time.Millisecond
	}
	if cfg.MaxBackoffMs > 0 {
		rc.MaxDelay = time.Duration(cfg.MaxBackoffMs) * time.Millisecond
	}
	if cfg.BackoffFactor > 0 {
		rc.Multiplier = cfg.BackoffFactor
	}
	return rc
}
