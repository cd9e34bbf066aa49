package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/codecontext/internal/config"
	"github.com/dshills/codecontext/pkg/types"
)

// New builds the client selected by cfg.Provider. The "none" provider
// returns a nil Client and no error; callers treat that as disabled.
func New(ctx context.Context, cfg config.LLMConfig) (Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	switch strings.ToLower(cfg.Provider) {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case config.ProviderOllama:
		return NewOllamaClient(cfg.BaseURL, cfg.Model, timeout), nil
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model)
	default:
		return nil, &types.ConfigurationError{Field: "llm.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
}
