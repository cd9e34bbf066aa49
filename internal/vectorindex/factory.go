package vectorindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/config"
	"github.com/dshills/codecontext/pkg/types"
)

// DefaultDBPath returns the database location used when none is configured
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".codecontext", "index.db")
	}
	return filepath.Join(home, ".codecontext", "index.db")
}

// Open creates the configured backend for one collection
func Open(ctx context.Context, cfg config.VectorStoreConfig, collection string, logger *zap.Logger) (Index, error) {
	switch cfg.Provider {
	case config.StoreSQLite, "":
		path := cfg.Path
		if path == "" {
			path = DefaultDBPath()
		}
		return NewSQLite(ctx, path, collection, logger)
	case config.StoreQdrant:
		if cfg.URL == "" {
			return nil, &types.ConfigurationError{Field: "vector_store.url", Reason: "required for qdrant"}
		}
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		return NewQdrant(cfg.URL, cfg.APIKey, collection, timeout, logger), nil
	default:
		return nil, &types.ConfigurationError{
			Field:  "vector_store.provider",
			Reason: fmt.Sprintf("unknown provider %q", cfg.Provider),
		}
	}
}
