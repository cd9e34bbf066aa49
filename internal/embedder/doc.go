// Package embedder turns chunk and query text into vectors.
//
// A Provider is a single backend (OpenAI, Ollama, Gemini, Jina or the
// offline local hasher). The Generator wraps a provider with batching, an
// LRU cache keyed by content hash and retries with exponential backoff.
//
// # Basic Usage
//
//	gen, err := embedder.New(ctx, cfg.Embedding, logger)
//	if err != nil {
//	    return err
//	}
//	defer gen.Close()
//
//	vectors, err := gen.Embed(ctx, []string{chunk.EmbeddingText()})
//
// # Error Handling
//
// Provider failures are *types.ProviderError values classified as transient
// or fatal:
//
//	errors.Is(err, types.ErrTransientProvider) // 408, 429, 5xx, timeouts
//	errors.Is(err, types.ErrFatalProvider)     // 400, 401, 403, 404, validation
//
// Transient errors are retried up to RetryConfig.MaxRetries times, each
// retry logged at warn level with its attempt number. A fatal error returns
// immediately. When the budget runs out the error wraps
// types.ErrRetriesExhausted together with the last cause:
//
//	if errors.Is(err, types.ErrRetriesExhausted) {
//	    // the backend kept failing
//	}
//
// Context cancellation is returned as is and never retried.
//
// # Stats
//
// Stats reports provider calls, retries, failures and cache hits so callers
// can surface embedding health.
package embedder
