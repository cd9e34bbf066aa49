package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/dshills/codecontext/pkg/types"
)

// Common errors
var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Provider is an embedding backend. EmbedBatch receives at most
// MaxBatchSize texts and returns one vector per text in input order.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	MaxBatchSize() int
	Dimension() int
	Name() string
	Model() string
	Available(ctx context.Context) bool
	Close() error
}

// Stats counts provider activity since the generator was created
type Stats struct {
	Calls     int64 `json:"calls"`
	Retries   int64 `json:"retries"`
	Failures  int64 `json:"failures"`
	CacheHits int64 `json:"cache_hits"`
}

// Options configures a Generator
type Options struct {
	BatchSize int
	CacheSize int
	Retry     RetryConfig
	Logger    *zap.Logger
}

// Generator turns texts into vectors through a Provider, adding batching,
// caching and retries.
type Generator struct {
	provider  Provider
	cache     *Cache
	retry     RetryConfig
	batchSize int
	logger    *zap.Logger

	calls     atomic.Int64
	retries   atomic.Int64
	failures  atomic.Int64
	cacheHits atomic.Int64
}

// NewGenerator wraps a provider
func NewGenerator(p Provider, opts Options) *Generator {
	batch := opts.BatchSize
	if batch <= 0 || batch > p.MaxBatchSize() {
		batch = p.MaxBatchSize()
	}
	retry := opts.Retry
	if retry.Multiplier <= 0 {
		retry = DefaultRetryConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var cache *Cache
	if opts.CacheSize > 0 {
		cache = NewCache(opts.CacheSize)
	}
	return &Generator{
		provider:  p,
		cache:     cache,
		retry:     retry,
		batchSize: batch,
		logger:    logger.With(zap.String("provider", p.Name()), zap.String("model", p.Model())),
	}
}

// Embed returns one vector per text in input order. Texts already in the
// cache are not sent to the provider. On failure the batches that completed
// stay cached; nothing is returned for them.
func (g *Generator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, types.NewFatalError(g.provider.Name(), "embed", fmt.Errorf("%w: index %d", ErrEmptyText, i))
		}
	}

	vectors := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if g.cache != nil {
			if v, ok := g.cache.Get(g.cacheKey(text)); ok {
				vectors[i] = v
				g.cacheHits.Add(1)
				continue
			}
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += g.batchSize {
		end := min(start+g.batchSize, len(missing))
		idx := missing[start:end]
		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}

		out, err := g.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, i := range idx {
			vectors[i] = out[j]
			if g.cache != nil {
				g.cache.Set(g.cacheKey(texts[i]), out[j])
			}
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Generator) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	dim := g.provider.Dimension()
	out, retries, err := retryWithBackoff(ctx, g.retry, g.logger, "embed", func(ctx context.Context) ([][]float32, error) {
		g.calls.Add(1)
		vectors, err := g.provider.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, types.NewTransientError(g.provider.Name(), "embed",
				fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors)))
		}
		for _, v := range vectors {
			if dim > 0 && len(v) != dim {
				return nil, types.NewFatalError(g.provider.Name(), "embed",
					fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(v)))
			}
		}
		return vectors, nil
	})
	g.retries.Add(int64(retries))
	if err != nil {
		g.failures.Add(1)
		return nil, err
	}
	return out, nil
}

// IsAvailable reports whether the provider can currently serve requests
func (g *Generator) IsAvailable(ctx context.Context) bool {
	return g.provider.Available(ctx)
}

// Dimension returns the vector length produced by the provider
func (g *Generator) Dimension() int {
	return g.provider.Dimension()
}

// Provider returns the wrapped backend
func (g *Generator) Provider() Provider {
	return g.provider
}

// Stats returns a snapshot of the counters
func (g *Generator) Stats() Stats {
	return Stats{
		Calls:     g.calls.Load(),
		Retries:   g.retries.Load(),
		Failures:  g.failures.Load(),
		CacheHits: g.cacheHits.Load(),
	}
}

// Close releases the provider
func (g *Generator) Close() error {
	return g.provider.Close()
}

func (g *Generator) cacheKey(text string) string {
	return ComputeHash(g.provider.Name() + "\x00" + g.provider.Model() + "\x00" + text)
}

// Cache provides in-memory LRU caching of vectors by content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of a cached vector so callers cannot mutate the cache
func (c *Cache) Get(hash string) ([]float32, bool) {
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a copy of a vector
func (c *Cache) Set(hash string, v []float32) {
	stored := make([]float32, len(v))
	copy(stored, v)
	c.cache.Add(hash, stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
