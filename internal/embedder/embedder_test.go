package embedder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/codecontext/pkg/types"
)

// scriptedProvider returns queued errors before delegating to a local provider
type scriptedProvider struct {
	*LocalProvider
	mu      sync.Mutex
	errs    []error
	batches [][]string
	maxSize int
}

func newScripted(errs ...error) *scriptedProvider {
	return &scriptedProvider{LocalProvider: NewLocalProvider(8), errs: errs, maxSize: 100}
}

func (s *scriptedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.batches = append(s.batches, append([]string(nil), texts...))
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.LocalProvider.EmbedBatch(ctx, texts)
}

func (s *scriptedProvider) MaxBatchSize() int { return s.maxSize }

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func transient() error {
	return types.NewHTTPError("test", "embed", 503, "unavailable")
}

func TestEmbedRetriesTransientThenSucceeds(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := newScripted(transient(), transient())
	g := NewGenerator(p, Options{Retry: fastRetry(3), Logger: zap.New(core)})

	vectors, err := g.Embed(context.Background(), []string{"alpha"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Len(t, vectors[0], 8)

	stats := g.Stats()
	assert.Equal(t, int64(2), stats.Retries)
	assert.Equal(t, int64(3), stats.Calls)
	assert.Zero(t, stats.Failures)

	entries := logs.FilterMessage("retrying after transient error").All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ContextMap()["attempt"])
	assert.Equal(t, int64(2), entries[1].ContextMap()["attempt"])
	assert.Equal(t, int64(4), entries[1].ContextMap()["max_attempts"])
}

func TestEmbedRetriesExhausted(t *testing.T) {
	p := newScripted(transient(), transient(), transient())
	g := NewGenerator(p, Options{Retry: fastRetry(2)})

	_, err := g.Embed(context.Background(), []string{"alpha"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRetriesExhausted)
	assert.ErrorIs(t, err, types.ErrTransientProvider)

	stats := g.Stats()
	assert.Equal(t, int64(2), stats.Retries)
	assert.Equal(t, int64(1), stats.Failures)
}

func TestEmbedFatalErrorIsNotRetried(t *testing.T) {
	p := newScripted(types.NewHTTPError("test", "embed", 401, "bad key"))
	g := NewGenerator(p, Options{Retry: fastRetry(3)})

	_, err := g.Embed(context.Background(), []string{"alpha"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrFatalProvider)
	assert.NotErrorIs(t, err, types.ErrRetriesExhausted)
	assert.Equal(t, int64(1), g.Stats().Calls)
	assert.Zero(t, g.Stats().Retries)
}

func TestEmbedUnclassifiedErrorIsRetried(t *testing.T) {
	p := newScripted(errors.New("connection reset by peer"))
	g := NewGenerator(p, Options{Retry: fastRetry(1)})

	_, err := g.Embed(context.Background(), []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), g.Stats().Retries)
}

func TestEmbedStopsOnCancelledContext(t *testing.T) {
	p := newScripted(transient(), transient(), transient())
	g := NewGenerator(p, Options{Retry: RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Embed(ctx, []string{"alpha"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmbedRejectsEmptyText(t *testing.T) {
	g := NewGenerator(newScripted(), Options{})
	_, err := g.Embed(context.Background(), []string{"ok", ""})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.ErrorIs(t, err, types.ErrFatalProvider)
}

func TestEmbedBatchesAndCaches(t *testing.T) {
	p := newScripted()
	p.maxSize = 2
	g := NewGenerator(p, Options{BatchSize: 10, CacheSize: 100})

	texts := []string{"a", "b", "c", "d", "e"}
	first, err := g.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, first, 5)
	require.Len(t, p.batches, 3, "batch size is capped by the provider")
	assert.Equal(t, []string{"e"}, p.batches[2])

	second, err := g.Embed(context.Background(), []string{"c", "f", "a"})
	require.NoError(t, err)
	assert.Equal(t, first[2], second[0])
	assert.Equal(t, first[0], second[2])
	require.Len(t, p.batches, 4)
	assert.Equal(t, []string{"f"}, p.batches[3])
	assert.Equal(t, int64(2), g.Stats().CacheHits)

	// Returned vectors are copies
	second[0][0] = 42
	again, err := g.EmbedQuery(context.Background(), "c")
	require.NoError(t, err)
	assert.NotEqual(t, float32(42), again[0])
}

type wrongDimProvider struct{ *LocalProvider }

func (w wrongDimProvider) Dimension() int { return 16 }

func TestEmbedDimensionMismatchIsFatal(t *testing.T) {
	g := NewGenerator(wrongDimProvider{NewLocalProvider(8)}, Options{Retry: fastRetry(3)})
	_, err := g.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Zero(t, g.Stats().Retries)
}

func TestLocalProviderIsDeterministicAndSimilar(t *testing.T) {
	p := NewLocalProvider(0)
	vs, err := p.EmbedBatch(context.Background(), []string{
		"func parseConfig(path string)",
		"func parseConfig(path string)",
		"parse config file",
		"render html template",
	})
	require.NoError(t, err)
	assert.Len(t, vs[0], LocalDimension)
	assert.Equal(t, vs[0], vs[1])
	assert.Greater(t, dot(vs[0], vs[2]), dot(vs[0], vs[3]))
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
	assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))
}

func TestCache(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Set("c", []float32{3})
	assert.Equal(t, 2, c.Size())
	_, ok := c.Get("a")
	assert.False(t, ok)
	c.Clear()
	assert.Zero(t, c.Size())
}
