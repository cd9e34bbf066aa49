package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codecontext/internal/chunker"
	"github.com/dshills/codecontext/internal/config"
	"github.com/dshills/codecontext/internal/embedder"
	"github.com/dshills/codecontext/internal/enumerator"
	"github.com/dshills/codecontext/internal/parser"
	"github.com/dshills/codecontext/internal/vectorindex"
	"github.com/dshills/codecontext/pkg/types"
)

const authGo = `package auth

// Login checks user credentials
func Login(user, password string) bool {
	return user != "" && password != ""
}
`

const billingGo = `package billing

// Invoice totals line items
func Invoice(items []int) int {
	total := 0
	for _, i := range items {
		total += i
	}
	return total
}
`

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(root string) *config.Config {
	cfg := config.Default()
	cfg.WorkspaceRoot = root
	cfg.Index.DebounceMs = 20
	cfg.Embedding.Dimension = 64
	return cfg
}

func newTestSession(t *testing.T) (*Session, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	writeFile(t, root, "auth/login.go", authGo)
	writeFile(t, root, "billing/invoice.go", billingGo)

	cfg := testConfig(root)
	enum, err := enumerator.New(root, enumerator.Options{Extensions: cfg.Index.Extensions})
	require.NoError(t, err)
	ch, err := chunker.New(chunker.DefaultConfig(), parser.New())
	require.NoError(t, err)
	index, err := vectorindex.NewSQLite(context.Background(), vectorindex.MemoryPath, vectorindex.CollectionName(root), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	sess, err := New(Deps{
		Config:     cfg,
		Enumerator: enum,
		Chunker:    ch,
		Embedder:   embedder.NewGenerator(embedder.NewLocalProvider(64), embedder.Options{CacheSize: 100}),
		Index:      index,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close(context.Background()) })
	return sess, root
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
	_, err = New(Deps{Config: config.Default()})
	assert.Error(t, err)
}

func TestIndexAndSearch(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	result, err := sess.StartIndexing(ctx, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ProcessedFiles)
	assert.Equal(t, types.StateIdle, sess.IndexState())

	resp, err := sess.Search(ctx, "Login user credentials", types.SearchFilters{MaxResults: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.LessOrEqual(t, len(resp.Results), 5)
	assert.Equal(t, "auth/login.go", resp.Results[0].Chunk.FilePath)
	assert.False(t, resp.UsedExpansion)
	assert.False(t, resp.UsedReRanking)

	history := sess.SearchHistory(10)
	require.Len(t, history, 1)
	assert.Equal(t, "Login user credentials", history[0].Query)
	assert.Contains(t, sess.Suggestions("log", 0), "Login user credentials")

	sess.ClearSearchHistory()
	assert.Empty(t, sess.SearchHistory(10))
}

func TestIndexChangePurgesSearchCache(t *testing.T) {
	sess, root := newTestSession(t)
	ctx := context.Background()
	_, err := sess.StartIndexing(ctx, nil)
	require.NoError(t, err)

	_, err = sess.Search(ctx, "invoice total", types.SearchFilters{})
	require.NoError(t, err)
	resp, err := sess.Search(ctx, "invoice total", types.SearchFilters{})
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)

	path := writeFile(t, root, "billing/refund.go", "package billing\n\n// Refund reverses an invoice total\nfunc Refund() {}\n")
	require.NoError(t, sess.HandleEvent(ctx, types.FileEvent{Path: path, Kind: types.ChangeCreate}))

	resp, err = sess.Search(ctx, "invoice total", types.SearchFilters{})
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)

	var files []string
	for _, r := range resp.Results {
		files = append(files, r.Chunk.FilePath)
	}
	assert.Contains(t, files, "billing/refund.go")
}

func TestPauseResumeAndFullReindex(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	sess.PauseIndexing()
	assert.Equal(t, types.StatePaused, sess.IndexState())
	sess.ResumeIndexing()
	assert.Equal(t, types.StateIdle, sess.IndexState())

	_, err := sess.StartIndexing(ctx, nil)
	require.NoError(t, err)
	again, err := sess.StartIndexing(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, again.ProcessedFiles)

	full, err := sess.TriggerFullReindex(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, full.ProcessedFiles)
}

func TestFilePreview(t *testing.T) {
	sess, _ := newTestSession(t)

	got, err := sess.FilePreview("auth/login.go", 4, 1)
	require.NoError(t, err)
	assert.Contains(t, got, "> 4 | func Login(user, password string) bool {")

	_, err = sess.FilePreview("../outside.go", 1, 1)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()
	_, err := sess.StartIndexing(ctx, nil)
	require.NoError(t, err)

	report := sess.Health(ctx)
	assert.True(t, report.Healthy)
	assert.Equal(t, types.StateIdle, report.State)
	assert.True(t, report.VectorStore.Healthy)
	assert.Positive(t, report.VectorStore.Records)
	assert.Equal(t, "local", report.Embedding.Name)
	assert.True(t, report.Embedding.Available)
	assert.False(t, report.LLM.Enabled)
	assert.Equal(t, "none", report.LLM.Name)
}

func TestCloseIsIdempotentAndRejectsWork(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, sess.Close(ctx))
	require.NoError(t, sess.Close(ctx))

	_, err := sess.StartIndexing(ctx, nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = sess.Search(ctx, "login", types.SearchFilters{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, sess.Watch(ctx), ErrClosed)
}

func TestWatchAppliesChanges(t *testing.T) {
	sess, root := newTestSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := sess.StartIndexing(ctx, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sess.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "billing", "invoice.go")))

	assert.Eventually(t, func() bool {
		resp, err := sess.Search(context.Background(), "Invoice totals line items "+time.Now().String(), types.SearchFilters{})
		if err != nil {
			return false
		}
		for _, r := range resp.Results {
			if r.Chunk.FilePath == "billing/invoice.go" {
				return false
			}
		}
		return true
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestOpen(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")

	cfg := testConfig(root)
	cfg.VectorStore.Path = filepath.Join(t.TempDir(), "index.db")
	require.NoError(t, cfg.Normalize())
	require.NoError(t, cfg.Validate())

	ctx := context.Background()
	sess, err := Open(ctx, cfg, nil)
	require.NoError(t, err)

	result, err := sess.StartIndexing(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedFiles)
	require.NoError(t, sess.Close(ctx))

	// The index persists across sessions
	sess, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { _ = sess.Close(ctx) }()
	result, err = sess.StartIndexing(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, result.ProcessedFiles)
	assert.Equal(t, 1, result.SkippedFiles)
}

func TestOpenRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.VectorStore.Provider = "cassandra"
	_, err := Open(context.Background(), cfg, nil)
	var cfgErr *types.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestStoreHealth(t *testing.T) {
	sess, root := newTestSession(t)

	report := sess.StoreHealth(context.Background())
	assert.True(t, report.Healthy)
	assert.Equal(t, vectorindex.CollectionName(root), report.Collection)
	assert.Zero(t, report.Records)
}
