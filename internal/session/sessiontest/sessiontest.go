// Package sessiontest builds sessions over temporary workspaces for tests
// of the front ends. Sessions use the local embedding provider and an
// in-memory vector index, so no network access is needed.
package sessiontest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/codecontext/internal/chunker"
	"github.com/dshills/codecontext/internal/config"
	"github.com/dshills/codecontext/internal/embedder"
	"github.com/dshills/codecontext/internal/enumerator"
	"github.com/dshills/codecontext/internal/parser"
	"github.com/dshills/codecontext/internal/session"
	"github.com/dshills/codecontext/internal/vectorindex"
)

// Dimension is the embedding size of test sessions
const Dimension = 64

// Workspace is a small two package project
var Workspace = map[string]string{
	"auth/login.go": `package auth

// Login checks user credentials
func Login(user, password string) bool {
	return user != "" && password != ""
}
`,
	"billing/invoice.go": `package billing

// Invoice totals line items
func Invoice(items []int) int {
	total := 0
	for _, i := range items {
		total += i
	}
	return total
}
`,
}

// WriteFile creates rel under root with content
func WriteFile(t testing.TB, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// New returns a session over a fresh workspace holding files and the
// resolved workspace root. The session is closed when the test ends.
func New(t testing.TB, files map[string]string) (*session.Session, string) {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}

	cfg := config.Default()
	cfg.WorkspaceRoot = root
	cfg.Index.DebounceMs = 20
	cfg.Embedding.Dimension = Dimension

	enum, err := enumerator.New(root, enumerator.Options{Extensions: cfg.Index.Extensions})
	require.NoError(t, err)
	ch, err := chunker.New(chunker.DefaultConfig(), parser.New())
	require.NoError(t, err)
	index, err := vectorindex.NewSQLite(context.Background(), vectorindex.MemoryPath, vectorindex.CollectionName(root), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	sess, err := session.New(session.Deps{
		Config:     cfg,
		Enumerator: enum,
		Chunker:    ch,
		Embedder:   embedder.NewGenerator(embedder.NewLocalProvider(Dimension), embedder.Options{CacheSize: 100}),
		Index:      index,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close(context.Background()) })
	return sess, root
}
