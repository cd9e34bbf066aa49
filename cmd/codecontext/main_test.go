package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codecontext/internal/searcher"
	"github.com/dshills/codecontext/internal/vectorindex"
	"github.com/dshills/codecontext/pkg/types"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("72h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-72*time.Hour), got)

	got, err = parseSince("2025-05-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = parseSince("last week", now)
	assert.Error(t, err)
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, &searcher.SearchResponse{})
	assert.Equal(t, "no results\n", buf.String())

	buf.Reset()
	printResults(&buf, &searcher.SearchResponse{
		Results: []types.ScoredResult{
			{
				Chunk:       types.CodeChunk{FilePath: "auth/login.go", StartLine: 3, EndLine: 9, ChunkType: types.ChunkFunction, SymbolName: "Login"},
				FinalScore:  0.91,
				Explanation: "checks credentials",
			},
			{
				Chunk:      types.CodeChunk{FilePath: "README.md", StartLine: 1, EndLine: 20, ChunkType: types.ChunkWindow},
				FinalScore: 0.5,
			},
		},
		UsedReRanking: true,
		CacheHit:      true,
	})
	out := buf.String()
	assert.Contains(t, out, " 1. 0.910  auth/login.go:3-9  Login\n")
	assert.Contains(t, out, "    checks credentials\n")
	assert.Contains(t, out, " 2. 0.500  README.md:1-20  window\n")
	assert.Contains(t, out, "(reranked; cached)\n")
}

func TestPrintIndexResult(t *testing.T) {
	var buf bytes.Buffer
	result := &types.IndexingResult{ProcessedFiles: 2, SkippedFiles: 1, Chunks: 5, Duration: 1500 * time.Millisecond}
	require.NoError(t, printIndexResult(&buf, result, false))
	assert.Equal(t, "processed 2, skipped 1, deleted 0 files; 5 chunks in 1.5s\n", buf.String())

	buf.Reset()
	require.NoError(t, printIndexResult(&buf, result, true))
	assert.Contains(t, buf.String(), "{")
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Build Mode: "+vectorindex.BuildMode)
	assert.Contains(t, buf.String(), "SQLite Driver: "+vectorindex.DriverName)
}
