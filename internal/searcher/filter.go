package searcher

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/codecontext/pkg/types"
)

// matcher applies SearchFilters to individual results
type matcher struct {
	fileTypes map[string]bool
	languages map[string]bool
	filters   types.SearchFilters
}

func newMatcher(f types.SearchFilters) matcher {
	m := matcher{filters: f}
	if exts := sortedLower(f.FileTypes, true); len(exts) > 0 {
		m.fileTypes = make(map[string]bool, len(exts))
		for _, e := range exts {
			m.fileTypes[e] = true
		}
	}
	if langs := sortedLower(f.Languages, false); len(langs) > 0 {
		m.languages = make(map[string]bool, len(langs))
		for _, l := range langs {
			m.languages[l] = true
		}
	}
	return m
}

func (m matcher) match(r types.ScoredResult) bool {
	if m.fileTypes != nil {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(r.Chunk.FilePath)), ".")
		if !m.fileTypes[ext] {
			return false
		}
	}
	if m.languages != nil && !m.languages[strings.ToLower(r.Chunk.Language)] {
		return false
	}
	if m.filters.DateFrom != nil && r.ModifiedAt.Before(*m.filters.DateFrom) {
		return false
	}
	if m.filters.DateTo != nil && r.ModifiedAt.After(*m.filters.DateTo) {
		return false
	}
	return m.filters.MinSimilarity <= 0 || r.VectorScore >= m.filters.MinSimilarity
}

// applyFilters keeps the matching results, preserving order
func applyFilters(results []types.ScoredResult, f types.SearchFilters) []types.ScoredResult {
	m := newMatcher(f)
	kept := results[:0]
	for _, r := range results {
		if m.match(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

// sortResults orders by FinalScore descending. Ties prefer non-test files,
// then newer files, then path and start line.
func sortResults(results []types.ScoredResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if at, bt := types.IsTestFile(a.Chunk.FilePath), types.IsTestFile(b.Chunk.FilePath); at != bt {
			return !at
		}
		if !a.ModifiedAt.Equal(b.ModifiedAt) {
			return a.ModifiedAt.After(b.ModifiedAt)
		}
		if a.Chunk.FilePath != b.Chunk.FilePath {
			return a.Chunk.FilePath < b.Chunk.FilePath
		}
		return a.Chunk.StartLine < b.Chunk.StartLine
	})
}
