package searcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/codecontext/pkg/types"
)

func result(path string, start int, final float64, mod time.Time) types.ScoredResult {
	return types.ScoredResult{
		Chunk:       types.CodeChunk{FilePath: path, StartLine: start},
		VectorScore: final,
		FinalScore:  final,
		ModifiedAt:  mod,
	}
}

func TestSortResultsIsDeterministic(t *testing.T) {
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(24 * time.Hour)

	results := []types.ScoredResult{
		result("b.go", 20, 0.5, old),
		result("a_test.go", 1, 0.5, recent),
		result("b.go", 3, 0.5, old),
		result("c.go", 1, 0.5, recent),
		result("z.go", 1, 0.9, old),
		result("a.go", 1, 0.5, old),
	}
	sortResults(results)

	var got []string
	for _, r := range results {
		got = append(got, r.Chunk.Title())
	}
	assert.Equal(t, []string{
		"z.go:1-0",
		"c.go:1-0",
		"a.go:1-0",
		"b.go:3-0",
		"b.go:20-0",
		"a_test.go:1-0",
	}, got)
}

func TestApplyFilters(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }
	from, to := day(10), day(20)

	results := []types.ScoredResult{
		result("a.go", 1, 0.9, day(15)),
		result("b.py", 1, 0.9, day(15)),
		result("c.go", 1, 0.9, day(5)),
		result("d.go", 1, 0.9, day(25)),
		result("e.go", 1, 0.2, day(15)),
		result("f.GO", 1, 0.8, day(10)),
	}
	got := applyFilters(results, types.SearchFilters{
		FileTypes:     []string{"go"},
		DateFrom:      &from,
		DateTo:        &to,
		MinSimilarity: 0.5,
	})

	var paths []string
	for _, r := range got {
		paths = append(paths, r.Chunk.FilePath)
	}
	assert.Equal(t, []string{"a.go", "f.GO"}, paths)
}

func TestApplyFiltersLanguage(t *testing.T) {
	results := []types.ScoredResult{
		{Chunk: types.CodeChunk{FilePath: "a.ts", Language: "typescript"}},
		{Chunk: types.CodeChunk{FilePath: "b.py", Language: "python"}},
	}
	got := applyFilters(results, types.SearchFilters{Languages: []string{"Python"}})
	assert.Len(t, got, 1)
	assert.Equal(t, "b.py", got[0].Chunk.FilePath)
}

func TestRankSuggestions(t *testing.T) {
	candidates := []string{"user login", "Login", "parseUser", "USER LOGIN", "", "userStore", "logout"}

	assert.Equal(t, []string{"user login", "userStore", "parseUser"}, rankSuggestions("user", candidates, 10))
	assert.Equal(t, []string{"Login", "logout", "user login"}, rankSuggestions("LOG", candidates, 10))
	assert.Equal(t, []string{"user login"}, rankSuggestions("user", candidates, 1))
	assert.Empty(t, rankSuggestions("zzz", candidates, 10))
}
