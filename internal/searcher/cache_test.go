package searcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codecontext/pkg/types"
)

func sampleResponse() *SearchResponse {
	llmScore := 7.0
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &SearchResponse{
		Query:   "auth",
		Filters: types.SearchFilters{Languages: []string{"go"}, DateFrom: &from, MaxResults: 10},
		Results: []types.ScoredResult{{
			Chunk:       types.CodeChunk{ID: "a", FilePath: "a.go", Content: "func A() {}"},
			VectorScore: 0.8,
			LLMScore:    &llmScore,
			FinalScore:  0.75,
			WasReRanked: true,
		}},
		Expanded:      types.ExpandedQuery{Original: "auth", ExpandedTerms: []string{"login"}, Combined: "auth login", Confidence: 0.9},
		UsedExpansion: true,
		UsedReRanking: true,
	}
}

func TestResultCacheDeepCopies(t *testing.T) {
	c := newResultCache(10, time.Minute)
	key := computeQueryHash("auth", types.SearchFilters{})
	resp := sampleResponse()
	c.add(0, key, resp)

	// Mutating the stored original does not change the cache
	*resp.Results[0].LLMScore = 1
	resp.Expanded.ExpandedTerms[0] = "changed"
	resp.Filters.Languages[0] = "python"

	first, ok := c.get(key)
	require.True(t, ok)
	assert.Equal(t, 7.0, *first.Results[0].LLMScore)
	assert.Equal(t, "login", first.Expanded.ExpandedTerms[0])
	assert.Equal(t, "go", first.Filters.Languages[0])

	// Mutating a loaded copy does not change the cache either
	*first.Results[0].LLMScore = 2
	first.Results[0].Chunk.Content = "changed"
	*first.Filters.DateFrom = time.Time{}

	second, ok := c.get(key)
	require.True(t, ok)
	assert.Equal(t, sampleResponse(), second)
}

func TestResultCacheExpiresAndPurges(t *testing.T) {
	c := newResultCache(10, 40*time.Millisecond)
	key := computeQueryHash("auth", types.SearchFilters{})
	c.add(0, key, sampleResponse())

	_, ok := c.get(key)
	assert.True(t, ok)
	time.Sleep(100 * time.Millisecond)
	_, ok = c.get(key)
	assert.False(t, ok)

	c.add(0, key, sampleResponse())
	assert.Equal(t, 1, c.len())
	c.purge()
	assert.Zero(t, c.len())
}

func TestResultCacheDropsAddsFromBeforePurge(t *testing.T) {
	c := newResultCache(10, time.Minute)
	key := computeQueryHash("auth", types.SearchFilters{})

	gen := c.gen()
	c.purge()
	assert.False(t, c.add(gen, key, sampleResponse()))
	_, ok := c.get(key)
	assert.False(t, ok)

	assert.True(t, c.add(c.gen(), key, sampleResponse()))
	_, ok = c.get(key)
	assert.True(t, ok)
}

func TestResultCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newResultCache(2, time.Minute)
	k1 := computeQueryHash("one", types.SearchFilters{})
	k2 := computeQueryHash("two", types.SearchFilters{})
	k3 := computeQueryHash("three", types.SearchFilters{})

	c.add(0, k1, sampleResponse())
	c.add(0, k2, sampleResponse())
	_, _ = c.get(k1)
	c.add(0, k3, sampleResponse())

	_, ok := c.get(k2)
	assert.False(t, ok)
	_, ok = c.get(k1)
	assert.True(t, ok)
}

func TestComputeQueryHash(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	base := types.SearchFilters{FileTypes: []string{"go", "py"}, Languages: []string{"go"}, MaxResults: 10}

	same := []struct {
		text    string
		filters types.SearchFilters
	}{
		{"user auth", base},
		{"  USER   auth\n", base},
		{"user auth", types.SearchFilters{FileTypes: []string{".PY", "go", "go"}, Languages: []string{"Go"}, MaxResults: 10}},
	}
	want := computeQueryHash(same[0].text, same[0].filters)
	for _, tt := range same {
		assert.Equal(t, want, computeQueryHash(tt.text, tt.filters), tt.text)
	}

	different := []types.SearchFilters{
		{FileTypes: []string{"go"}, Languages: []string{"go"}, MaxResults: 10},
		{FileTypes: []string{"go", "py"}, Languages: []string{"go"}, MaxResults: 5},
		{FileTypes: []string{"go", "py"}, Languages: []string{"go"}, MaxResults: 10, MinSimilarity: 0.3},
		{FileTypes: []string{"go", "py"}, Languages: []string{"go"}, MaxResults: 10, DateFrom: &from},
		{FileTypes: []string{"go", "py"}, Languages: []string{"go"}, MaxResults: 10, DateTo: &from},
	}
	for _, f := range different {
		assert.NotEqual(t, want, computeQueryHash("user auth", f))
	}
	assert.NotEqual(t, want, computeQueryHash("user auth flow", base))
}
