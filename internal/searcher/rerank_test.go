package searcher

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codecontext/pkg/types"
)

func candidates(scores ...float64) []types.ScoredResult {
	out := make([]types.ScoredResult, len(scores))
	for i, s := range scores {
		out[i] = types.ScoredResult{
			Chunk:       types.CodeChunk{ID: string(rune('a' + i)), FilePath: "f.go", Content: "x"},
			VectorScore: s,
			FinalScore:  s,
		}
	}
	return out
}

func TestApplyJudgements(t *testing.T) {
	results := candidates(0.9, 0.7, 0.4)
	n := applyJudgements(results, []llmJudgement{
		{Index: 2, Score: 10, Reason: " exact match "},
		{Index: 0, Score: 14}, // clamped to 10
		{Index: 0, Score: 1},  // duplicate ignored
		{Index: 1, Score: -3}, // clamped to 0
		{Index: 7, Score: 5},  // out of range
		{Index: -1, Score: 5}, // out of range
	}, 0.5)
	require.Equal(t, 3, n)

	assert.InDelta(t, 0.5*0.4+0.5, results[2].FinalScore, 1e-12)
	assert.Equal(t, "exact match", results[2].Explanation)
	assert.Equal(t, 10.0, *results[0].LLMScore)
	assert.InDelta(t, 0.95, results[0].FinalScore, 1e-12)
	assert.Equal(t, 0.0, *results[1].LLMScore)
	assert.InDelta(t, 0.35, results[1].FinalScore, 1e-12)
	for _, r := range results {
		assert.True(t, r.WasReRanked)
	}
}

func TestApplyJudgementsWeight(t *testing.T) {
	tests := []struct {
		weight float64
		want   float64
	}{
		{weight: 0, want: 0.6},
		{weight: 1, want: 0.2},
		{weight: 0.25, want: 0.75*0.6 + 0.25*0.2},
	}
	for _, tt := range tests {
		results := candidates(0.6)
		applyJudgements(results, []llmJudgement{{Index: 0, Score: 2}}, tt.weight)
		assert.InDelta(t, tt.want, results[0].FinalScore, 1e-12)
	}
}

func TestResetScoresRestoresExactVectorScores(t *testing.T) {
	results := candidates(0.123456789, 0.987654321)
	applyJudgements(results, []llmJudgement{{Index: 0, Score: 3}, {Index: 1, Score: 8}}, 0.5)
	resetScores(results)
	for _, r := range results {
		assert.Equal(t, r.VectorScore, r.FinalScore)
		assert.Nil(t, r.LLMScore)
		assert.Empty(t, r.Explanation)
		assert.False(t, r.WasReRanked)
	}
}

func TestParseJudgements(t *testing.T) {
	got, err := parseJudgements("Here you go:\n```json\n[{\"index\": 1, \"score\": 8.5, \"reason\": \"uses [brackets]\"}]\n```")
	require.NoError(t, err)
	assert.Equal(t, []llmJudgement{{Index: 1, Score: 8.5, Reason: "uses [brackets]"}}, got)

	_, err = parseJudgements("no json here")
	assert.Error(t, err)
	_, err = parseJudgements(`[{"index": "one"}]`)
	assert.Error(t, err)
}

func TestRerankNeedsTwoCandidates(t *testing.T) {
	llmClient := &fakeLLM{rerank: `[{"index":0,"score":10}]`}
	cfg := testConfig()
	s := New(nil, nil, llmClient, cfg, nil)

	results := candidates(0.3)
	assert.False(t, s.rerank(t.Context(), "q", results))
	assert.Equal(t, results[0].VectorScore, results[0].FinalScore)
	assert.Empty(t, llmClient.prompts)
}

func TestRerankOnlySendsTopK(t *testing.T) {
	llmClient := &fakeLLM{rerank: `[{"index":0,"score":10},{"index":1,"score":10},{"index":2,"score":10}]`}
	cfg := testConfig()
	cfg.RerankTopK = 2
	s := New(nil, nil, llmClient, cfg, nil)

	results := candidates(0.9, 0.8, 0.7, 0.6)
	require.True(t, s.rerank(t.Context(), "q", results))

	require.Len(t, llmClient.prompts, 1)
	assert.Contains(t, llmClient.prompts[0], "[1]")
	assert.NotContains(t, llmClient.prompts[0], "[2]")
	assert.True(t, results[0].WasReRanked)
	assert.True(t, results[1].WasReRanked)
	assert.False(t, results[2].WasReRanked)
	assert.Equal(t, results[3].VectorScore, results[3].FinalScore)
}

func TestBuildRerankPromptTruncatesContent(t *testing.T) {
	results := candidates(0.5, 0.4)
	results[0].Chunk.Content = strings.Repeat("x", maxSnippetChars*2)
	prompt := buildRerankPrompt("find x", results)
	assert.Contains(t, prompt, "Query: find x")
	assert.Less(t, strings.Count(prompt, "x"), maxSnippetChars+50)
}

func TestBuildRerankPromptKeepsRunesWhole(t *testing.T) {
	results := candidates(0.5)
	// "é" is two bytes; the odd prefix forces the cut into the middle of one.
	results[0].Chunk.Content = "x" + strings.Repeat("é", maxSnippetChars)
	prompt := buildRerankPrompt("accents", results)
	assert.True(t, utf8.ValidString(prompt))
	assert.Contains(t, prompt, "é\n...")

	assert.Equal(t, "日", truncateRunes("日本", 4))
	assert.Equal(t, "", truncateRunes("日本", 2))
	assert.Equal(t, "ab", truncateRunes("ab", 5))
}

func TestParseExpansionTerms(t *testing.T) {
	terms, err := parseExpansionTerms("Auth", `["login", "AUTH", "login", " token ", ""]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"login", "token"}, terms)

	_, err = parseExpansionTerms("auth", `["auth"]`)
	assert.ErrorIs(t, err, errNoTerms)
	_, err = parseExpansionTerms("auth", `{"terms": ["a"]}`)
	assert.Error(t, err)
}
