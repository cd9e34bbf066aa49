package searcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codecontext/internal/config"
	"github.com/dshills/codecontext/internal/vectorindex"
	"github.com/dshills/codecontext/pkg/types"
)

// fakeEmbedder returns a fixed query vector and records the queries
type fakeEmbedder struct {
	mu      sync.Mutex
	vector  []float32
	err     error
	queries []string
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.vector...), nil
}

func (f *fakeEmbedder) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// fakeLLM answers expansion and re-rank prompts with canned text
type fakeLLM struct {
	mu           sync.Mutex
	expansion    string
	expansionErr error
	rerank       string
	rerankErr    error
	hang         bool // block until the context is done
	prompts      []string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	hang := f.hang
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.Contains(prompt, "Rate how relevant") {
		return f.rerank, f.rerankErr
	}
	return f.expansion, f.expansionErr
}

func (f *fakeLLM) Name() string  { return "fake" }
func (f *fakeLLM) Model() string { return "fake-1" }

// failingSearchIndex fails every Search call
type failingSearchIndex struct {
	vectorindex.Index
}

func (failingSearchIndex) Search(context.Context, []float32, int, *vectorindex.Filter) ([]vectorindex.ScoredRecord, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type doc struct {
	path   string
	lang   string
	name   string
	vector []float32
	mod    time.Time
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// corpus scores against the query vector {1,0,0}: auth.go 1.0, session.go
// and auth_test.go 0.8, user.py 0.6, unrelated.go 0.
func corpus() []doc {
	return []doc{
		{path: "internal/auth/auth.go", lang: "go", name: "Login", vector: []float32{1, 0, 0}, mod: baseTime},
		{path: "internal/auth/session.go", lang: "go", name: "ValidateSession", vector: []float32{0.8, 0.6, 0}, mod: baseTime},
		{path: "internal/auth/auth_test.go", lang: "go", name: "TestLogin", vector: []float32{0.8, 0.6, 0}, mod: baseTime.Add(time.Hour)},
		{path: "scripts/user.py", lang: "python", name: "find_user", vector: []float32{0.6, 0.8, 0}, mod: baseTime.Add(-48 * time.Hour)},
		{path: "internal/util/unrelated.go", lang: "go", name: "Pad", vector: []float32{0, 0, 1}, mod: baseTime},
	}
}

func seedIndex(t *testing.T, docs []doc) *vectorindex.SQLiteIndex {
	t.Helper()
	ctx := context.Background()
	idx, err := vectorindex.NewSQLite(ctx, vectorindex.MemoryPath, "searcher-test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.EnsureCollection(ctx, 3))

	records := make([]vectorindex.Record, 0, len(docs))
	for _, d := range docs {
		chunk := types.CodeChunk{
			FilePath:   d.path,
			StartLine:  1,
			EndLine:    5,
			Language:   d.lang,
			ChunkType:  types.ChunkFunction,
			SymbolName: d.name,
			Content:    "func " + d.name + "() {}",
		}
		chunk.AssignID()
		records = append(records, vectorindex.NewRecord(chunk, d.vector, "hash-"+d.name, d.mod))
	}
	require.NoError(t, idx.Upsert(ctx, records))
	return idx
}

func testConfig() config.SearchConfig {
	cfg := config.Default().Search
	cfg.ExpansionTimeoutMs = 200
	cfg.RerankTimeoutMs = 200
	return cfg
}

type harness struct {
	searcher *Searcher
	embedder *fakeEmbedder
	llm      *fakeLLM
}

func newHarness(t *testing.T, cfg config.SearchConfig, llmClient *fakeLLM) *harness {
	t.Helper()
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	idx := seedIndex(t, corpus())
	h := &harness{embedder: emb, llm: llmClient}
	if llmClient == nil {
		h.searcher = New(idx, emb, nil, cfg, nil)
	} else {
		h.searcher = New(idx, emb, llmClient, cfg, nil)
	}
	return h
}

func paths(results []types.ScoredResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.FilePath
	}
	return out
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := h.searcher.Search(context.Background(), types.SearchQuery{Text: q})
		assert.ErrorIs(t, err, ErrEmptyQuery)
	}
	assert.Empty(t, h.embedder.calls())
}

func TestSearchWithoutLLM(t *testing.T) {
	h := newHarness(t, testConfig(), nil)

	resp, err := h.searcher.Search(context.Background(), types.SearchQuery{Text: "user authentication"})
	require.NoError(t, err)

	assert.False(t, resp.CacheHit)
	assert.False(t, resp.UsedExpansion)
	assert.False(t, resp.UsedReRanking)
	assert.Equal(t, 1.0, resp.Expanded.Confidence)
	assert.Equal(t, "user authentication", resp.Expanded.Combined)
	assert.Equal(t, []string{"user authentication"}, h.embedder.calls())

	assert.Equal(t, []string{
		"internal/auth/auth.go",
		"internal/auth/session.go",
		"internal/auth/auth_test.go",
		"scripts/user.py",
		"internal/util/unrelated.go",
	}, paths(resp.Results))

	for _, r := range resp.Results {
		assert.Equal(t, r.VectorScore, r.FinalScore)
		assert.False(t, r.WasReRanked)
		assert.Nil(t, r.LLMScore)
		require.NoError(t, r.Validate())
	}
	assert.InDelta(t, 1.0, resp.Results[0].VectorScore, 1e-6)
	assert.Equal(t, "Login", resp.Results[0].Chunk.SymbolName)
	assert.Equal(t, baseTime, resp.Results[0].ModifiedAt.UTC())
}

func TestSearchMaxResults(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()

	resp, err := h.searcher.Search(ctx, types.SearchQuery{
		Text:    "user authentication",
		Filters: types.SearchFilters{MaxResults: 2},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.GreaterOrEqual(t, resp.Results[0].FinalScore, resp.Results[1].FinalScore)

	resp, err = h.searcher.Search(ctx, types.SearchQuery{
		Text:    "user authentication",
		Filters: types.SearchFilters{MaxResults: 5000},
	})
	require.NoError(t, err)
	assert.Equal(t, MaxResultsLimit, resp.Filters.MaxResults)

	resp, err = h.searcher.Search(ctx, types.SearchQuery{Text: "defaults"})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxResults, resp.Filters.MaxResults)
}

func TestSearchMaxResultsFive(t *testing.T) {
	docs := make([]doc, 0, 12)
	for i := range 12 {
		docs = append(docs, doc{
			path:   "pkg/file" + string(rune('a'+i)) + ".go",
			lang:   "go",
			name:   "Fn" + string(rune('A'+i)),
			vector: []float32{1, float32(i) * 0.1, 0},
			mod:    baseTime,
		})
	}
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	s := New(seedIndex(t, docs), emb, nil, testConfig(), nil)

	resp, err := s.Search(context.Background(), types.SearchQuery{
		Text:    "user authentication",
		Filters: types.SearchFilters{MaxResults: 5},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 5)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].FinalScore, resp.Results[i].FinalScore)
	}
	assert.Equal(t, "pkg/filea.go", resp.Results[0].Chunk.FilePath)
}

func TestSearchTieBreakPrefersNonTestFiles(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	resp, err := h.searcher.Search(context.Background(), types.SearchQuery{Text: "session"})
	require.NoError(t, err)

	// session.go and auth_test.go score the same; the test file is newer
	// but still sorts after the production file.
	require.GreaterOrEqual(t, len(resp.Results), 3)
	assert.Equal(t, resp.Results[1].VectorScore, resp.Results[2].VectorScore)
	assert.Equal(t, "internal/auth/session.go", resp.Results[1].Chunk.FilePath)
	assert.Equal(t, "internal/auth/auth_test.go", resp.Results[2].Chunk.FilePath)
}

func TestSearchFilters(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()
	from := baseTime.Add(-time.Minute)

	tests := []struct {
		name    string
		filters types.SearchFilters
		want    []string
	}{
		{
			name:    "file type",
			filters: types.SearchFilters{FileTypes: []string{".PY"}},
			want:    []string{"scripts/user.py"},
		},
		{
			name:    "language",
			filters: types.SearchFilters{Languages: []string{"python"}},
			want:    []string{"scripts/user.py"},
		},
		{
			name:    "date range",
			filters: types.SearchFilters{DateFrom: &from, Languages: []string{"go"}, MinSimilarity: 0.5},
			want: []string{
				"internal/auth/auth.go",
				"internal/auth/session.go",
				"internal/auth/auth_test.go",
			},
		},
		{
			name:    "min similarity",
			filters: types.SearchFilters{MinSimilarity: 0.7},
			want: []string{
				"internal/auth/auth.go",
				"internal/auth/session.go",
				"internal/auth/auth_test.go",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := h.searcher.Search(ctx, types.SearchQuery{Text: "auth " + tt.name, Filters: tt.filters})
			require.NoError(t, err)
			assert.Equal(t, tt.want, paths(resp.Results))
		})
	}
}

func TestSearchExpansion(t *testing.T) {
	llmClient := &fakeLLM{
		expansion: "Sure:\n```json\n[\"login\", \"credentials\", \"User Authentication\", \"\"]\n```",
		rerankErr: errors.New("unused"),
	}
	cfg := testConfig()
	cfg.EnableReRanking = false
	h := newHarness(t, cfg, llmClient)

	resp, err := h.searcher.Search(context.Background(), types.SearchQuery{Text: "user authentication"})
	require.NoError(t, err)

	assert.True(t, resp.UsedExpansion)
	assert.Equal(t, 0.9, resp.Expanded.Confidence)
	assert.Equal(t, []string{"login", "credentials"}, resp.Expanded.ExpandedTerms)
	assert.Equal(t, "user authentication login credentials", resp.Expanded.Combined)
	assert.Equal(t, []string{"user authentication login credentials"}, h.embedder.calls())
}

func TestSearchExpansionFallback(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeLLM
	}{
		{name: "error", llm: &fakeLLM{expansionErr: errors.New("503 service unavailable")}},
		{name: "not json", llm: &fakeLLM{expansion: "I think you mean login"}},
		{name: "empty array", llm: &fakeLLM{expansion: "[]"}},
		{name: "timeout", llm: &fakeLLM{hang: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.EnableReRanking = false
			cfg.ExpansionTimeoutMs = 20
			h := newHarness(t, cfg, tt.llm)

			resp, err := h.searcher.Search(context.Background(), types.SearchQuery{Text: "user authentication"})
			require.NoError(t, err)
			assert.False(t, resp.UsedExpansion)
			assert.Equal(t, 0.5, resp.Expanded.Confidence)
			assert.Equal(t, "user authentication", resp.Expanded.Combined)
			assert.Equal(t, []string{"user authentication"}, h.embedder.calls())
			assert.NotEmpty(t, resp.Results)
		})
	}
}

func TestSearchReRanking(t *testing.T) {
	llmClient := &fakeLLM{
		expansionErr: errors.New("skip"),
		rerank:       `[{"index":0,"score":4,"reason":"only mentions login"},{"index":1,"score":10,"reason":"validates sessions"}]`,
	}
	h := newHarness(t, testConfig(), llmClient)

	resp, err := h.searcher.Search(context.Background(), types.SearchQuery{Text: "where are sessions validated"})
	require.NoError(t, err)
	require.True(t, resp.UsedReRanking)

	assert.Equal(t, []string{
		"internal/auth/session.go",
		"internal/auth/auth_test.go",
		"internal/auth/auth.go",
		"scripts/user.py",
		"internal/util/unrelated.go",
	}, paths(resp.Results))

	top := resp.Results[0]
	assert.True(t, top.WasReRanked)
	require.NotNil(t, top.LLMScore)
	assert.Equal(t, 10.0, *top.LLMScore)
	assert.Equal(t, "validates sessions", top.Explanation)
	assert.InDelta(t, 0.5*top.VectorScore+0.5, top.FinalScore, 1e-9)

	unscored := resp.Results[1]
	assert.False(t, unscored.WasReRanked)
	assert.Equal(t, unscored.VectorScore, unscored.FinalScore)

	login := resp.Results[2]
	assert.True(t, login.WasReRanked)
	assert.InDelta(t, 0.5*login.VectorScore+0.2, login.FinalScore, 1e-9)
}

func TestSearchReRankingFallbackKeepsVectorScores(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeLLM
		cfg  func(*config.SearchConfig)
	}{
		{name: "disabled", llm: &fakeLLM{rerank: `[{"index":0,"score":0}]`}, cfg: func(c *config.SearchConfig) { c.EnableReRanking = false }},
		{name: "error", llm: &fakeLLM{rerankErr: errors.New("rate limited")}},
		{name: "garbage", llm: &fakeLLM{rerank: "the first one is best"}},
		{name: "out of range", llm: &fakeLLM{rerank: `[{"index":99,"score":9}]`}},
		{name: "timeout", llm: &fakeLLM{hang: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.EnableExpansion = false
			cfg.RerankTimeoutMs = 20
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			h := newHarness(t, cfg, tt.llm)

			resp, err := h.searcher.Search(context.Background(), types.SearchQuery{Text: "user authentication"})
			require.NoError(t, err)
			assert.False(t, resp.UsedReRanking)
			require.NotEmpty(t, resp.Results)
			for _, r := range resp.Results {
				assert.Equal(t, r.VectorScore, r.FinalScore)
				assert.False(t, r.WasReRanked)
				assert.Nil(t, r.LLMScore)
			}
		})
	}
}

func TestSearchVectorStoreUnavailable(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	s := New(failingSearchIndex{}, emb, nil, testConfig(), nil)

	_, err := s.Search(context.Background(), types.SearchQuery{Text: "user authentication"})
	assert.ErrorIs(t, err, types.ErrVectorStoreUnavailable)
	assert.Empty(t, s.History(0))
}

func TestSearchEmbeddingFailure(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.embedder.err = types.NewFatalError("openai", "embed", errors.New("invalid api key"))

	_, err := h.searcher.Search(context.Background(), types.SearchQuery{Text: "user authentication"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrFatalProvider)
}

func TestSearchCache(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()
	q := types.SearchQuery{Text: "user authentication", Filters: types.SearchFilters{Languages: []string{"go", "python"}}}

	first, err := h.searcher.Search(ctx, q)
	require.NoError(t, err)
	require.NotEmpty(t, first.Results)
	snapshot := copySearchResponse(first)

	// Mutating a returned response must not leak into the cache
	first.Results[0].Chunk.Content = "mutated"
	first.Results = first.Results[:1]

	// Same query after normalization, filters in another order
	second, err := h.searcher.Search(ctx, types.SearchQuery{
		Text:    "  User   Authentication ",
		Filters: types.SearchFilters{Languages: []string{"python", "go"}},
	})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, snapshot.Results, second.Results)
	assert.Len(t, h.embedder.calls(), 1)

	third, err := h.searcher.Search(ctx, q)
	require.NoError(t, err)
	assert.True(t, third.CacheHit)
	assert.Equal(t, second.Results, third.Results)

	// Different filters miss
	_, err = h.searcher.Search(ctx, types.SearchQuery{Text: q.Text, Filters: types.SearchFilters{MaxResults: 3}})
	require.NoError(t, err)
	assert.Len(t, h.embedder.calls(), 2)

	h.searcher.PurgeCache()
	assert.Zero(t, h.searcher.CacheLen())
	again, err := h.searcher.Search(ctx, q)
	require.NoError(t, err)
	assert.False(t, again.CacheHit)
	assert.Len(t, h.embedder.calls(), 3)
}

// blockingIndex holds the first Search after retrieval until released
type blockingIndex struct {
	vectorindex.Index
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (b *blockingIndex) Search(ctx context.Context, vector []float32, limit int, filter *vectorindex.Filter) ([]vectorindex.ScoredRecord, error) {
	hits, err := b.Index.Search(ctx, vector, limit, filter)
	b.once.Do(func() {
		close(b.reached)
		<-b.release
	})
	return hits, err
}

func TestSearchDoesNotCacheAcrossIndexChange(t *testing.T) {
	ctx := context.Background()
	idx := seedIndex(t, corpus())
	blocking := &blockingIndex{Index: idx, reached: make(chan struct{}), release: make(chan struct{})}
	s := New(blocking, &fakeEmbedder{vector: []float32{1, 0, 0}}, nil, testConfig(), nil)
	q := types.SearchQuery{Text: "login"}

	done := make(chan *SearchResponse, 1)
	go func() {
		resp, err := s.Search(ctx, q)
		assert.NoError(t, err)
		done <- resp
	}()

	<-blocking.reached
	require.NoError(t, idx.DeleteByFile(ctx, "internal/auth/auth.go"))
	s.PurgeCache()
	close(blocking.release)

	stale := <-done
	require.NotNil(t, stale)
	assert.Contains(t, paths(stale.Results), "internal/auth/auth.go")
	assert.Zero(t, s.CacheLen())

	fresh, err := s.Search(ctx, q)
	require.NoError(t, err)
	assert.False(t, fresh.CacheHit)
	assert.NotContains(t, paths(fresh.Results), "internal/auth/auth.go")
}

func TestSearchCacheExpiry(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	h.searcher.cache = newResultCache(10, 50*time.Millisecond)
	ctx := context.Background()
	q := types.SearchQuery{Text: "user authentication"}

	_, err := h.searcher.Search(ctx, q)
	require.NoError(t, err)
	resp, err := h.searcher.Search(ctx, q)
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)

	time.Sleep(120 * time.Millisecond)

	resp, err = h.searcher.Search(ctx, q)
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Len(t, h.embedder.calls(), 2)
}

func TestSearchHistory(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()

	for _, q := range []string{"user authentication", "session handling", "User Authentication "} {
		_, err := h.searcher.Search(ctx, types.SearchQuery{Text: q})
		require.NoError(t, err)
	}

	history := h.searcher.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "User Authentication", history[0].Query)
	assert.Equal(t, "session handling", history[1].Query)
	assert.Equal(t, 5, history[0].ResultCount)

	assert.Len(t, h.searcher.History(1), 1)

	h.searcher.ClearHistory()
	assert.Empty(t, h.searcher.History(0))
	assert.Empty(t, h.searcher.Suggestions("", 10))
}

func TestSearchSuggestions(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	ctx := context.Background()
	for _, q := range []string{"login flow", "session handling"} {
		_, err := h.searcher.Search(ctx, types.SearchQuery{Text: q})
		require.NoError(t, err)
	}

	got := h.searcher.Suggestions("log", 10)
	assert.Equal(t, []string{"login flow", "Login", "TestLogin"}, got)

	got = h.searcher.Suggestions("SESSION", 10)
	assert.Equal(t, []string{"session handling", "ValidateSession"}, got)

	assert.Len(t, h.searcher.Suggestions("", 2), 2)
}

func TestSearchConcurrent(t *testing.T) {
	llmClient := &fakeLLM{
		expansion: `["login"]`,
		rerank:    `[{"index":0,"score":7,"reason":"ok"}]`,
	}
	h := newHarness(t, testConfig(), llmClient)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := []string{"auth", "session", "user"}[i%3]
			resp, err := h.searcher.Search(context.Background(), types.SearchQuery{Text: q})
			assert.NoError(t, err)
			if resp != nil {
				assert.NotEmpty(t, resp.Results)
			}
			h.searcher.Suggestions(q[:2], 5)
			h.searcher.History(5)
		}()
	}
	wg.Wait()
	assert.Len(t, h.searcher.History(0), 3)
}
