package searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/config"
	"github.com/dshills/codecontext/internal/llm"
	"github.com/dshills/codecontext/internal/logging"
	"github.com/dshills/codecontext/internal/vectorindex"
	"github.com/dshills/codecontext/pkg/types"
)

const (
	DefaultMaxResults          = 10
	MaxResultsLimit            = 100
	DefaultCandidateMultiplier = 3
	maxCandidates              = 100
)

// ErrEmptyQuery is returned for a blank query
var ErrEmptyQuery = errors.New("query text is empty")

// Embedder turns query text into a vector
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Query         string               `json:"query"`
	Filters       types.SearchFilters  `json:"filters"`
	Results       []types.ScoredResult `json:"results"`
	Expanded      types.ExpandedQuery  `json:"expanded"`
	CacheHit      bool                 `json:"cacheHit"`
	UsedExpansion bool                 `json:"usedExpansion"`
	UsedReRanking bool                 `json:"usedReRanking"`
	Duration      time.Duration        `json:"duration"`
}

// Searcher runs the retrieval pipeline over one vector index. It is safe
// for concurrent use.
type Searcher struct {
	index    vectorindex.Index
	embedder Embedder
	llm      llm.Client // nil disables expansion and re-ranking
	cfg      config.SearchConfig
	logger   *zap.Logger

	expansionTimeout time.Duration
	rerankTimeout    time.Duration

	cache   *resultCache
	history *History
	symbols *symbolSet
}

// New creates a Searcher. client may be nil.
func New(index vectorindex.Index, emb Embedder, client llm.Client, cfg config.SearchConfig, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Searcher{
		index:            index,
		embedder:         emb,
		llm:              client,
		cfg:              cfg,
		logger:           logger.Named("searcher"),
		expansionTimeout: time.Duration(cfg.ExpansionTimeoutMs) * time.Millisecond,
		rerankTimeout:    time.Duration(cfg.RerankTimeoutMs) * time.Millisecond,
		cache:            newResultCache(cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second),
		history:          NewHistory(cfg.HistorySize),
		symbols:          &symbolSet{},
	}
	if s.expansionTimeout <= 0 {
		s.expansionTimeout = DefaultExpansionTimeout
	}
	if s.rerankTimeout <= 0 {
		s.rerankTimeout = DefaultRerankTimeout
	}
	return s
}

// Search validates the query, then answers it from the cache or by running
// expansion, embedding, retrieval, re-ranking and filtering in that order.
// Every answered query is recorded in the history.
func (s *Searcher) Search(ctx context.Context, q types.SearchQuery) (*SearchResponse, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrEmptyQuery
	}
	filters := s.effectiveFilters(q.Filters)

	var resp *SearchResponse
	err := logging.Measure(logging.WithLogger(ctx, s.logger), "search", func(ctx context.Context) error {
		var err error
		resp, err = s.search(ctx, text, filters)
		return err
	}, zap.String("query", text))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Searcher) search(ctx context.Context, text string, filters types.SearchFilters) (*SearchResponse, error) {
	start := time.Now()
	key := computeQueryHash(text, filters)
	gen := s.cache.gen()

	if cached, ok := s.cache.get(key); ok {
		cached.Query = text
		cached.CacheHit = true
		cached.Duration = time.Since(start)
		s.record(cached)
		logging.FromContext(ctx).Debug("search cache hit", zap.Int("results", len(cached.Results)))
		return cached, nil
	}

	expanded, usedExpansion := s.expand(ctx, text)

	vector, err := s.embedder.EmbedQuery(ctx, expanded.Combined)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.index.Search(ctx, vector, s.candidateLimit(filters.MaxResults), &vectorindex.Filter{
		Languages: filters.Languages,
		MinScore:  filters.MinSimilarity,
	})
	if err != nil {
		return nil, retrievalError(err)
	}

	results := make([]types.ScoredResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, types.ScoredResult{
			Chunk:       h.Chunk(),
			VectorScore: h.Score,
			FinalScore:  h.Score,
			ModifiedAt:  h.Payload.ModifiedAt,
		})
	}
	results = applyFilters(results, filters)
	sortResults(results)

	usedReRanking := s.rerank(ctx, text, results)
	sortResults(results)
	if len(results) > filters.MaxResults {
		results = results[:filters.MaxResults]
	}
	s.symbols.observe(results)

	resp := &SearchResponse{
		Query:         text,
		Filters:       filters,
		Results:       results,
		Expanded:      expanded,
		UsedExpansion: usedExpansion,
		UsedReRanking: usedReRanking,
		Duration:      time.Since(start),
	}
	if !s.cache.add(gen, key, resp) {
		logging.FromContext(ctx).Debug("index changed during search, response not cached")
	}
	s.record(resp)
	return resp, nil
}

// effectiveFilters applies defaults and limits to caller filters
func (s *Searcher) effectiveFilters(f types.SearchFilters) types.SearchFilters {
	f = f.Clone()
	if f.MaxResults <= 0 {
		f.MaxResults = s.cfg.MaxResults
		if f.MaxResults <= 0 {
			f.MaxResults = DefaultMaxResults
		}
	}
	f.MaxResults = min(f.MaxResults, MaxResultsLimit)
	if f.MinSimilarity <= 0 {
		f.MinSimilarity = max(s.cfg.MinSimilarity, 0)
	}
	return f
}

func (s *Searcher) candidateLimit(maxResults int) int {
	mult := s.cfg.CandidateMultiplier
	if mult <= 0 {
		mult = DefaultCandidateMultiplier
	}
	return min(maxResults*mult, maxCandidates)
}

func (s *Searcher) record(resp *SearchResponse) {
	s.history.Add(types.HistoryEntry{
		Query:         resp.Query,
		Filters:       resp.Filters,
		ResultCount:   len(resp.Results),
		Timestamp:     time.Now(),
		UsedExpansion: resp.UsedExpansion,
		UsedReRanking: resp.UsedReRanking,
	})
}

// retrievalError maps index failures to the vector store sentinel while
// leaving cancellation untouched.
func retrievalError(err error) error {
	if errors.Is(err, types.ErrVectorStoreUnavailable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return types.NewVectorStoreError("search", err)
}

// PurgeCache drops every cached response. Call it after the index changes.
func (s *Searcher) PurgeCache() {
	s.cache.purge()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	return s.cache.len()
}

// History returns up to limit recent searches, most recent first
func (s *Searcher) History(limit int) []types.HistoryEntry {
	return s.history.List(limit)
}

// ClearHistory empties the search history and the remembered symbols
func (s *Searcher) ClearHistory() {
	s.history.Clear()
	s.symbols.clear()
}
