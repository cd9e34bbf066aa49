// Package searcher answers natural language queries against a vector index.
//
// A query goes through these stages:
//
//  1. Validate: blank text is rejected; MaxResults defaults to 10, capped at 100
//  2. Cache: identical queries with identical filters are served from an
//     expiring LRU cache
//  3. Expand: an LLM suggests related terms that are appended to the query
//  4. Embed: the combined query becomes one vector
//  5. Retrieve: the index returns MaxResults * CandidateMultiplier candidates
//  6. Re-rank: the LLM scores the top candidates from 0 to 10 and the score
//     is blended with the vector similarity
//  7. Filter and sort: file type, language, date and similarity filters,
//     then a deterministic order and truncation
//
// # Basic Usage
//
//	s := searcher.New(index, generator, llmClient, cfg.Search, logger)
//
//	resp, err := s.Search(ctx, types.SearchQuery{
//	    Text:    "where are sessions validated",
//	    Filters: types.SearchFilters{Languages: []string{"go"}, MaxResults: 5},
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%.3f %s\n", r.FinalScore, r.Chunk.Title())
//	}
//
// # Degradation
//
// Expansion and re-ranking are optional. Without an LLM client, when they
// are disabled, or when the LLM fails, times out or answers with something
// that is not the requested JSON, the search still succeeds: expansion falls
// back to the original query (confidence 0.5) and every result keeps
// FinalScore equal to VectorScore.
//
// Retrieval failures are not degraded. They fail the search with an error
// matching types.ErrVectorStoreUnavailable.
//
// # Scoring
//
// Re-ranked candidates get
//
//	FinalScore = (1-w)*VectorScore + w*(LLMScore/10)
//
// with w = RerankWeight (default 0.5). Results are sorted by FinalScore;
// ties prefer non-test files, then newer files, then path and start line.
//
// # Caching
//
// Responses are cached for CacheTTLSeconds (default 5 minutes) under a
// SHA-256 of the normalized query and its effective filters. Cached values
// are deep copies, so callers may modify what they receive. PurgeCache must
// be called whenever the index changes.
//
// # History and Suggestions
//
// Every answered query, cached or not, is recorded in a bounded history
// (default 50) that keeps one entry per case-insensitive query. Suggestions
// completes partial input from that history and from symbol names seen in
// recent results.
package searcher
