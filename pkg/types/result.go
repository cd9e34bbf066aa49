package types

import (
	"errors"
	"time"
)

var (
	ErrInvalidScore   = errors.New("score must be between 0 and 1")
	ErrEmptyContent   = errors.New("content cannot be empty")
	ErrMissingChunkID = errors.New("chunk id is required")
)

// SearchFilters narrows the candidate set after scoring
type SearchFilters struct {
	FileTypes     []string   `json:"fileTypes,omitempty"` // extensions without dot
	Languages     []string   `json:"languages,omitempty"`
	DateFrom      *time.Time `json:"dateFrom,omitempty"`
	DateTo        *time.Time `json:"dateTo,omitempty"`
	MinSimilarity float64    `json:"minSimilarity,omitempty"`
	MaxResults    int        `json:"maxResults,omitempty"`
}

// Clone returns a deep copy of the filters
func (f SearchFilters) Clone() SearchFilters {
	out := f
	out.FileTypes = append([]string(nil), f.FileTypes...)
	out.Languages = append([]string(nil), f.Languages...)
	if f.DateFrom != nil {
		t := *f.DateFrom
		out.DateFrom = &t
	}
	if f.DateTo != nil {
		t := *f.DateTo
		out.DateTo = &t
	}
	return out
}

// SearchQuery is a raw query plus its filters
type SearchQuery struct {
	Text    string        `json:"text"`
	Filters SearchFilters `json:"filters"`
}

// ExpandedQuery is the per-call output of query expansion
type ExpandedQuery struct {
	Original      string   `json:"original"`
	ExpandedTerms []string `json:"expandedTerms,omitempty"`
	Combined      string   `json:"combined"`
	Confidence    float64  `json:"confidence"`
}

// ScoredResult is a ranked search hit
type ScoredResult struct {
	Chunk       CodeChunk `json:"chunk"`
	VectorScore float64   `json:"vectorScore"`
	LLMScore    *float64  `json:"llmScore,omitempty"`
	FinalScore  float64   `json:"finalScore"`
	Explanation string    `json:"explanation,omitempty"`
	WasReRanked bool      `json:"wasReRanked"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

// Clone returns a deep copy of the result
func (r ScoredResult) Clone() ScoredResult {
	out := r
	if r.LLMScore != nil {
		v := *r.LLMScore
		out.LLMScore = &v
	}
	return out
}

// Validate checks if the search result is valid
func (r *ScoredResult) Validate() error {
	if r.Chunk.ID == "" {
		return ErrMissingChunkID
	}
	if r.Chunk.Content == "" {
		return ErrEmptyContent
	}
	if r.VectorScore < -1 || r.VectorScore > 1 {
		return ErrInvalidScore
	}
	return nil
}

// HistoryEntry records one completed search
type HistoryEntry struct {
	Query         string        `json:"query"`
	Filters       SearchFilters `json:"filters"`
	ResultCount   int           `json:"resultCount"`
	Timestamp     time.Time     `json:"timestamp"`
	UsedExpansion bool          `json:"usedExpansion"`
	UsedReRanking bool          `json:"usedReRanking"`
}
