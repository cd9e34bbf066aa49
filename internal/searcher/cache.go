package searcher

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dshills/codecontext/pkg/types"
)

const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = 5 * time.Minute
)

// resultCache stores finished responses keyed by query hash. Entries are
// copied on the way in and on the way out, so callers never share slices
// with the cache.
//
// Every purge bumps the generation. A search captures the generation before
// retrieval and its response is only stored if no purge happened since.
type resultCache struct {
	lru *expirable.LRU[[32]byte, *SearchResponse]

	mu         sync.Mutex
	generation uint64
}

func newResultCache(size int, ttl time.Duration) *resultCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &resultCache{lru: expirable.NewLRU[[32]byte, *SearchResponse](size, nil, ttl)}
}

func (c *resultCache) get(key [32]byte) (*SearchResponse, bool) {
	resp, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return copySearchResponse(resp), true
}

// gen returns the current generation
func (c *resultCache) gen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// add stores resp unless the cache was purged after generation gen.
// It reports whether the response was stored.
func (c *resultCache) add(gen uint64, key [32]byte, resp *SearchResponse) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.lru.Add(key, copySearchResponse(resp))
	return true
}

func (c *resultCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.lru.Purge()
}

func (c *resultCache) len() int {
	return c.lru.Len()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Expanded.ExpandedTerms = slices.Clone(src.Expanded.ExpandedTerms)
	dst.Filters = src.Filters.Clone()
	dst.Results = make([]types.ScoredResult, len(src.Results))
	for i, r := range src.Results {
		dst.Results[i] = r.Clone()
	}
	return &dst
}

// normalizeQuery lowercases and collapses whitespace
func normalizeQuery(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// computeQueryHash hashes the normalized query with a stable serialization
// of the effective filters.
func computeQueryHash(text string, f types.SearchFilters) [32]byte {
	var data strings.Builder
	data.WriteString(normalizeQuery(text))

	data.WriteString("|types:")
	data.WriteString(strings.Join(sortedLower(f.FileTypes, true), ","))
	data.WriteString("|langs:")
	data.WriteString(strings.Join(sortedLower(f.Languages, false), ","))
	data.WriteString("|from:")
	if f.DateFrom != nil {
		data.WriteString(f.DateFrom.UTC().Format(time.RFC3339Nano))
	}
	data.WriteString("|to:")
	if f.DateTo != nil {
		data.WriteString(f.DateTo.UTC().Format(time.RFC3339Nano))
	}
	data.WriteString(fmt.Sprintf("|min:%.4f|max:%d", f.MinSimilarity, f.MaxResults))

	return sha256.Sum256([]byte(data.String()))
}

func sortedLower(values []string, trimDot bool) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if trimDot {
			v = strings.TrimPrefix(v, ".")
		}
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
