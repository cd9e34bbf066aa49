package searcher

import (
	"strings"
	"sync"

	"github.com/dshills/codecontext/pkg/types"
)

const (
	DefaultSuggestionLimit = 10
	maxRecentSymbols       = 500
)

// symbolSet remembers symbol names seen in recent results, newest first
type symbolSet struct {
	mu    sync.Mutex
	names []string
}

func (s *symbolSet) observe(results []types.ScoredResult) {
	var fresh []string
	for _, r := range results {
		if r.Chunk.SymbolName != "" {
			fresh = append(fresh, r.Chunk.SymbolName)
		}
	}
	if len(fresh) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool, len(fresh)+len(s.names))
	merged := make([]string, 0, min(len(fresh)+len(s.names), maxRecentSymbols))
	for _, list := range [][]string{fresh, s.names} {
		for _, name := range list {
			if seen[name] || len(merged) == maxRecentSymbols {
				continue
			}
			seen[name] = true
			merged = append(merged, name)
		}
	}
	s.names = merged
}

func (s *symbolSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

func (s *symbolSet) clear() {
	s.mu.Lock()
	s.names = nil
	s.mu.Unlock()
}

// Suggestions completes a partial query from search history and recently
// seen symbol names. Prefix matches come before substring matches and
// matching ignores case. An empty partial lists candidates in recency order.
func (s *Searcher) Suggestions(partial string, limit int) []string {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}
	candidates := append(s.history.Queries(), s.symbols.list()...)
	return rankSuggestions(partial, candidates, limit)
}

func rankSuggestions(partial string, candidates []string, limit int) []string {
	needle := strings.ToLower(strings.TrimSpace(partial))
	seen := make(map[string]bool, len(candidates))
	var prefix, contains []string
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" || seen[key] {
			continue
		}
		switch {
		case strings.HasPrefix(key, needle):
			seen[key] = true
			prefix = append(prefix, c)
		case strings.Contains(key, needle):
			seen[key] = true
			contains = append(contains, c)
		}
	}
	out := append(prefix, contains...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
