package searcher

import (
	"strings"
	"sync"

	"github.com/dshills/codecontext/pkg/types"
)

const DefaultHistorySize = 50

// History is a bounded, most-recent-first list of completed searches.
// A repeated query replaces its earlier entry and moves to the front.
type History struct {
	mu      sync.Mutex
	entries []types.HistoryEntry
	max     int
}

// NewHistory creates a history holding at most size entries
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{max: size}
}

// Add records entry at the front
func (h *History) Add(entry types.HistoryEntry) {
	entry.Filters = entry.Filters.Clone()
	key := historyKey(entry.Query)

	h.mu.Lock()
	defer h.mu.Unlock()

	kept := make([]types.HistoryEntry, 0, min(len(h.entries)+1, h.max))
	kept = append(kept, entry)
	for _, e := range h.entries {
		if len(kept) == h.max {
			break
		}
		if historyKey(e.Query) == key {
			continue
		}
		kept = append(kept, e)
	}
	h.entries = kept
}

// List returns up to limit entries, most recent first. A limit <= 0
// returns everything.
func (h *History) List(limit int) []types.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.HistoryEntry, n)
	for i := range out {
		out[i] = h.entries[i]
		out[i].Filters = h.entries[i].Filters.Clone()
	}
	return out
}

// Queries returns the recorded query strings, most recent first
func (h *History) Queries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Query
	}
	return out
}

// Clear empties the history
func (h *History) Clear() {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
}

// Len returns the number of entries
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func historyKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
