package searcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/llm"
	"github.com/dshills/codecontext/internal/logging"
	"github.com/dshills/codecontext/pkg/types"
)

const (
	DefaultExpansionTimeout = 3 * time.Second

	confidenceExpanded = 0.9
	confidenceFallback = 0.5
	confidenceOriginal = 1.0

	maxExpansionTerms = 8
)

var errNoTerms = errors.New("no usable expansion terms")

const expansionPrompt = `You help search a source code repository.
Given the search query below, list related programming terms, identifiers,
synonyms and API names that would help find the relevant code.

Query: %s

Respond with a JSON array of at most %d short strings and nothing else.
Example: ["authenticate", "login", "session token"]`

// expand asks the LLM for related terms. Every failure falls back to the
// original query; the second return reports whether expansion was used.
func (s *Searcher) expand(ctx context.Context, query string) (types.ExpandedQuery, bool) {
	original := types.ExpandedQuery{Original: query, Combined: query, Confidence: confidenceOriginal}
	if !s.cfg.EnableExpansion || s.llm == nil {
		return original, false
	}

	ctx, cancel := context.WithTimeout(ctx, s.expansionTimeout)
	defer cancel()

	terms, err := s.expansionTerms(ctx, query)
	if err != nil {
		logging.FromContext(ctx).Debug("query expansion fell back to original query",
			zap.String("provider", s.llm.Name()),
			zap.Error(err))
		original.Confidence = confidenceFallback
		return original, false
	}

	return types.ExpandedQuery{
		Original:      query,
		ExpandedTerms: terms,
		Combined:      query + " " + strings.Join(terms, " "),
		Confidence:    confidenceExpanded,
	}, true
}

func (s *Searcher) expansionTerms(ctx context.Context, query string) ([]string, error) {
	text, err := s.llm.Generate(ctx, fmt.Sprintf(expansionPrompt, query, maxExpansionTerms))
	if err != nil {
		return nil, err
	}
	return parseExpansionTerms(query, text)
}

// parseExpansionTerms extracts the JSON array from an LLM answer and drops
// blanks, duplicates and echoes of the query.
func parseExpansionTerms(query, text string) ([]string, error) {
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("expansion response has no JSON array")
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode expansion terms: %w", err)
	}

	seen := map[string]bool{normalizeQuery(query): true}
	terms := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := normalizeQuery(v)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, v)
		if len(terms) == maxExpansionTerms {
			break
		}
	}
	if len(terms) == 0 {
		return nil, errNoTerms
	}
	return terms, nil
}
