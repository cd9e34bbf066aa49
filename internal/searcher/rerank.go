package searcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/llm"
	"github.com/dshills/codecontext/internal/logging"
	"github.com/dshills/codecontext/pkg/types"
)

const (
	DefaultRerankTopK    = 20
	DefaultRerankWeight  = 0.5
	DefaultRerankTimeout = 8 * time.Second

	maxSnippetChars = 1200
)

var errNoScores = errors.New("re-rank response scored no candidates")

// llmJudgement is one entry of the re-rank response
type llmJudgement struct {
	Index  int     `json:"index"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// rerank scores the top candidates with the LLM and blends the scores into
// FinalScore. On any failure results are reset so FinalScore equals
// VectorScore and the second return is false.
func (s *Searcher) rerank(ctx context.Context, query string, results []types.ScoredResult) bool {
	resetScores(results)
	if !s.cfg.EnableReRanking || s.llm == nil || len(results) < 2 {
		return false
	}

	topK := s.cfg.RerankTopK
	if topK <= 0 {
		topK = DefaultRerankTopK
	}
	candidates := results[:min(topK, len(results))]

	ctx, cancel := context.WithTimeout(ctx, s.rerankTimeout)
	defer cancel()

	text, err := s.llm.Generate(ctx, buildRerankPrompt(query, candidates))
	if err == nil {
		var judgements []llmJudgement
		judgements, err = parseJudgements(text)
		if err == nil {
			if applyJudgements(candidates, judgements, s.rerankWeight()) > 0 {
				return true
			}
			err = errNoScores
		}
	}

	logging.FromContext(ctx).Debug("re-ranking fell back to vector scores",
		zap.String("provider", s.llm.Name()),
		zap.Int("candidates", len(candidates)),
		zap.Error(err))
	resetScores(results)
	return false
}

func (s *Searcher) rerankWeight() float64 {
	w := s.cfg.RerankWeight
	if w < 0 || w > 1 {
		return DefaultRerankWeight
	}
	return w
}

func buildRerankPrompt(query string, candidates []types.ScoredResult) string {
	var b strings.Builder
	b.WriteString("Rate how relevant each code snippet is to the search query on a scale of 0 to 10.\n\n")
	fmt.Fprintf(&b, "Query: %s\n\n", query)
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i, c.Chunk.Title())
		content := c.Chunk.Content
		if len(content) > maxSnippetChars {
			content = truncateRunes(content, maxSnippetChars) + "\n..."
		}
		b.WriteString("```\n")
		b.WriteString(content)
		b.WriteString("\n```\n\n")
	}
	b.WriteString(`Respond only with a JSON array: [{"index": 0, "score": 7, "reason": "short explanation"}]`)
	return b.String()
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func parseJudgements(text string) ([]llmJudgement, error) {
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("re-rank response has no JSON array")
	}
	var judgements []llmJudgement
	if err := json.Unmarshal([]byte(raw), &judgements); err != nil {
		return nil, fmt.Errorf("decode re-rank scores: %w", err)
	}
	return judgements, nil
}

// applyJudgements blends LLM scores into candidates and returns how many
// were scored. Out of range indexes are ignored; scores are clamped to
// [0, 10]. The first judgement for an index wins.
func applyJudgements(candidates []types.ScoredResult, judgements []llmJudgement, weight float64) int {
	scored := 0
	for _, j := range judgements {
		if j.Index < 0 || j.Index >= len(candidates) {
			continue
		}
		c := &candidates[j.Index]
		if c.WasReRanked {
			continue
		}
		score := min(max(j.Score, 0), 10)
		c.LLMScore = &score
		c.FinalScore = (1-weight)*c.VectorScore + weight*(score/10)
		c.Explanation = strings.TrimSpace(j.Reason)
		c.WasReRanked = true
		scored++
	}
	return scored
}

func resetScores(results []types.ScoredResult) {
	for i := range results {
		r := &results[i]
		r.FinalScore = r.VectorScore
		r.LLMScore = nil
		r.Explanation = ""
		r.WasReRanked = false
	}
}
