package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	LocalModel     = "local-hash"
	LocalDimension = 384
)

// LocalProvider produces deterministic feature-hashed vectors. Texts that
// share identifiers land close together, which is enough for offline use
// and tests. No network is involved.
type LocalProvider struct {
	dim int
}

// NewLocalProvider creates a local provider. dim <= 0 selects LocalDimension.
func NewLocalProvider(dim int) *LocalProvider {
	if dim <= 0 {
		dim = LocalDimension
	}
	return &LocalProvider{dim: dim}
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = l.vector(text)
	}
	return vectors, nil
}

func (l *LocalProvider) vector(text string) []float32 {
	v := make([]float32, l.dim)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dim))
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	return NormalizeVector(v)
}

// tokenize lowercases text and splits it on anything that is not a letter
// or digit. camelCase and snake_case identifiers also yield their parts.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := make([]string, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, strings.ToLower(f))
		parts := splitIdentifier(f)
		if len(parts) > 1 {
			for _, p := range parts {
				out = append(out, strings.ToLower(p))
			}
		}
	}
	return out
}

func splitIdentifier(s string) []string {
	var parts []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		switch {
		case r == '_':
			flush()
		case unicode.IsUpper(r) && len(cur) > 0 && !unicode.IsUpper(cur[len(cur)-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return parts
}

func (l *LocalProvider) Available(context.Context) bool { return true }
func (l *LocalProvider) MaxBatchSize() int              { return 256 }
func (l *LocalProvider) Dimension() int                 { return l.dim }
func (l *LocalProvider) Name() string                   { return "local" }
func (l *LocalProvider) Model() string                  { return LocalModel }
func (l *LocalProvider) Close() error                   { return nil }

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}
