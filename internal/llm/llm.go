// Package llm provides the text generation backends used for query
// expansion and re-ranking.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResponse is returned when a backend answers with no text
var ErrEmptyResponse = errors.New("llm returned an empty response")

// Client generates a completion for a single prompt
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
	Model() string
}

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExtractJSON returns the first JSON array or object embedded in text,
// dropping markdown fences and any prose around it. It returns "" when no
// balanced value is found.
func ExtractJSON(text string) string {
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return ""
	}
	open := text[start]
	closeCh := byte(']')
	if open == '{' {
		closeCh = '}'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
