package parser

import (
	"bytes"
	"fmt"

	"github.com/dshills/codecontext/pkg/types"
)

// Parser extracts top-level constructs from source files. Go is handled with
// go/ast; other languages go through the tree-sitter registry.
type Parser struct {
	registry *Registry
}

// New creates a Parser with every built-in language registered
func New() *Parser {
	r := NewRegistry()
	RegisterDefaults(r)
	return &Parser{registry: r}
}

// NewWithRegistry creates a Parser over a caller supplied registry
func NewWithRegistry(r *Registry) *Parser {
	return &Parser{registry: r}
}

// Supports reports whether structural parsing is available for a language
func (p *Parser) Supports(language string) bool {
	if language == "go" {
		return true
	}
	return p.registry.Has(language)
}

// Parse extracts constructs from src. Languages without structural support
// return an empty result and no error. Syntax errors are recorded in
// ParseResult.Errors together with whatever constructs could be recovered.
func (p *Parser) Parse(path, language string, src []byte) (*types.ParseResult, error) {
	if IsBinary(src) {
		return nil, &types.ParseError{File: path, Message: "binary content"}
	}

	switch {
	case language == "go":
		return parseGo(path, src), nil
	case p.registry.Has(language):
		result, err := p.parseTreeSitter(path, language, src)
		if err != nil {
			return nil, &types.ParseError{File: path, Message: fmt.Sprintf("tree-sitter: %v", err)}
		}
		return result, nil
	default:
		return &types.ParseResult{Language: language}, nil
	}
}

// IsBinary reports whether content looks binary (a NUL in the first 8KB)
func IsBinary(src []byte) bool {
	head := src
	if len(head) > 8192 {
		head = head[:8192]
	}
	return bytes.IndexByte(head, 0) >= 0
}
