package types

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ChunkType represents the type of code chunk
type ChunkType string

const (
	ChunkFunction ChunkType = "function"
	ChunkMethod   ChunkType = "method"
	ChunkClass    ChunkType = "class"
	ChunkFile     ChunkType = "file"
	ChunkWindow   ChunkType = "window"
)

// CodeChunk is a bounded, addressable unit of source text that is embedded
// and indexed independently.
type CodeChunk struct {
	ID       string
	FilePath string // Relative to workspace root, slash separated

	// Location (1-based, inclusive)
	StartLine int
	EndLine   int

	Language   string
	ChunkType  ChunkType
	SymbolName string
	Signature  string

	Content string
}

// ChunkID derives the deterministic chunk id for a file path and line range.
// The same range of the same file always maps to the same id.
func ChunkID(filePath string, startLine, endLine int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%d-%d", filePath, startLine, endLine)))
	return hex.EncodeToString(sum[:16])
}

// AssignID sets the chunk ID from its file path and line range
func (c *CodeChunk) AssignID() {
	c.ID = ChunkID(c.FilePath, c.StartLine, c.EndLine)
}

// Title returns a short human readable label for the chunk
func (c *CodeChunk) Title() string {
	if c.SymbolName != "" {
		return fmt.Sprintf("%s %s (%s:%d-%d)", c.ChunkType, c.SymbolName, c.FilePath, c.StartLine, c.EndLine)
	}
	return fmt.Sprintf("%s:%d-%d", c.FilePath, c.StartLine, c.EndLine)
}

// EmbeddingText returns the content prefixed with a location header.
// Only the embedding sees the header; stored content stays verbatim.
func (c *CodeChunk) EmbeddingText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "// File: %s\n", c.FilePath)
	if c.Language != "" {
		fmt.Fprintf(&b, "// Language: %s\n", c.Language)
	}
	if c.SymbolName != "" {
		fmt.Fprintf(&b, "// %s: %s\n", c.ChunkType, c.SymbolName)
	}
	if c.Signature != "" && c.Signature != c.SymbolName {
		fmt.Fprintf(&b, "// Signature: %s\n", c.Signature)
	}
	b.WriteString(c.Content)
	return b.String()
}

// ValidateChunkType checks if the chunk type is valid
func (c *CodeChunk) ValidateChunkType() error {
	switch c.ChunkType {
	case ChunkFunction, ChunkMethod, ChunkClass, ChunkFile, ChunkWindow:
		return nil
	default:
		return errors.New("invalid chunk type")
	}
}

// Validate performs comprehensive validation of the chunk
func (c *CodeChunk) Validate() error {
	if c.Content == "" {
		return errors.New("chunk content cannot be empty")
	}
	if c.FilePath == "" {
		return errors.New("chunk file path is required")
	}
	if c.StartLine <= 0 || c.EndLine <= 0 {
		return errors.New("line numbers must be positive")
	}
	if c.StartLine > c.EndLine {
		return errors.New("start line must be before or equal to end line")
	}
	if err := c.ValidateChunkType(); err != nil {
		return err
	}
	if c.ID != ChunkID(c.FilePath, c.StartLine, c.EndLine) {
		return errors.New("chunk id does not match file path and line range")
	}
	return nil
}

// IsTestFile reports whether a relative path names a test or spec file.
func IsTestFile(path string) bool {
	p := strings.ToLower(path)
	base := p
	if i := strings.LastIndex(p, "/"); i >= 0 {
		base = p[i+1:]
	}
	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"),
		strings.HasSuffix(base, "_test.py"),
		strings.Contains(base, ".test."),
		strings.Contains(base, ".spec."),
		strings.HasSuffix(base, "test.java"),
		strings.HasSuffix(base, "tests.rs"):
		return true
	}
	return strings.Contains(p, "/__tests__/") || strings.HasPrefix(p, "__tests__/") ||
		strings.HasPrefix(p, "tests/") || strings.Contains(p, "/tests/") ||
		strings.HasPrefix(p, "test/") || strings.Contains(p, "/test/")
}
