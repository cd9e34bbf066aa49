package chunker

import (
	"strings"

	"github.com/dshills/codecontext/internal/parser"
	"github.com/dshills/codecontext/pkg/types"
)

const (
	// DefaultChunkSize is the sliding window length in lines
	DefaultChunkSize = 50

	// DefaultOverlap is the number of lines shared by consecutive windows
	DefaultOverlap = 10

	// DefaultMaxChunkLines is the longest construct kept as a single chunk
	DefaultMaxChunkLines = 150
)

// Config controls chunk sizes. All values are in lines.
type Config struct {
	ChunkSize     int
	Overlap       int
	MaxChunkLines int
}

// DefaultConfig returns the default chunking configuration
func DefaultConfig() Config {
	return Config{
		ChunkSize:     DefaultChunkSize,
		Overlap:       DefaultOverlap,
		MaxChunkLines: DefaultMaxChunkLines,
	}
}

// Validate checks the configuration without adjusting it
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return &types.ConfigurationError{Field: "index.chunk_size", Reason: "must be positive"}
	}
	if c.Overlap < 0 {
		return &types.ConfigurationError{Field: "index.chunk_overlap", Reason: "must not be negative"}
	}
	if c.Overlap >= c.ChunkSize {
		return &types.ConfigurationError{Field: "index.chunk_overlap", Reason: "must be smaller than chunk_size"}
	}
	if c.MaxChunkLines < 0 {
		return &types.ConfigurationError{Field: "index.max_chunk_lines", Reason: "must not be negative"}
	}
	return nil
}

// Chunker splits source files into CodeChunks
type Chunker struct {
	cfg    Config
	parser *parser.Parser
}

// New creates a Chunker. A nil parser disables structural chunking.
func New(cfg Config, p *parser.Parser) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxChunkLines == 0 {
		cfg.MaxChunkLines = DefaultMaxChunkLines
	}
	return &Chunker{cfg: cfg, parser: p}, nil
}

// Config returns the active configuration
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunk splits one file. Structural constructs become one chunk each;
// files without constructs fall back to a single file chunk or to sliding
// windows. When parsing fails the window chunks are returned together with
// the *types.ParseError.
func (c *Chunker) Chunk(file types.WorkspaceFile, content []byte) ([]types.CodeChunk, error) {
	if parser.IsBinary(content) {
		return nil, &types.ParseError{File: file.RelPath, Message: "binary content"}
	}

	lines := splitLines(string(content))
	if len(lines) == 0 {
		return nil, nil
	}

	if c.parser == nil || !c.parser.Supports(file.Language) {
		return c.unstructured(file, lines), nil
	}

	result, err := c.parser.Parse(file.RelPath, file.Language, content)
	if err != nil {
		return c.windows(file, lines, 1, len(lines), "", ""), err
	}
	if result.HasErrors() {
		return c.windows(file, lines, 1, len(lines), "", ""), result.FirstError()
	}
	if len(result.Symbols) == 0 {
		return c.unstructured(file, lines), nil
	}

	chunks := make([]types.CodeChunk, 0, len(result.Symbols))
	for i := range result.Symbols {
		chunks = append(chunks, c.chunksForSymbol(file, lines, &result.Symbols[i])...)
	}
	return dedupe(chunks), nil
}

func (c *Chunker) chunksForSymbol(file types.WorkspaceFile, lines []string, sym *types.Symbol) []types.CodeChunk {
	start, end := sym.Start.Line, sym.End.Line
	if start <= 0 || start > len(lines) || end < start {
		return nil
	}
	if end > len(lines) {
		end = len(lines)
	}

	if end-start+1 > c.cfg.MaxChunkLines {
		return c.windows(file, lines, start, end, sym.Name, sym.Signature)
	}

	chunk := types.CodeChunk{
		FilePath:   file.RelPath,
		StartLine:  start,
		EndLine:    end,
		Language:   file.Language,
		ChunkType:  sym.ChunkType(),
		SymbolName: sym.Name,
		Signature:  sym.Signature,
		Content:    strings.Join(lines[start-1:end], "\n"),
	}
	chunk.AssignID()
	return []types.CodeChunk{chunk}
}

// unstructured handles files with no constructs
func (c *Chunker) unstructured(file types.WorkspaceFile, lines []string) []types.CodeChunk {
	if len(lines) <= c.cfg.ChunkSize {
		chunk := types.CodeChunk{
			FilePath:  file.RelPath,
			StartLine: 1,
			EndLine:   len(lines),
			Language:  file.Language,
			ChunkType: types.ChunkFile,
			Content:   strings.Join(lines, "\n"),
		}
		chunk.AssignID()
		return []types.CodeChunk{chunk}
	}
	return c.windows(file, lines, 1, len(lines), "", "")
}

// windows covers lines [start, end] with ChunkSize windows sharing Overlap
// lines. Windows that are entirely blank are dropped.
func (c *Chunker) windows(file types.WorkspaceFile, lines []string, start, end int, name, signature string) []types.CodeChunk {
	step := c.cfg.ChunkSize - c.cfg.Overlap
	var chunks []types.CodeChunk
	for from := start; from <= end; from += step {
		to := from + c.cfg.ChunkSize - 1
		if to > end {
			to = end
		}
		content := strings.Join(lines[from-1:to], "\n")
		if strings.TrimSpace(content) != "" {
			chunk := types.CodeChunk{
				FilePath:   file.RelPath,
				StartLine:  from,
				EndLine:    to,
				Language:   file.Language,
				ChunkType:  types.ChunkWindow,
				SymbolName: name,
				Signature:  signature,
				Content:    content,
			}
			chunk.AssignID()
			chunks = append(chunks, chunk)
		}
		if to == end {
			break
		}
	}
	return chunks
}

// splitLines splits text into lines, dropping the empty element after a
// trailing newline. Whitespace-only text has no lines.
func splitLines(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func dedupe(chunks []types.CodeChunk) []types.CodeChunk {
	seen := make(map[string]bool, len(chunks))
	out := chunks[:0]
	for _, ch := range chunks {
		if seen[ch.ID] {
			continue
		}
		seen[ch.ID] = true
		out = append(out, ch)
	}
	return out
}
