// Package chunker splits workspace files into CodeChunks.
//
// Chunking is structural first. Every top-level construct reported by the
// parser becomes one chunk typed function, method or class. Constructs longer
// than MaxChunkLines are cut into sliding windows that keep the symbol name.
//
// Files without constructs (unsupported languages, plain text, Go files with
// only declarations) become one file chunk when they fit in a single window
// and window chunks otherwise. A file that fails to parse is also chunked
// with windows, and the parse error is returned alongside the chunks so the
// caller can record it and keep going.
//
// Chunk ids are derived from the relative path and line range, so an
// unchanged range keeps its id across runs:
//
//	c, err := chunker.New(chunker.DefaultConfig(), parser.New())
//	chunks, err := c.Chunk(file, content)
//	var pe *types.ParseError
//	if errors.As(err, &pe) {
//	    // chunks still holds the window fallback
//	}
package chunker
