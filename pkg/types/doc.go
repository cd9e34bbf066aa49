// Package types provides shared type definitions for codecontext.
//
// It holds the domain types passed between the enumerator, chunker,
// embedder, vector index, coordinator and search pipeline, plus the error
// taxonomy every component reports through.
//
// # Chunks
//
// CodeChunk ids are derived from the relative file path and line range:
//
//	chunk := types.CodeChunk{FilePath: "auth/login.go", StartLine: 10, EndLine: 42}
//	chunk.AssignID() // stable across runs for the same range
//
// # Errors
//
// Provider failures carry a transient flag and match the ErrTransientProvider
// or ErrFatalProvider sentinels:
//
//	if errors.Is(err, types.ErrFatalProvider) {
//	    // do not retry
//	}
//
// Vector store outages match ErrVectorStoreUnavailable, the single-flight
// guard returns *AlreadyRunningError (matching ErrAlreadyRunning), and
// configuration problems are *ConfigurationError.
package types
