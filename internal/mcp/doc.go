// Package mcp implements the Model Context Protocol (MCP) server for codecontext.
//
// The server exposes one workspace session to AI coding assistants as tools:
//   - index_codebase: index the workspace (incremental, or full with force_reindex)
//   - pause_indexing / resume_indexing: hold back and release queued file changes
//   - get_status: indexing state plus vector store and provider health
//   - search_code: semantic search with optional filters
//   - suggest_queries: completions from recent searches and symbol names
//   - search_history / clear_search_history: recent searches
//   - file_preview: numbered lines around a location
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries the protocol, so the server logs to stderr or a file only.
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	codecontext serve --root /path/to/project
//
// Tool calls are translated into internal/protocol requests and run through
// the same dispatcher as the HTTP RPC endpoint, so validation and error
// classification are shared.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "query": "where are sessions refreshed",
//	    "limit": 5,
//	    "filters": {"languages": ["go"], "min_relevance": 0.3}
//	  }
//	}
//
//	Response:
//	{
//	  "query": "where are sessions refreshed",
//	  "results": [
//	    {
//	      "rank": 1,
//	      "file": "auth/session.go",
//	      "start_line": 42,
//	      "end_line": 71,
//	      "symbol": "Manager.Refresh",
//	      "score": 0.83,
//	      "content": "func (m *Manager) Refresh(..."
//	    }
//	  ],
//	  "total_results": 1,
//	  "cache_hit": false,
//	  "used_expansion": true,
//	  "used_reranking": true
//	}
//
// # Error Handling
//
// Failures are returned as *MCPError values:
//
//	-32602  Invalid parameters
//	-32603  Internal error
//	-32001  Vector store unavailable
//	-32002  Indexing already in progress
//	-32003  Embedding or LLM provider failure
//	-32004  Empty query
//	-32005  Request cancelled
package mcp
