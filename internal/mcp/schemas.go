package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codecontext/internal/protocol"
)

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

// indexCodebaseTool returns the tool definition for index_codebase
func indexCodebaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_codebase",
		Description: "Index the workspace so it can be searched. Unchanged files are skipped unless force_reindex is set.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, drop the index and re-embed every file",
					"default":     false,
				},
			},
		},
	}
}

func pauseIndexingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "pause_indexing",
		Description: "Pause indexing. File changes keep queueing and are applied on resume.",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
	}
}

func resumeIndexingTool() mcp.Tool {
	return mcp.Tool{
		Name:        "resume_indexing",
		Description: "Resume indexing and apply queued file changes",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Annotations: readOnlyAnnotation,
		Description: "Report the indexing state and the health of the vector store and providers",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Annotations: readOnlyAnnotation,
		Description: "Search the indexed workspace with a natural language or keyword query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional filters to narrow search",
					"properties": map[string]interface{}{
						"file_types": map[string]interface{}{
							"type":        "array",
							"description": "File extensions without the dot (e.g. go, py)",
							"items":       map[string]interface{}{"type": "string"},
						},
						"languages": map[string]interface{}{
							"type":        "array",
							"description": "Language names (e.g. go, python, typescript)",
							"items":       map[string]interface{}{"type": "string"},
						},
						"modified_after": map[string]interface{}{
							"type":        "string",
							"description": "RFC 3339 timestamp; only files modified at or after it",
						},
						"modified_before": map[string]interface{}{
							"type":        "string",
							"description": "RFC 3339 timestamp; only files modified at or before it",
						},
						"min_relevance": map[string]interface{}{
							"type":        "number",
							"description": "Minimum vector similarity (0.0-1.0)",
							"minimum":     0.0,
							"maximum":     1.0,
						},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

func suggestQueriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "suggest_queries",
		Annotations: readOnlyAnnotation,
		Description: "Complete a partial query from recent searches and symbol names",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"partial": map[string]interface{}{
					"type":        "string",
					"description": "Prefix or fragment to complete; empty lists recent candidates",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of suggestions",
					"default":     10,
					"minimum":     1,
					"maximum":     protocol.MaxSuggestionLimit,
				},
			},
		},
	}
}

func searchHistoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_history",
		Annotations: readOnlyAnnotation,
		Description: "List recent searches, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of entries; 0 returns all",
					"default":     0,
					"minimum":     0,
					"maximum":     protocol.MaxHistoryLimit,
				},
			},
		},
	}
}

func clearHistoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_search_history",
		Description: "Forget recent searches and suggestion candidates",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
	}
}

func filePreviewTool() mcp.Tool {
	return mcp.Tool{
		Name:        "file_preview",
		Annotations: readOnlyAnnotation,
		Description: "Show the lines around a location in a workspace file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Workspace relative path, as returned by search_code",
				},
				"line": map[string]interface{}{
					"type":        "integer",
					"description": "1-based line to center on",
					"minimum":     1,
				},
				"context_lines": map[string]interface{}{
					"type":        "integer",
					"description": "Lines to show before and after",
					"default":     5,
					"minimum":     0,
					"maximum":     protocol.MaxPreviewContext,
				},
			},
			Required: []string{"path", "line"},
		},
	}
}
