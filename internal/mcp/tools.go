package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/codecontext/internal/protocol"
	"github.com/dshills/codecontext/internal/searcher"
	"github.com/dshills/codecontext/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeStoreUnavailable   = -32001 // Vector store cannot be reached
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeProviderFailure    = -32003 // Embedding or LLM provider failed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeCanceled           = -32005 // Request was cancelled or timed out
)

// maxSnippetLines caps the content returned per search result
const maxSnippetLines = 40

// handleIndexCodebase handles the index_codebase tool invocation
func (s *Server) handleIndexCodebase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	var req protocol.Request = protocol.StartIndexing{}
	if getBoolDefault(args, "force_reindex", false) {
		req = protocol.FullReindex{}
	}
	data, err := s.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	summary, _ := data.(protocol.IndexingSummary)
	if summary.IndexingResult == nil {
		summary.IndexingResult = &types.IndexingResult{}
	}

	response := map[string]interface{}{
		"indexed":         summary.Success,
		"files_processed": summary.ProcessedFiles,
		"files_skipped":   summary.SkippedFiles,
		"files_deleted":   summary.DeletedFiles,
		"chunks_created":  summary.Chunks,
		"duration_ms":     summary.Duration.Milliseconds(),
	}
	if errorCount := len(summary.Errors); errorCount > 0 {
		// Include first few errors
		if errorCount > 5 {
			response["errors"] = summary.Errors[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = summary.Errors
		}
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handlePauseIndexing(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stateResult(ctx, protocol.PauseIndexing{})
}

func (s *Server) handleResumeIndexing(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.stateResult(ctx, protocol.ResumeIndexing{})
}

func (s *Server) stateResult(ctx context.Context, req protocol.Request) (*mcp.CallToolResult, error) {
	data, err := s.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	state, _ := data.(protocol.StateSummary)
	response := map[string]interface{}{"state": state.State}
	if state.LastError != "" {
		response["last_error"] = state.LastError
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := s.backend.Health(ctx)

	store := map[string]interface{}{
		"healthy":          report.VectorStore.Healthy,
		"collection":       report.VectorStore.Collection,
		"records":          report.VectorStore.Records,
		"response_time_ms": report.VectorStore.ResponseTime.Milliseconds(),
	}
	if report.VectorStore.Error != "" {
		store["error"] = report.VectorStore.Error
	}

	response := map[string]interface{}{
		"root":    s.backend.Root(),
		"healthy": report.Healthy,
		"state":   report.State,
		"index": map[string]interface{}{
			"pending_changes": report.PendingChanges,
			"vector_store":    store,
		},
		"providers": map[string]interface{}{
			"embedding": report.Embedding,
			"llm":       report.LLM,
		},
		"search": map[string]interface{}{
			"cached_queries":  report.CachedQueries,
			"history_entries": report.HistoryEntries,
		},
		"uptime_seconds": int64(report.Uptime.Seconds()),
	}
	if report.LastError != "" {
		response["last_error"] = report.LastError
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query := getStringDefault(args, "query", "")
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultMaxResults)
	if limit < 1 || limit > searcher.MaxResultsLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	filters, err := parseFilters(args)
	if err != nil {
		return nil, err
	}
	filters.MaxResults = limit

	data, err := s.dispatch(ctx, protocol.Search{Query: query, Filters: filters})
	if err != nil {
		return nil, err
	}
	resp, ok := data.(*searcher.SearchResponse)
	if !ok || resp == nil {
		return nil, newMCPError(ErrorCodeInternalError, "search returned no response", nil)
	}
	return mcp.NewToolResultText(formatJSON(searchResponse(resp))), nil
}

func (s *Server) handleSuggestQueries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	req := protocol.Suggestions{
		Partial: getStringDefault(args, "partial", ""),
		Limit:   getIntDefault(args, "limit", 0),
	}
	data, err := s.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	suggestions, _ := data.([]string)
	if suggestions == nil {
		suggestions = []string{}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"suggestions": suggestions})), nil
}

func (s *Server) handleSearchHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	data, err := s.dispatch(ctx, protocol.History{Limit: getIntDefault(args, "limit", 0)})
	if err != nil {
		return nil, err
	}
	entries, _ := data.([]types.HistoryEntry)

	history := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		history = append(history, map[string]interface{}{
			"query":          e.Query,
			"result_count":   e.ResultCount,
			"timestamp":      e.Timestamp.Format(time.RFC3339),
			"used_expansion": e.UsedExpansion,
			"used_reranking": e.UsedReRanking,
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"history": history})), nil
}

func (s *Server) handleClearHistory(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := s.dispatch(ctx, protocol.ClearHistory{}); err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"cleared": true})), nil
}

func (s *Server) handleFilePreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	req := protocol.FilePreview{
		Path:         getStringDefault(args, "path", ""),
		Line:         getIntDefault(args, "line", 0),
		ContextLines: getIntDefault(args, "context_lines", searcher.DefaultPreviewContext),
	}
	data, err := s.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	preview, _ := data.(protocol.PreviewResult)
	return mcp.NewToolResultText(preview.Preview), nil
}

// dispatch validates and runs req, converting failures into MCP errors
func (s *Server) dispatch(ctx context.Context, req protocol.Request) (any, error) {
	if err := req.Validate(); err != nil {
		return nil, toMCPError(err)
	}
	resp := s.dispatcher.Dispatch(ctx, req)
	if !resp.OK {
		return nil, responseError(resp)
	}
	return resp.Data, nil
}

// Helper functions

func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// parseFilters reads the optional filters object of search_code
func parseFilters(args map[string]interface{}) (types.SearchFilters, error) {
	var filters types.SearchFilters
	raw, ok := args["filters"]
	if !ok || raw == nil {
		return filters, nil
	}
	f, ok := raw.(map[string]interface{})
	if !ok {
		return filters, newMCPError(ErrorCodeInvalidParams, "filters must be an object", map[string]interface{}{
			"param": "filters",
		})
	}

	filters.FileTypes = getStringSlice(f, "file_types")
	filters.Languages = getStringSlice(f, "languages")
	if v, ok := f["min_relevance"].(float64); ok {
		filters.MinSimilarity = v
	}
	for key, dst := range map[string]**time.Time{
		"modified_after":  &filters.DateFrom,
		"modified_before": &filters.DateTo,
	} {
		value := getStringDefault(f, key, "")
		if value == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return filters, newMCPError(ErrorCodeInvalidParams, "invalid timestamp", map[string]interface{}{
				"param":  "filters." + key,
				"value":  value,
				"reason": err.Error(),
			})
		}
		*dst = &t
	}
	return filters, nil
}

// searchResponse shapes a search response for tool output
func searchResponse(resp *searcher.SearchResponse) map[string]interface{} {
	results := make([]map[string]interface{}, 0, len(resp.Results))
	for i, r := range resp.Results {
		result := map[string]interface{}{
			"rank":         i + 1,
			"file":         r.Chunk.FilePath,
			"start_line":   r.Chunk.StartLine,
			"end_line":     r.Chunk.EndLine,
			"language":     r.Chunk.Language,
			"type":         r.Chunk.ChunkType,
			"score":        roundScore(r.FinalScore),
			"vector_score": roundScore(r.VectorScore),
			"content":      clipLines(r.Chunk.Content, maxSnippetLines),
		}
		if r.Chunk.SymbolName != "" {
			result["symbol"] = r.Chunk.SymbolName
		}
		if r.LLMScore != nil {
			result["llm_score"] = *r.LLMScore
		}
		if r.Explanation != "" {
			result["explanation"] = r.Explanation
		}
		results = append(results, result)
	}

	response := map[string]interface{}{
		"query":          resp.Query,
		"results":        results,
		"total_results":  len(results),
		"cache_hit":      resp.CacheHit,
		"used_expansion": resp.UsedExpansion,
		"used_reranking": resp.UsedReRanking,
		"duration_ms":    resp.Duration.Milliseconds(),
	}
	if resp.UsedExpansion && len(resp.Expanded.ExpandedTerms) > 0 {
		response["expanded_terms"] = resp.Expanded.ExpandedTerms
	}
	return response
}

func roundScore(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}

func clipLines(content string, limit int) string {
	lines := 0
	for i := 0; i < len(content); i++ {
		if content[i] != '\n' {
			continue
		}
		lines++
		if lines == limit {
			return content[:i+1] + "..."
		}
	}
	return content
}

// toMCPError maps a request failure onto an MCP error code
func toMCPError(err error) error {
	var validation *protocol.ValidationError
	if errors.As(err, &validation) {
		code := ErrorCodeInvalidParams
		if validation.Field == "query" {
			code = ErrorCodeEmptyQuery
		}
		return newMCPError(code, validation.Error(), map[string]interface{}{
			"param":  validation.Field,
			"reason": validation.Reason,
		})
	}
	return responseError(protocol.Response{Error: err.Error(), Code: protocol.ErrorCode(err)})
}

func responseError(resp protocol.Response) error {
	code := ErrorCodeInternalError
	switch resp.Code {
	case protocol.CodeInvalidRequest:
		code = ErrorCodeInvalidParams
	case protocol.CodeAlreadyRunning:
		code = ErrorCodeIndexingInProgress
	case protocol.CodeStoreUnavailable:
		code = ErrorCodeStoreUnavailable
	case protocol.CodeProvider:
		code = ErrorCodeProviderFailure
	case protocol.CodeCanceled:
		code = ErrorCodeCanceled
	}
	return newMCPError(code, string(resp.Type)+" failed", map[string]interface{}{
		"error": resp.Error,
		"kind":  resp.Code,
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
