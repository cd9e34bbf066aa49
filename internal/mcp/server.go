package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/codecontext/internal/protocol"
	"github.com/dshills/codecontext/internal/session"
)

const (
	// ServerName is the MCP server name
	ServerName = "codecontext"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Backend is the session surface exposed as tools.
// *session.Session satisfies it.
type Backend interface {
	protocol.Service
	Root() string
	Health(ctx context.Context) session.HealthReport
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp        *server.MCPServer
	backend    Backend
	dispatcher *protocol.Dispatcher
	logger     *zap.Logger
}

// NewServer creates a new MCP server over backend. The logger must not
// write to stdout, which carries the protocol.
func NewServer(backend Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("mcp")

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
		),
		backend:    backend,
		dispatcher: protocol.NewDispatcher(backend, logger),
		logger:     logger,
	}
	s.registerTools()
	return s
}

// Serve speaks MCP over in and out until ctx is cancelled or in is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	s.logger.Info("serving MCP over stdio", zap.String("root", s.backend.Root()))
	return stdio.Listen(ctx, in, out)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexCodebaseTool(), s.handleIndexCodebase)
	s.mcp.AddTool(pauseIndexingTool(), s.handlePauseIndexing)
	s.mcp.AddTool(resumeIndexingTool(), s.handleResumeIndexing)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(suggestQueriesTool(), s.handleSuggestQueries)
	s.mcp.AddTool(searchHistoryTool(), s.handleSearchHistory)
	s.mcp.AddTool(clearHistoryTool(), s.handleClearHistory)
	s.mcp.AddTool(filePreviewTool(), s.handleFilePreview)
}
