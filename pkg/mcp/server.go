package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/temporal-mcp/internal/expressions"
	"github.com/rendis/temporal-mcp/internal/temporal"
)

// ServerName is reported to clients during initialization.
const ServerName = "temporal-mcp"

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Source  temporal.Source
	Filters *expressions.Registry
	Logger  *slog.Logger
	Version string
}

// Server wraps an MCP server with the Temporal history tool handlers.
type Server struct {
	source    temporal.Source
	filters   *expressions.Registry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with searchWorkflows and getWorkflowData
// registered. A nil Filters builds the default registry.
func NewServer(deps ServerDeps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	filters := deps.Filters
	if filters == nil {
		var err error
		if filters, err = expressions.NewRegistry(); err != nil {
			return nil, fmt.Errorf("build expression engines: %w", err)
		}
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		source:  deps.Source,
		filters: filters,
		logger:  logger,
	}

	mcpSrv := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("temporal-mcp exposes Temporal workflow execution history. Use searchWorkflows to find runs with a visibility query, then getWorkflowData with the workflowId and runId to get the run's activities, timers and signals in chronological order. Narrow large histories with filter (CEL or Expr over `item`) and reshape the output with jq."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// ServeHTTP starts the streamable HTTP transport on addr and blocks until
// ctx is cancelled, then shuts the listener down.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpSrv := server.NewStreamableHTTPServer(s.mcpServer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Start(addr)
	}()
	s.logger.Info("streamable HTTP transport listening", slog.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http transport: %w", err)
	}
	return nil
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: searchWorkflowsTool(), Handler: s.handleSearchWorkflows},
		{Tool: getWorkflowDataTool(), Handler: s.handleGetWorkflowData},
	}
}

// --- Tool definitions ---

func searchWorkflowsTool() mcp.Tool {
	return mcp.NewTool("searchWorkflows",
		mcp.WithDescription("Search Temporal workflows"),
		mcp.WithString("namespace", mcp.Required(), mcp.Description("Temporal namespace to search in")),
		mcp.WithString("query", mcp.Description("Search query for workflows (Temporal visibility query syntax)")),
	)
}

func getWorkflowDataTool() mcp.Tool {
	return mcp.NewTool("getWorkflowData",
		mcp.WithDescription("Get detailed data for a specific workflow"),
		mcp.WithString("workflowId", mcp.Required(), mcp.Description("Workflow ID")),
		mcp.WithString("namespace", mcp.Required(), mcp.Description("Temporal namespace")),
		mcp.WithString("runId", mcp.Required(), mcp.Description("Workflow run ID")),
		mcp.WithString("format",
			mcp.Enum(formatParsed, formatRaw),
			mcp.Description("Format of the output (default: parsed)"),
		),
		mcp.WithString("filter", mcp.Description("Boolean expression over `item` selecting which chronological items to keep; the root workflow is always kept. Only applies to the parsed format")),
		mcp.WithString("filterLanguage",
			mcp.Enum("cel", "expr"),
			mcp.Description("Language of filter (default: cel)"),
		),
		mcp.WithString("jq", mcp.Description("jq program applied to the final output document")),
	)
}
