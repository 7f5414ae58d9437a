package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/temporal-mcp/internal/expressions"
	"github.com/rendis/temporal-mcp/internal/history"
	"github.com/rendis/temporal-mcp/internal/logging"
	"github.com/rendis/temporal-mcp/internal/temporal"
)

const (
	formatParsed = "parsed"
	formatRaw    = "raw"
)

// parseFailure is returned in place of a parsed document when the history
// cannot be reconstructed. The request still succeeds.
type parseFailure struct {
	Parsed     bool            `json:"parsed"`
	ParseError string          `json:"parseError"`
	RawData    json.RawMessage `json:"rawData"`
}

// handleSearchWorkflows runs a visibility query.
func (s *Server) handleSearchWorkflows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	namespace, err := req.RequireString("namespace")
	if err != nil {
		return mcp.NewToolResultError("Error: namespace is required"), nil
	}
	query := req.GetString("query", "")

	ctx = logging.WithNamespace(logging.WithRequestID(ctx, uuid.New().String()), namespace)
	log := logging.LogWith(ctx, s.logger)
	log.Debug("searching workflows", slog.String("query", query))

	result, err := s.source.SearchWorkflows(ctx, namespace, query)
	if err != nil {
		return toolError(log, "searchWorkflows", err), nil
	}
	return marshalResult(result)
}

// handleGetWorkflowData fetches one run and returns it raw or reconstructed.
func (s *Server) handleGetWorkflowData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflowId")
	if err != nil {
		return mcp.NewToolResultError("Error: workflowId is required"), nil
	}
	namespace, err := req.RequireString("namespace")
	if err != nil {
		return mcp.NewToolResultError("Error: namespace is required"), nil
	}
	runID, err := req.RequireString("runId")
	if err != nil {
		return mcp.NewToolResultError("Error: runId is required"), nil
	}
	format := req.GetString("format", formatParsed)
	if format != formatParsed && format != formatRaw {
		return mcp.NewToolResultError("Error: format must be parsed or raw"), nil
	}
	filter := req.GetString("filter", "")
	jq := req.GetString("jq", "")

	ctx = logging.WithExecution(logging.WithRequestID(ctx, uuid.New().String()), namespace, workflowID, runID)
	log := logging.LogWith(ctx, s.logger)

	var engine expressions.Engine
	if filter != "" {
		if engine, err = s.filters.Filter(req.GetString("filterLanguage", "cel")); err != nil {
			return toolError(log, "getWorkflowData", err), nil
		}
	}

	start := time.Now()
	data, err := s.source.GetWorkflowData(ctx, namespace, workflowID, runID)
	if err != nil {
		return toolError(log, "getWorkflowData", err), nil
	}
	log.Debug("fetched workflow data",
		slog.Int("events", len(data.Events)),
		slog.Duration("elapsed", time.Since(start)),
	)

	var doc any
	if format == formatRaw {
		raw, rawErr := data.Raw()
		if rawErr != nil {
			return toolError(log, "getWorkflowData", rawErr), nil
		}
		doc = raw
	} else {
		doc, err = s.parsedDocument(ctx, log, data, namespace, runID, engine, filter)
		if err != nil {
			return toolError(log, "getWorkflowData", err), nil
		}
	}

	if jq != "" {
		doc, err = expressions.Project(ctx, s.filters.JQ(), jq, doc)
		if err != nil {
			return toolError(log, "getWorkflowData", err), nil
		}
	}
	return marshalResult(doc)
}

// parsedDocument reconstructs the run. A history without a root start event
// produces a parseFailure document rather than an error; only filter
// evaluation errors are returned.
func (s *Server) parsedDocument(ctx context.Context, log *slog.Logger, data *temporal.WorkflowData,
	namespace, runID string, engine expressions.Engine, filter string) (any, error) {

	parsed, err := history.Parse(data.Decode(), namespace, runID)
	if err == nil {
		if engine != nil {
			parsed.ChronologicalItems, err = expressions.FilterItems(ctx, engine, filter, parsed.ChronologicalItems)
			if err != nil {
				return nil, err
			}
		}
		return parsed, nil
	}

	log.Warn("failed to parse workflow history", slog.String("error", err.Error()))
	raw, rawErr := data.Raw()
	if rawErr != nil {
		log.Warn("failed to render raw workflow data", slog.String("error", rawErr.Error()))
	}
	return &parseFailure{Parsed: false, ParseError: err.Error(), RawData: raw}, nil
}

// toolError logs err and converts it to an isError tool result.
func toolError(log *slog.Logger, tool string, err error) *mcp.CallToolResult {
	log.Error("tool failed", slog.String("tool", tool), slog.String("error", err.Error()))
	return mcp.NewToolResultError("Error: " + err.Error())
}

// marshalResult converts a value to an indented JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error: failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
