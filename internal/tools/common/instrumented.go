package common

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
	"github.com/teemow/gmail-mcp/internal/server"
	"github.com/teemow/gmail-mcp/internal/toolerr"
)

// ToolFunc executes one tool call and returns its output record. Errors
// should be *toolerr.Error values; anything else is reported as transport.
type ToolFunc func(ctx context.Context, args Args) (interface{}, error)

// InstrumentedToolHandler wraps a tool function with tracing, metrics and
// audit logging, and converts its outcome into an MCP tool result.
//
// Domain failures never surface as Go errors to mcp-go: they become error
// results carrying {"error":{"kind","message","retryable"}}.
//
// Usage:
//
//	s.AddTool(tool, common.InstrumentedToolHandler("gmail_list_labels", true, sc, fn))
func InstrumentedToolHandler(toolName string, readOnly bool, sc *server.ServerContext, fn ToolFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			instrumentation.NewSpanAttributeBuilder().WithReadOnly(readOnly).Build()...)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx).
			WithReadOnly(readOnly).
			WithSubject(sc.Subject())

		out, err := fn(ctx, ArgsFrom(request))
		duration := time.Since(start)
		if strategy := sc.Strategy(); strategy != "" {
			invocation.WithStrategy(strategy)
		}

		logger := logging.WithTool(sc.Logger(), toolName)
		var result *mcp.CallToolResult
		if err == nil {
			result, err = structuredResult(out)
		}

		status := instrumentation.StatusSuccess
		if err != nil {
			te := toolerr.As(err)
			status = string(te.Kind)
			invocation.CompleteWithError(status, te)
			instrumentation.SetSpanError(span, status, te)
			logger.Debug("tool call failed", logging.Kind(status), logging.Duration(duration), logging.Err(te))
			result = mcp.NewToolResultError(te.JSON())
		} else {
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
			logger.Debug("tool call completed", logging.Duration(duration))
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, status, duration)
		sc.AuditLogger().LogToolInvocation(ctx, invocation)
		return result, nil
	}
}

func structuredResult(out interface{}) (*mcp.CallToolResult, error) {
	text, err := json.Marshal(out)
	if err != nil {
		return nil, toolerr.Transport(fmt.Sprintf("failed to encode result: %v", err), nil)
	}
	return mcp.NewToolResultStructured(out, string(text)), nil
}

// LogRegistration logs the tools a registration pass exposed.
func LogRegistration(logger *slog.Logger, tools []string, readOnly bool) {
	logging.WithOperation(logger, "tools.register").Info("registered tools",
		slog.Int("count", len(tools)),
		slog.Bool("read_only", readOnly),
		slog.Any("tools", tools))
}
