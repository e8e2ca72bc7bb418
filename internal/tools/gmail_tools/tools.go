package gmail_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmail-mcp/internal/gmail"
	"github.com/teemow/gmail-mcp/internal/server"
	"github.com/teemow/gmail-mcp/internal/tools/common"
)

// Page size bounds. Values outside a range are rejected.
const (
	defaultListMessages = 20
	maxListMessages     = 500
	defaultSearch       = 10
	maxSearch           = 100
	defaultListDrafts   = 20
	maxListDrafts       = 500
)

// handlerFunc is a tool body that runs against the shared Gmail client.
type handlerFunc func(ctx context.Context, client *gmail.Client) (interface{}, error)

// validateFunc checks the arguments and returns the body to run. It must not
// touch the network.
type validateFunc func(args common.Args) (handlerFunc, error)

type toolDef struct {
	tool     mcp.Tool
	readOnly bool
	validate validateFunc
}

// RegisterGmailTools registers the Gmail tools with the MCP server and
// returns their names. With readOnly set, mutating tools are skipped.
func RegisterGmailTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) []string {
	var defs []toolDef
	defs = append(defs, messageTools()...)
	defs = append(defs, draftTools()...)
	defs = append(defs, labelTools()...)

	names := make([]string, 0, len(defs))
	for _, def := range defs {
		if readOnly && !def.readOnly {
			continue
		}
		s.AddTool(def.tool, common.InstrumentedToolHandler(def.tool.Name, def.readOnly, sc, run(sc, def.validate)))
		names = append(names, def.tool.Name)
	}
	common.LogRegistration(sc.Logger(), names, readOnly)
	return names
}

// run validates first and only then resolves the Gmail client. When Gmail
// rejects the credential, the client that made the call is dropped.
func run(sc *server.ServerContext, validate validateFunc) common.ToolFunc {
	return func(ctx context.Context, args common.Args) (interface{}, error) {
		fn, err := validate(args)
		if err != nil {
			return nil, err
		}
		client, err := sc.GmailClient(ctx)
		if err != nil {
			return nil, err
		}
		out, err := fn(ctx, client)
		if gmail.IsAuthFailure(err) {
			sc.Invalidate(client)
		}
		return out, err
	}
}

func readOnlyTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append(opts,
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
	return mcp.NewTool(name, opts...)
}

func writeTool(name string, destructive bool, opts ...mcp.ToolOption) mcp.Tool {
	opts = append(opts,
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(destructive),
	)
	return mcp.NewTool(name, opts...)
}

// DeleteResult acknowledges a deletion.
type DeleteResult struct {
	Success bool   `json:"success"`
	DraftID string `json:"draft_id,omitempty"`
	LabelID string `json:"label_id,omitempty"`
}
