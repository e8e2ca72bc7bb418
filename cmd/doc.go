// Package cmd implements the command-line interface for gmail-mcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server (stdio, sse or streamable-http)
//   - auth: Resolve credentials now and save an interactively obtained token
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
package cmd
