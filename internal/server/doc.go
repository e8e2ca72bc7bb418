// Package server holds the state shared by gmail-mcp tool calls and the
// HTTP surfaces around the MCP server.
//
// ServerContext caches one Gmail client built from the credential the
// resolver returns. The first tool call resolves; later calls reuse the
// client until Gmail rejects the credential and Invalidate drops it.
//
// HTTPServer mounts the SSE (/sse, /message) or streamable HTTP (/mcp)
// transport next to /healthz, /readyz and /healthz/detailed. MetricsServer
// exposes /metrics on its own address.
package server
