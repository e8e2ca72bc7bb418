// Package common holds the plumbing shared by tool handlers: argument
// extraction with validation, and the instrumented wrapper that turns
// handler results into MCP tool results.
package common
