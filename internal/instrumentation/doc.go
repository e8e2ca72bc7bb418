// Package instrumentation wires OpenTelemetry metrics and tracing for
// gmail-mcp and writes the per-call audit log.
//
// # Metrics
//
//   - gmail_mcp_tool_invocations_total: tool calls by tool and status
//   - gmail_mcp_tool_duration_seconds: tool call duration
//   - gmail_mcp_gmail_api_operations_total: Gmail API calls by operation and status
//   - gmail_mcp_gmail_api_duration_seconds: Gmail API call duration
//   - gmail_mcp_credential_resolutions_total: credential resolutions by strategy and result
//
// Status labels are "success" or one of the error kinds, so label
// cardinality stays fixed.
//
// # Configuration
//
// Environment variables:
//   - INSTRUMENTATION_ENABLED: enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: service name (default: gmail-mcp)
//   - AUDIT_LOGGING_ENABLED: write the tool audit log (default: true)
package instrumentation
