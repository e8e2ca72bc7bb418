package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrStatus    = "status"
	attrOperation = "operation"
	attrTool      = "tool"
	attrStrategy  = "strategy"
	attrResult    = "result"
)

// Metrics provides methods for recording observability metrics. The zero
// value and a nil *Metrics are no-op recorders.
type Metrics struct {
	// MCP tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// Gmail API metrics
	gmailOperationsTotal metric.Int64Counter
	gmailDuration        metric.Float64Histogram

	// Credential metrics
	credentialResolutionsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"gmail_mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"gmail_mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_mcp_tool_duration_seconds histogram: %w", err)
	}

	m.gmailOperationsTotal, err = meter.Int64Counter(
		"gmail_mcp_gmail_api_operations_total",
		metric.WithDescription("Total number of Gmail API calls"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_mcp_gmail_api_operations_total counter: %w", err)
	}

	m.gmailDuration, err = meter.Float64Histogram(
		"gmail_mcp_gmail_api_duration_seconds",
		metric.WithDescription("Gmail API call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_mcp_gmail_api_duration_seconds histogram: %w", err)
	}

	m.credentialResolutionsTotal, err = meter.Int64Counter(
		"gmail_mcp_credential_resolutions_total",
		metric.WithDescription("Total number of credential resolutions by winning strategy"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail_mcp_credential_resolutions_total counter: %w", err)
	}

	return m, nil
}

// RecordToolInvocation records an MCP tool invocation.
//
// Parameters:
//   - toolName: Name of the MCP tool (e.g., "gmail_list_messages")
//   - status: "success" or the error kind of a failed call
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, statusLabel(status)),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGmailAPIOperation records one Gmail API call, such as
// "messages.list", with its status.
func (m *Metrics) RecordGmailAPIOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.gmailOperationsTotal == nil || m.gmailDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, statusLabel(status)),
	)
	m.gmailOperationsTotal.Add(ctx, 1, attrs)
	m.gmailDuration.Record(ctx, duration.Seconds(), attrs)
}

// ObserveGmailCall lets Metrics observe a Gmail client directly.
func (m *Metrics) ObserveGmailCall(ctx context.Context, operation, status string, duration time.Duration) {
	m.RecordGmailAPIOperation(ctx, operation, status, duration)
}

// RecordCredentialResolution records a resolution attempt. strategy is the
// winning strategy, or empty when every strategy failed.
func (m *Metrics) RecordCredentialResolution(ctx context.Context, strategy string, success bool) {
	if m == nil || m.credentialResolutionsTotal == nil {
		return
	}

	result := StatusSuccess
	if !success {
		result = StatusError
		strategy = "none"
	}
	m.credentialResolutionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrStrategy, strategy),
		attribute.String(attrResult, result),
	))
}
