package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/gmail-mcp/internal/logging"
)

// ToolInvocation captures one MCP tool call for the audit log.
//
// Subject is the mailbox the call acted on. It is never logged in clear:
// LogAttrs emits only its domain and a stable hash.
type ToolInvocation struct {
	Tool     string
	Subject  string
	Strategy string
	ReadOnly bool

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	// ErrorKind is the toolerr kind of a failed call.
	ErrorKind string
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete when the tool operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithSubject sets the mailbox the call acts on.
func (ti *ToolInvocation) WithSubject(email string) *ToolInvocation {
	ti.Subject = email
	return ti
}

// WithStrategy sets the credential strategy in use.
func (ti *ToolInvocation) WithStrategy(strategy string) *ToolInvocation {
	ti.Strategy = strategy
	return ti
}

// WithReadOnly marks the tool as read-only.
func (ti *ToolInvocation) WithReadOnly(readOnly bool) *ToolInvocation {
	ti.ReadOnly = readOnly
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		ti.TraceID = sc.TraceID().String()
		ti.SpanID = sc.SpanID().String()
	}
	return ti
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = true
	return ti
}

// CompleteWithError marks the invocation as failed with the given kind.
func (ti *ToolInvocation) CompleteWithError(kind string, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = false
	ti.ErrorKind = kind
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns "success" or the error kind.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	if ti.ErrorKind != "" {
		return ti.ErrorKind
	}
	return StatusError
}

// LogAttrs returns the structured fields of the audit record.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		logging.Tool(ti.Tool),
		logging.Status(ti.Status()),
		logging.Duration(ti.Duration),
		slog.Bool("read_only", ti.ReadOnly),
	}

	if ti.Strategy != "" {
		attrs = append(attrs, logging.Strategy(ti.Strategy))
	}
	if ti.Subject != "" {
		attrs = append(attrs,
			logging.UserHash(ti.Subject),
			slog.String("user_domain", ExtractUserDomain(ti.Subject)),
		)
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID), slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, ti.Error))
	}
	return attrs
}

// AuditLogger writes one structured record per tool invocation.
type AuditLogger struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:  logger.With(slog.String("component", "audit")),
		enabled: config.Enabled,
	}
}

// LogToolInvocation logs ti at info level on success and warn on failure.
func (al *AuditLogger) LogToolInvocation(ctx context.Context, ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	level := slog.LevelInfo
	msg := "tool_executed"
	if !ti.Success {
		level = slog.LevelWarn
		msg = "tool_failed"
	}
	al.logger.LogAttrs(ctx, level, msg, ti.LogAttrs()...)
}
