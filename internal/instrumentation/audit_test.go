package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditRecord(t *testing.T, enabled bool, ti *ToolInvocation) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	NewAuditLogger(logger, AuditLoggingConfig{Enabled: enabled}).LogToolInvocation(context.Background(), ti)
	if buf.Len() == 0 {
		return nil
	}
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestAuditLogger_Success(t *testing.T) {
	ti := NewToolInvocation("gmail_list_labels").
		WithSubject("Jane@Example.com").
		WithStrategy("token_file").
		WithReadOnly(true).
		CompleteSuccess()

	record := auditRecord(t, true, ti)
	require.NotNil(t, record)
	assert.Equal(t, "tool_executed", record["msg"])
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "audit", record["component"])
	assert.Equal(t, "gmail_list_labels", record["tool"])
	assert.Equal(t, "success", record["status"])
	assert.Equal(t, "token_file", record["strategy"])
	assert.Equal(t, true, record["read_only"])
	assert.Equal(t, "example.com", record["user_domain"])
	assert.Contains(t, record["user_hash"], "user:")
	assert.NotContains(t, record, "error")

	// The subject never appears in clear.
	raw, err := json.Marshal(record)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Jane@")
}

func TestAuditLogger_Failure(t *testing.T) {
	ti := NewToolInvocation("gmail_delete_label").CompleteWithError("permission", errors.New("system label"))

	record := auditRecord(t, true, ti)
	require.NotNil(t, record)
	assert.Equal(t, "tool_failed", record["msg"])
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "permission", record["status"])
	assert.Equal(t, "system label", record["error"])
}

func TestAuditLogger_Disabled(t *testing.T) {
	ti := NewToolInvocation("gmail_list_labels").CompleteSuccess()
	assert.Nil(t, auditRecord(t, false, ti))

	var al *AuditLogger
	assert.NotPanics(t, func() { al.LogToolInvocation(context.Background(), ti) })
}

func TestToolInvocation_Status(t *testing.T) {
	ti := NewToolInvocation("x")
	assert.False(t, ti.StartTime.IsZero())
	assert.Equal(t, StatusError, ti.Status())

	ti.CompleteWithError("quota", nil)
	assert.Equal(t, "quota", ti.Status())
	assert.Empty(t, ti.Error)

	ti.CompleteSuccess()
	assert.Equal(t, StatusSuccess, ti.Status())
	assert.GreaterOrEqual(t, int64(ti.Duration), int64(0))
}
