package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf})
	logger.Info("hello", Tool("gmail_list_labels"))
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "tool=gmail_list_labels")
	assert.NotContains(t, out, "hidden")
}

func TestNew_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf, Debug: true, JSON: true})
	logger.Debug("visible")
	assert.Contains(t, buf.String(), `"msg":"visible"`)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		format   string
		wantJSON bool
		wantErr  bool
	}{
		{format: "", wantJSON: false},
		{format: "text", wantJSON: false},
		{format: "JSON", wantJSON: true},
		{format: "logfmt", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			json, err := ParseFormat(tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantJSON, json)
		})
	}
}

func TestAttributes(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		key  string
		want string
	}{
		{"tool", Tool("gmail_get_message"), KeyTool, "gmail_get_message"},
		{"strategy", Strategy("token_file"), KeyStrategy, "token_file"},
		{"status", Status("success"), KeyStatus, "success"},
		{"kind", Kind("not_found"), KeyKind, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.want, tt.attr.Value.String())
		})
	}
}

func TestDuration(t *testing.T) {
	attr := Duration(1500 * time.Millisecond)
	assert.Equal(t, KeyDuration, attr.Key)
	assert.Equal(t, int64(1500), attr.Value.Int64())
}

func TestErr(t *testing.T) {
	assert.Equal(t, slog.Attr{}, Err(nil))

	attr := Err(errors.New("boom"))
	assert.Equal(t, KeyError, attr.Key)
	assert.Equal(t, "boom", attr.Value.String())
}

func TestAnonymizeEmail(t *testing.T) {
	assert.Equal(t, "", AnonymizeEmail(""))

	a := AnonymizeEmail("User@Example.com")
	b := AnonymizeEmail(" user@example.com ")
	require.True(t, strings.HasPrefix(a, "user:"))
	assert.Equal(t, a, b, "hash should ignore case and surrounding space")
	assert.NotContains(t, a, "example")
	assert.NotEqual(t, a, AnonymizeEmail("other@example.com"))
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))
	assert.Equal(t, "[token:10 chars]", SanitizeToken("ya29.abcde"))
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Writer: &buf})
	WithTool(WithOperation(logger, "tool.call"), "gmail_trash_message").Info("done")
	out := buf.String()
	assert.Contains(t, out, "operation=tool.call")
	assert.Contains(t, out, "tool=gmail_trash_message")
}
