package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gmail-mcp/internal/config"
	"github.com/teemow/gmail-mcp/internal/instrumentation"
)

func TestValidateTransport(t *testing.T) {
	tests := []struct {
		transport string
		wantErr   bool
	}{
		{transport: "stdio"},
		{transport: "sse"},
		{transport: "streamable-http"},
		{transport: "http", wantErr: true},
		{transport: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.transport, func(t *testing.T) {
			err := validateTransport(tt.transport)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestToolCategory(t *testing.T) {
	tests := map[string]string{
		"gmail_list_messages":         "Messages",
		"gmail_modify_message_labels": "Messages",
		"gmail_trash_message":         "Messages",
		"gmail_update_draft":          "Drafts",
		"gmail_list_drafts":           "Drafts",
		"gmail_list_labels":           "Labels",
		"gmail_create_label":          "Labels",
		"gmail_delete_label":          "Labels",
		"other_tool":                  "Other",
	}
	for name, want := range tests {
		assert.Equal(t, want, toolCategory(name), name)
	}
}

func TestGenerateDocs(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)

	tools := listTools(cmd)
	require.Len(t, tools, 15)

	markdown := generateToolsMarkdown(tools)
	sections := []string{"## Messages", "## Drafts", "## Labels", "## Errors"}
	last := -1
	for _, section := range sections {
		idx := strings.Index(markdown, section)
		require.NotEqual(t, -1, idx, section)
		assert.Greater(t, idx, last, "%s out of order", section)
		last = idx
	}
	assert.NotContains(t, markdown, "## Other")
	assert.Contains(t, markdown, "### gmail_send_message")
	assert.Contains(t, markdown, "- `message_id` (string, required)")
	assert.Contains(t, markdown, "- `max_results` (number, optional)")
	assert.Contains(t, markdown, "- `attachment_paths` (string[], optional)")
	assert.Contains(t, markdown, "| `quota` | yes |")
	assert.Equal(t, 5, strings.Count(markdown, "*Read-only."))

	out := filepath.Join(t.TempDir(), "tools.md")
	require.NoError(t, runGenerateDocs(cmd, out))
	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, markdown, string(written))
}

func TestLoadSettings_FlagOverrides(t *testing.T) {
	t.Setenv(config.EnvHost, "10.0.0.1")
	t.Setenv(config.EnvPort, "9000")
	envFile = filepath.Join(t.TempDir(), "missing.env")
	configFile = ""

	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{}
		cmd.Flags().String("host", "", "")
		cmd.Flags().Int("port", 0, "")
		return cmd
	}

	settings, err := loadSettings(newCmd(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:9000", settings.Addr())

	cmd := newCmd()
	require.NoError(t, cmd.Flags().Set("port", "7000"))
	settings, err = loadSettings(cmd, "", 7000)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:7000", settings.Addr())
}

func TestIgnoredAddress(t *testing.T) {
	envFile = filepath.Join(t.TempDir(), "missing.env")
	configFile = ""
	t.Setenv(config.EnvHost, "")
	t.Setenv("FASTMCP_HOST", "")
	t.Setenv(config.EnvPort, "9000")

	settings, err := loadSettings(&cobra.Command{}, "", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{config.EnvPort}, ignoredAddress(settings, "stdio"))
	assert.Empty(t, ignoredAddress(settings, "sse"))
	assert.Empty(t, ignoredAddress(settings, "streamable-http"))
}

func TestLogFormatFlag(t *testing.T) {
	t.Cleanup(func() { logFormat, logJSON = "text", false })

	logFormat = "json"
	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))
	assert.True(t, logJSON)

	logFormat = "yaml"
	assert.Error(t, rootCmd.PersistentPreRunE(rootCmd, nil))
}

func TestInstrumentationConfig(t *testing.T) {
	cfg := instrumentationConfig(MetricsConfig{Enabled: true})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, instrumentation.ExporterPrometheus, cfg.MetricsExporter)
	assert.Equal(t, version, cfg.ServiceVersion)
}

func TestVersionCommand(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "gmail-mcp version "+version+"\n", out.String())
}
