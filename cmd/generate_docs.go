package cmd

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gmail-mcp/internal/config"
	"github.com/teemow/gmail-mcp/internal/logging"
	"github.com/teemow/gmail-mcp/internal/server"
	"github.com/teemow/gmail-mcp/internal/tools/gmail_tools"
)

// Sections appear in this order; tools without the gmail_ prefix go last.
var docSections = []string{"Messages", "Drafts", "Labels", "Other"}

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate the gmail_* tool reference",
		Long: `Render the registered tools as a markdown reference.

The output is built from the live tool definitions: names, descriptions,
argument schemas and read-only or destructive annotations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerateDocs(cmd, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

// listTools registers every tool against a context that never resolves
// credentials and returns the tool definitions.
func listTools(cmd *cobra.Command) []mcp.Tool {
	logger := logging.New(logging.Options{Writer: cmd.ErrOrStderr()})
	sc := server.NewServerContext(cmd.Context(), config.Settings{}, nil, server.WithLogger(logger))
	defer func() { _ = sc.Shutdown() }()

	mcpSrv := mcpserver.NewMCPServer("gmail-mcp", version, mcpserver.WithToolCapabilities(true))
	gmail_tools.RegisterGmailTools(mcpSrv, sc, false)

	tools := make([]mcp.Tool, 0)
	for _, st := range mcpSrv.ListTools() {
		tools = append(tools, st.Tool)
	}
	return tools
}

func runGenerateDocs(cmd *cobra.Command, outputFile string) error {
	markdown := generateToolsMarkdown(listTools(cmd))

	if outputFile == "" {
		fmt.Fprint(cmd.OutOrStdout(), markdown)
		return nil
	}
	if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
	return nil
}

func generateToolsMarkdown(tools []mcp.Tool) string {
	bySection := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		section := toolCategory(tool.Name)
		bySection[section] = append(bySection[section], tool)
	}

	var sb strings.Builder
	sb.WriteString("# gmail-mcp tools\n\n")
	sb.WriteString("Generated from the registered tool definitions. Run `gmail-mcp generate-docs` to refresh.\n\n")

	for _, section := range docSections {
		if len(bySection[section]) > 0 {
			fmt.Fprintf(&sb, "- [%s](#%s)\n", section, strings.ToLower(section))
		}
	}
	sb.WriteString("- [Errors](#errors)\n\n")

	for _, section := range docSections {
		sectionTools := bySection[section]
		if len(sectionTools) == 0 {
			continue
		}
		sort.Slice(sectionTools, func(i, j int) bool { return sectionTools[i].Name < sectionTools[j].Name })

		fmt.Fprintf(&sb, "## %s\n\n", section)
		for _, tool := range sectionTools {
			writeTool(&sb, tool)
		}
	}

	sb.WriteString("## Errors\n\n")
	sb.WriteString("A failed call returns an error result whose text is\n")
	sb.WriteString("`{\"error\": {\"kind\": ..., \"message\": ..., \"retryable\": ...}}`.\n\n")
	sb.WriteString("| kind | retryable |\n|---|---|\n")
	for _, row := range [][2]string{
		{"validation", "no"}, {"not_found", "no"}, {"auth", "no"},
		{"permission", "no"}, {"quota", "yes"}, {"transport", "yes"},
	} {
		fmt.Fprintf(&sb, "| `%s` | %s |\n", row[0], row[1])
	}
	return sb.String()
}

func toolCategory(name string) string {
	switch {
	case !strings.HasPrefix(name, "gmail_"):
		return "Other"
	case strings.Contains(name, "draft"):
		return "Drafts"
	case strings.Contains(name, "message"):
		return "Messages"
	case strings.HasSuffix(name, "_label"), strings.HasSuffix(name, "_labels"):
		return "Labels"
	default:
		return "Messages"
	}
}

func writeTool(sb *strings.Builder, tool mcp.Tool) {
	fmt.Fprintf(sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(sb, "%s\n\n", tool.Description)
	}

	switch {
	case isSet(tool.Annotations.ReadOnlyHint):
		sb.WriteString("*Read-only. Available with `--read-only`.*\n\n")
	case isSet(tool.Annotations.DestructiveHint):
		sb.WriteString("*Destructive.*\n\n")
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		return
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("**Arguments:**\n")
	for _, name := range names {
		prop, ok := props[name].(map[string]interface{})
		if !ok {
			continue
		}
		presence := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			presence = "required"
		}
		fmt.Fprintf(sb, "- `%s` (%s, %s)", name, propertyType(prop), presence)
		if desc, ok := prop["description"].(string); ok && desc != "" {
			sb.WriteString(": " + desc)
		}
		if bounds := propertyBounds(prop); bounds != "" {
			sb.WriteString(" " + bounds)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func isSet(hint *bool) bool {
	return hint != nil && *hint
}

func propertyType(prop map[string]interface{}) string {
	t, ok := prop["type"].(string)
	if !ok {
		return "any"
	}
	if t == "array" {
		if items, ok := prop["items"].(map[string]interface{}); ok {
			if it, ok := items["type"].(string); ok {
				return it + "[]"
			}
		}
	}
	return t
}

// propertyBounds renders default and range constraints, e.g. "(default 20, 1-500)".
func propertyBounds(prop map[string]interface{}) string {
	var parts []string
	if def, ok := prop["default"]; ok {
		parts = append(parts, fmt.Sprintf("default %v", def))
	}
	minimum, hasMin := prop["minimum"]
	maximum, hasMax := prop["maximum"]
	if hasMin && hasMax {
		parts = append(parts, fmt.Sprintf("%v-%v", minimum, maximum))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
