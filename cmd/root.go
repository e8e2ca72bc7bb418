package cmd

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teemow/gmail-mcp/internal/config"
	"github.com/teemow/gmail-mcp/internal/logging"
)

// rootCmd represents the base command for the gmail-mcp application
var rootCmd = &cobra.Command{
	Use:   "gmail-mcp",
	Short: "MCP server exposing Gmail as tools",
	Long: `gmail-mcp exposes a Gmail mailbox to MCP clients: list, read and search
messages, send mail and replies, manage drafts and labels.

Credentials are resolved from, in order: an inline service account
(GMAIL_CREDENTIALS_CONFIG), a service account key file, a cached token file,
an interactive browser consent flow, and the platform default credentials.`,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		var err error
		logJSON, err = logging.ParseFormat(logFormat)
		return err
	},
}

// version will be set by main
var version = "dev"

// Persistent flags shared by every subcommand.
var (
	configFile string
	envFile    string
	debugMode  bool
	logFormat  string
	logJSON    bool
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gmail-mcp version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "TOML settings file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with GMAIL_* settings (skipped when missing)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format on stderr: text or json")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}

// loadSettings builds the settings snapshot. Flags that were set on cmd
// override every other source.
func loadSettings(cmd *cobra.Command, host string, port int) (config.Settings, error) {
	overrides := make(map[string]string)
	if f := cmd.Flags().Lookup("host"); f != nil && f.Changed {
		overrides[config.EnvHost] = host
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		overrides[config.EnvPort] = strconv.Itoa(port)
	}
	return config.Load(config.LoadOptions{
		ConfigFile: configFile,
		EnvFiles:   []string{envFile},
		Overrides:  overrides,
	})
}

// newLogger writes to stderr; stdout belongs to the stdio transport.
func newLogger() *slog.Logger {
	logger := logging.New(logging.Options{Debug: debugMode, JSON: logJSON})
	slog.SetDefault(logger)
	return logger
}
