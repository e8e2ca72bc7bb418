package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/gmail-mcp/internal/google"
)

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Resolve Gmail credentials now",
		Long: `Resolve credentials the same way serve does, running the browser consent
flow when no other strategy applies. A token obtained interactively is saved to
GMAIL_TOKEN_PATH so later runs start without prompting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runAuth(ctx, cmd)
		},
	}
}

func runAuth(ctx context.Context, cmd *cobra.Command) error {
	settings, err := loadSettings(cmd, "", 0)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	logger := newLogger()

	resolver := google.NewResolver(settings,
		google.WithLogger(logger),
		google.WithPrompt(cmd.ErrOrStderr()),
	)
	cred, err := resolver.Resolve(ctx)
	if err != nil {
		return err
	}
	// Force a token so an expired cached token is refreshed and saved.
	if _, err := cred.TokenSource.Token(); err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Authorized via %s\n", cred.Strategy)
	if cred.Source != "" {
		fmt.Fprintf(out, "  source: %s\n", cred.Source)
	}
	return nil
}
