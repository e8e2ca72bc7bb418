package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/gmail-mcp/internal/config"
	"github.com/teemow/gmail-mcp/internal/google"
	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
	"github.com/teemow/gmail-mcp/internal/server"
	"github.com/teemow/gmail-mcp/internal/tools/gmail_tools"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled starts the Prometheus metrics server
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

type serveOptions struct {
	transport string
	host      string
	port      int
	readOnly  bool
	metrics   MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server. Credentials are resolved before serving; the
command exits with status 1 when no strategy produces a usable credential.

Transports:
  stdio            JSON-RPC over stdin/stdout (default)
  sse              Server-Sent Events on /sse and /message
  streamable-http  Streamable HTTP on /mcp

The HTTP transports also serve /healthz, /readyz and /healthz/detailed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", server.TransportStdio, "Transport: stdio, sse or streamable-http")
	cmd.Flags().StringVar(&opts.host, "host", "", "Bind host for HTTP transports (default from HOST, then 0.0.0.0)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Bind port for HTTP transports (default from PORT, then 8000)")
	cmd.Flags().BoolVar(&opts.readOnly, "read-only", false, "Expose only the tools that do not modify the mailbox")
	cmd.Flags().BoolVar(&opts.metrics.Enabled, "enable-metrics", false, "Serve Prometheus metrics")
	cmd.Flags().StringVar(&opts.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Address of the metrics server")

	return cmd
}

func validateTransport(transport string) error {
	switch transport {
	case server.TransportStdio, server.TransportSSE, server.TransportStreamableHTTP:
		return nil
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, sse, streamable-http)", transport)
	}
}

// instrumentationConfig reads OTEL settings from the environment; the
// metrics flag turns on the Prometheus exporter.
func instrumentationConfig(metrics MetricsConfig) instrumentation.Config {
	cfg := instrumentation.DefaultConfig()
	cfg.ServiceVersion = version
	if metrics.Enabled {
		cfg.Enabled = true
		cfg.MetricsExporter = instrumentation.ExporterPrometheus
	}
	return cfg
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	if err := validateTransport(opts.transport); err != nil {
		return err
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	settings, err := loadSettings(cmd, opts.host, opts.port)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	logger := newLogger()
	if ignored := ignoredAddress(settings, opts.transport); len(ignored) > 0 {
		logger.Warn("address settings have no effect on the stdio transport", slog.Any("settings", ignored))
	}

	instrConfig := instrumentationConfig(opts.metrics)
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	scOpts := []server.Option{
		server.WithLogger(logger),
		server.WithReadOnly(opts.readOnly),
		server.WithAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)),
	}
	if provider.Enabled() {
		scOpts = append(scOpts, server.WithMetrics(provider.Metrics()))
	}
	resolver := google.NewResolver(settings,
		google.WithLogger(logger),
		google.WithPrompt(os.Stderr),
	)
	serverContext := server.NewServerContext(ctx, settings, resolver, scOpts...)
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("server context shutdown failed", logging.Err(err))
		}
	}()

	// Resolve before serving so a missing credential fails at startup.
	if _, err := serverContext.GmailClient(ctx); err != nil {
		return fmt.Errorf("failed to resolve Gmail credentials: %w", err)
	}

	mcpSrv := mcpserver.NewMCPServer("gmail-mcp", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	gmail_tools.RegisterGmailTools(mcpSrv, serverContext, opts.readOnly)

	if opts.metrics.Enabled {
		metricsServer, err := startMetricsServer(opts.metrics, provider, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	switch opts.transport {
	case server.TransportStdio:
		return runStdioServer(ctx, mcpSrv, logger)
	default:
		return runHTTPServer(ctx, mcpSrv, serverContext, opts.transport, settings, logger)
	}
}

// ignoredAddress lists the explicitly set address settings that the
// transport does not use.
func ignoredAddress(settings config.Settings, transport string) []string {
	if transport != server.TransportStdio {
		return nil
	}
	var names []string
	for _, name := range []string{config.EnvHost, config.EnvPort} {
		if settings.IsSet(name) {
			names = append(names, name)
		}
	}
	return names
}

func startMetricsServer(cfg MetricsConfig, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Addr,
		InstrumentationProvider: provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}
	if err := metricsServer.Listen(); err != nil {
		return nil, err
	}
	go func() {
		if err := metricsServer.Serve(); err != nil {
			logger.Error("metrics server stopped", logging.Err(err))
		}
	}()
	return metricsServer, nil
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, logger *slog.Logger) error {
	stdio := mcpserver.NewStdioServer(mcpSrv)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	logger.Info("serving MCP over stdio")
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, transport string, settings config.Settings, logger *slog.Logger) error {
	health := server.NewHealthChecker(sc)
	httpServer, err := server.NewHTTPServer(mcpSrv, transport, health, logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", settings.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", settings.Addr(), err)
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Serve(ln); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}
