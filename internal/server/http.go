package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Transport names accepted by --transport.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// HTTPServer serves an MCP server over SSE or streamable HTTP, together
// with the health endpoints.
type HTTPServer struct {
	mcpServer  *mcpserver.MCPServer
	transport  string
	health     *HealthChecker
	logger     *slog.Logger
	httpServer *http.Server
	sse        *mcpserver.SSEServer
	streamable *mcpserver.StreamableHTTPServer
}

// NewHTTPServer creates an HTTP server for transport, which must be "sse"
// or "streamable-http".
func NewHTTPServer(mcpServer *mcpserver.MCPServer, transport string, health *HealthChecker, logger *slog.Logger) (*HTTPServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HTTPServer{
		mcpServer: mcpServer,
		transport: transport,
		health:    health,
		logger:    logger,
	}

	mux := http.NewServeMux()
	switch transport {
	case TransportSSE:
		s.sse = mcpserver.NewSSEServer(mcpServer,
			mcpserver.WithSSEEndpoint("/sse"),
			mcpserver.WithMessageEndpoint("/message"),
		)
		mux.Handle("/sse", s.sse)
		mux.Handle("/message", s.sse)
	case TransportStreamableHTTP:
		s.streamable = mcpserver.NewStreamableHTTPServer(mcpServer,
			mcpserver.WithEndpointPath("/mcp"),
		)
		mux.Handle("/mcp", s.streamable)
	default:
		return nil, fmt.Errorf("unsupported server type: %s", transport)
	}
	if health != nil {
		health.RegisterHealthEndpoints(mux)
	}

	// No write timeout: SSE and streamable responses stay open.
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the request multiplexer.
func (s *HTTPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections on ln until Shutdown.
func (s *HTTPServer) Serve(ln net.Listener) error {
	s.logger.Info("serving MCP over HTTP",
		slog.String("transport", s.transport),
		slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.health != nil {
		s.health.SetReady(false)
	}
	var errs []error
	if s.sse != nil {
		errs = append(errs, s.sse.Shutdown(ctx))
	}
	if s.streamable != nil {
		errs = append(errs, s.streamable.Shutdown(ctx))
	}
	errs = append(errs, s.httpServer.Shutdown(ctx))
	return errors.Join(errs...)
}
